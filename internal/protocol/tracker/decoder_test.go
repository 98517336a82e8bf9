package tracker

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpsgateway/internal/core/model"
)

const (
	compactFrame  = "$$01,123456789012345,02,A00,,240101120000,A,31.2304,121.4737,45.0,90.0,10.0,0000"
	extendedFrame = "$$01,123456789012345,02,A00,,240101120000,A,31.2304,121.4737,45.0,90.0,10.0,1234.5,3.2,0000,0001,0010,460|00|1806|2A3B,4.1|bat=87|temp=25"
)

func TestDecoder(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    *model.LocationReport
		wantErr string
	}{
		{
			name: "compact report",
			data: compactFrame,
			want: &model.LocationReport{
				DeviceID:   "123456789012345",
				Variant:    model.VariantCompact,
				DeviceTime: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
				Sequence:   "01",
				WorkNo:     "02",
				FixFlag:    "A",
				Valid:      true,
				Latitude:   31.2304,
				Longitude:  121.4737,
				Speed:      45.0,
				Course:     model.Float(90),
				Altitude:   model.Float(10),
				Status:     "0000",
			},
		},
		{
			name: "extended report",
			data: extendedFrame,
			want: &model.LocationReport{
				DeviceID:   "123456789012345",
				Variant:    model.VariantExtended,
				DeviceTime: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
				Sequence:   "01",
				WorkNo:     "02",
				FixFlag:    "A",
				Valid:      true,
				Latitude:   31.2304,
				Longitude:  121.4737,
				Speed:      45.0,
				Course:     model.Float(90),
				Altitude:   model.Float(10),
				Odometer:   model.Float(1234.5),
				Fuel:       model.Float(3.2),
				Status:     "0000",
				Input:      "0001",
				Output:     "0010",
				Cell:       &model.CellInfo{MCC: "460", MNC: "00", LAC: "1806", CI: "2A3B"},
				Battery:    "4.1|bat=87|temp=25",
				Params:     map[string]string{"bat": "87", "temp": "25"},
			},
		},
		{
			name: "invalid fix is kept",
			data: strings.Replace(compactFrame, ",A,", ",V,", 1),
			want: &model.LocationReport{
				DeviceID:   "123456789012345",
				Variant:    model.VariantCompact,
				DeviceTime: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
				Sequence:   "01",
				WorkNo:     "02",
				FixFlag:    "V",
				Valid:      false,
				Latitude:   31.2304,
				Longitude:  121.4737,
				Speed:      45.0,
				Course:     model.Float(90),
				Altitude:   model.Float(10),
				Status:     "0000",
			},
		},
		{
			name: "trailing terminator and alarm",
			data: "$$7,999,1,A00,SOS,991231235959,A,-33.5,-70.25,0,,abc,1F\r\n",
			want: &model.LocationReport{
				DeviceID:   "999",
				Variant:    model.VariantCompact,
				DeviceTime: time.Date(2099, 12, 31, 23, 59, 59, 0, time.UTC),
				Sequence:   "7",
				WorkNo:     "1",
				Alarm:      "SOS",
				FixFlag:    "A",
				Valid:      true,
				Latitude:   -33.5,
				Longitude:  -70.25,
				Speed:      0,
				Status:     "1F",
			},
		},
		{
			name:    "empty frame",
			data:    "  \r\n",
			wantErr: ReasonEmptyFrame,
		},
		{
			name:    "too few fields",
			data:    "$$01,123456789012345,02,A00,,240101120000,A,31.2304,121.4737,45.0",
			wantErr: ReasonFieldCount,
		},
		{
			name:    "between variants",
			data:    compactFrame + ",1,2,3",
			wantErr: ReasonFieldCount,
		},
		{
			name:    "too many fields",
			data:    extendedFrame + ",extra",
			wantErr: ReasonFieldCount,
		},
		{
			name:    "missing frame marker",
			data:    strings.TrimPrefix(compactFrame, "$$"),
			wantErr: ReasonMarker,
		},
		{
			name:    "non numeric sequence",
			data:    strings.Replace(compactFrame, "$$01", "$$x1", 1),
			wantErr: ReasonMarker,
		},
		{
			name:    "wrong sub-type",
			data:    strings.Replace(compactFrame, "A00", "B00", 1),
			wantErr: ReasonMarker,
		},
		{
			name:    "empty device id",
			data:    strings.Replace(compactFrame, "123456789012345", "", 1),
			wantErr: ReasonDeviceID,
		},
		{
			name:    "month out of range",
			data:    strings.Replace(compactFrame, "240101120000", "241301120000", 1),
			wantErr: ReasonTimestamp,
		},
		{
			name:    "hour out of range",
			data:    strings.Replace(compactFrame, "240101120000", "240101250000", 1),
			wantErr: ReasonTimestamp,
		},
		{
			name:    "impossible date",
			data:    strings.Replace(compactFrame, "240101120000", "240230120000", 1),
			wantErr: ReasonTimestamp,
		},
		{
			name:    "short timestamp",
			data:    strings.Replace(compactFrame, "240101120000", "2401011200", 1),
			wantErr: ReasonTimestamp,
		},
		{
			name:    "bad fix flag",
			data:    strings.Replace(compactFrame, ",A,", ",X,", 1),
			wantErr: ReasonFixFlag,
		},
		{
			name:    "non numeric latitude",
			data:    strings.Replace(compactFrame, "31.2304", "north", 1),
			wantErr: ReasonLatitude,
		},
		{
			name:    "latitude out of range",
			data:    strings.Replace(compactFrame, "31.2304", "91.5", 1),
			wantErr: ReasonLatitude,
		},
		{
			name:    "longitude out of range",
			data:    strings.Replace(compactFrame, "121.4737", "181", 1),
			wantErr: ReasonLongitude,
		},
		{
			name:    "non numeric speed",
			data:    strings.Replace(compactFrame, "45.0", "fast", 1),
			wantErr: ReasonSpeed,
		},
		{
			name:    "NaN speed",
			data:    strings.Replace(compactFrame, "45.0", "NaN", 1),
			wantErr: ReasonSpeed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoder := NewDecoder()

			got, err := decoder.Decode([]byte(tt.data))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Nil(t, got, "no partial report on failure")
				assert.True(t, errors.Is(err, ErrMalformedFrame))

				var mf *MalformedFrameError
				require.True(t, errors.As(err, &mf))
				assert.Equal(t, tt.wantErr, mf.Reason)
				assert.Equal(t, strings.TrimSpace(tt.data), mf.Raw)
				return
			}
			require.NoError(t, err)
			compareReport(t, tt.want, got)
		})
	}
}

func TestDecoderOptionalFieldsAbsent(t *testing.T) {
	frame := "$$01,555,02,A00,,240101120000,A,1.5,2.5,3,n/a,,-,,0,1,0,460|00|1806,"
	got, err := NewDecoder().Decode([]byte(frame))
	require.NoError(t, err)

	assert.Equal(t, model.VariantExtended, got.Variant)
	assert.Nil(t, got.Course)
	assert.Nil(t, got.Altitude)
	assert.Nil(t, got.Odometer)
	assert.Nil(t, got.Fuel)
	assert.Nil(t, got.Cell, "three-part cell field degrades to absent")
	assert.Empty(t, got.Battery)
	assert.Nil(t, got.Params)

	// everything else is still populated
	assert.Equal(t, "555", got.DeviceID)
	assert.Equal(t, 1.5, got.Latitude)
	assert.Equal(t, 2.5, got.Longitude)
	assert.Equal(t, 3.0, got.Speed)
	assert.Equal(t, "0", got.Status)
	assert.Equal(t, "1", got.Input)
	assert.Equal(t, "0", got.Output)
}

func TestDecoderCellSubField(t *testing.T) {
	base := strings.Split(extendedFrame, ",")

	tests := []struct {
		name string
		cell string
		want *model.CellInfo
	}{
		{"four parts", "460|01|A1|B2", &model.CellInfo{MCC: "460", MNC: "01", LAC: "A1", CI: "B2"}},
		{"empty parts kept", "460|||", &model.CellInfo{MCC: "460"}},
		{"three parts", "460|01|A1", nil},
		{"five parts", "460|01|A1|B2|C3", nil},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := append([]string(nil), base...)
			parts[idxCell] = tt.cell

			got, err := NewDecoder().Decode([]byte(strings.Join(parts, ",")))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Cell)
			assert.NotNil(t, got.Odometer)
			assert.Equal(t, "4.1|bat=87|temp=25", got.Battery)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("000229000000")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2000, 2, 29, 0, 0, 0, 0, time.UTC), ts)

	for _, bad := range []string{"", "24010112000a", "240100120000", "240132120000", "240101126000", "240101120060", "230229000000"} {
		_, err := ParseTimestamp(bad)
		assert.Error(t, err, bad)
	}
}

func compareReport(t *testing.T, want, got *model.LocationReport) {
	t.Helper()
	require.NotNil(t, got)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, want.DeviceID, got.DeviceID)
	assert.Equal(t, want.Variant, got.Variant)
	assert.True(t, want.DeviceTime.Equal(got.DeviceTime), "DeviceTime = %v, want %v", got.DeviceTime, want.DeviceTime)
	assert.Equal(t, want.Sequence, got.Sequence)
	assert.Equal(t, want.WorkNo, got.WorkNo)
	assert.Equal(t, want.Alarm, got.Alarm)
	assert.Equal(t, want.FixFlag, got.FixFlag)
	assert.Equal(t, want.Valid, got.Valid)
	assert.InDelta(t, want.Latitude, got.Latitude, 1e-9)
	assert.InDelta(t, want.Longitude, got.Longitude, 1e-9)
	assert.InDelta(t, want.Speed, got.Speed, 1e-9)
	assert.Equal(t, want.Course, got.Course)
	assert.Equal(t, want.Altitude, got.Altitude)
	assert.Equal(t, want.Odometer, got.Odometer)
	assert.Equal(t, want.Fuel, got.Fuel)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Input, got.Input)
	assert.Equal(t, want.Output, got.Output)
	assert.Equal(t, want.Cell, got.Cell)
	assert.Equal(t, want.Battery, got.Battery)
	assert.Equal(t, want.Params, got.Params)
	assert.True(t, got.ServerTime.IsZero(), "decoder must not stamp server time")
}
