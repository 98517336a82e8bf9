package tracker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpsgateway/internal/core/model"
)

func TestEncodeRoundTrip(t *testing.T) {
	decoder := NewDecoder()

	for _, frame := range []string{compactFrame, extendedFrame} {
		report, err := decoder.Decode([]byte(frame))
		require.NoError(t, err)

		again, err := decoder.Decode(Encode(report))
		require.NoError(t, err)
		compareReport(t, report, again)
	}
}

func TestEncodeMandatoryFieldsLossless(t *testing.T) {
	decoder := NewDecoder()
	coords := []float64{0, -0.000001, 31.2304, -89.999999, 90, 121.4737, -179.123456789, 180}
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, lat := range coords[:4] {
		for j, lng := range coords[4:] {
			for _, fix := range []string{model.FixValid, model.FixInvalid} {
				ts := start.Add(time.Duration(i*977+j*13) * time.Hour).Add(time.Duration(j) * time.Second)
				in := &model.LocationReport{
					DeviceID:   fmt.Sprintf("86%013d", i*10+j),
					DeviceTime: ts,
					FixFlag:    fix,
					Latitude:   lat,
					Longitude:  lng,
					Speed:      float64(i) * 1.25,
				}

				out, err := decoder.Decode(Encode(in))
				require.NoError(t, err)
				assert.Equal(t, in.DeviceID, out.DeviceID)
				assert.True(t, in.DeviceTime.Equal(out.DeviceTime))
				assert.Equal(t, in.FixFlag, out.FixFlag)
				assert.Equal(t, in.Latitude, out.Latitude)
				assert.Equal(t, in.Longitude, out.Longitude)
				assert.Equal(t, in.Speed, out.Speed)
			}
		}
	}
}

func TestEncodeLayout(t *testing.T) {
	report := &model.LocationReport{
		DeviceID:   "999",
		Variant:    model.VariantExtended,
		DeviceTime: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Sequence:   "5",
		Valid:      true,
		Latitude:   1,
		Longitude:  2,
		Speed:      3,
		Cell:       &model.CellInfo{MCC: "1", MNC: "2", LAC: "3", CI: "4"},
	}
	assert.Equal(t, "$$5,999,,A00,,240101120000,A,1,2,3,,,,,,,,1|2|3|4,", string(Encode(report)))
}
