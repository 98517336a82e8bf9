package tracker

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gpsgateway/internal/core/model"
)

// Decoder turns one de-framed protocol message into a LocationReport. It
// holds no state and is safe for concurrent use.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode parses a single frame. The variant is chosen by field count. The
// returned report has no server-side metadata (receipt time, transport);
// the caller stamps those.
func (d *Decoder) Decode(data []byte) (*model.LocationReport, error) {
	frame := string(bytes.TrimSpace(data))
	if frame == "" {
		return nil, malformed(frame, ReasonEmptyFrame, "")
	}

	parts := strings.Split(frame, fieldSep)

	var variant model.Variant
	switch len(parts) {
	case compactFields:
		variant = model.VariantCompact
	case extendedFields:
		variant = model.VariantExtended
	default:
		return nil, malformed(frame, ReasonFieldCount,
			fmt.Sprintf("got %d, want %d or %d", len(parts), compactFields, extendedFields))
	}

	seq, ok := strings.CutPrefix(parts[idxSequence], frameMarker)
	if !ok || !isDigits(seq) {
		return nil, malformed(frame, ReasonMarker, "frame must start with $$<seq>")
	}
	if parts[idxSubType] != subTypeMarker {
		return nil, malformed(frame, ReasonMarker, fmt.Sprintf("sub-type %q", parts[idxSubType]))
	}

	imei := strings.TrimSpace(parts[idxIMEI])
	if imei == "" || strings.IndexFunc(imei, unicode.IsSpace) >= 0 {
		return nil, malformed(frame, ReasonDeviceID, "")
	}

	ts, err := ParseTimestamp(parts[idxTimestamp])
	if err != nil {
		return nil, malformed(frame, ReasonTimestamp, err.Error())
	}

	report := model.NewLocationReport(imei, ts)
	report.Variant = variant
	report.Sequence = seq
	report.WorkNo = parts[idxWorkNo]
	report.Alarm = parts[idxAlarm]
	report.Raw = frame

	switch fix := parts[idxFixFlag]; fix {
	case model.FixValid, model.FixInvalid:
		report.FixFlag = fix
		report.Valid = fix == model.FixValid
	default:
		return nil, malformed(frame, ReasonFixFlag, fmt.Sprintf("%q", fix))
	}

	if report.Latitude, err = parseMandatory(parts[idxLatitude]); err != nil || math.Abs(report.Latitude) > 90 {
		return nil, malformed(frame, ReasonLatitude, fmt.Sprintf("%q", parts[idxLatitude]))
	}
	if report.Longitude, err = parseMandatory(parts[idxLongitude]); err != nil || math.Abs(report.Longitude) > 180 {
		return nil, malformed(frame, ReasonLongitude, fmt.Sprintf("%q", parts[idxLongitude]))
	}
	if report.Speed, err = parseMandatory(parts[idxSpeed]); err != nil {
		return nil, malformed(frame, ReasonSpeed, fmt.Sprintf("%q", parts[idxSpeed]))
	}

	report.Course = parseOptional(parts[idxCourse])
	report.Altitude = parseOptional(parts[idxAltitude])

	if variant == model.VariantCompact {
		report.Status = parts[idxCompactStatus]
		return report, nil
	}

	report.Odometer = parseOptional(parts[idxOdometer])
	report.Fuel = parseOptional(parts[idxFuel])
	report.Status = parts[idxStatus]
	report.Input = parts[idxInput]
	report.Output = parts[idxOutput]
	report.Cell = parseCell(parts[idxCell])
	report.Battery = parts[idxBattery]
	report.Params = parseParams(parts[idxBattery])

	return report, nil
}

// ParseTimestamp parses a compact YYMMDDHHMMSS timestamp as UTC in the
// 2000-2099 range.
func ParseTimestamp(s string) (time.Time, error) {
	if len(s) != len(timeLayout) || !isDigits(s) {
		return time.Time{}, fmt.Errorf("want %d digits, got %q", len(timeLayout), s)
	}

	num := func(i int) int {
		return int(s[i]-'0')*10 + int(s[i+1]-'0')
	}
	year := 2000 + num(0)
	month, day := num(2), num(4)
	hour, minute, second := num(6), num(8), num(10)

	if month < 1 || month > 12 || day < 1 || day > 31 ||
		hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("field out of range in %q", s)
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	// time.Date normalizes Feb 30 into March
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("no such date in %q", s)
	}
	return t, nil
}

func parseMandatory(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not finite: %q", s)
	}
	return v, nil
}

func parseOptional(s string) *float64 {
	v, err := parseMandatory(s)
	if err != nil {
		return nil
	}
	return &v
}

// parseCell splits "mcc|mnc|lac|ci". Anything other than exactly four parts
// yields nil: the position is still usable without the cell tuple.
func parseCell(s string) *model.CellInfo {
	parts := strings.Split(s, subFieldSep)
	if len(parts) != cellParts {
		return nil
	}
	return &model.CellInfo{MCC: parts[0], MNC: parts[1], LAC: parts[2], CI: parts[3]}
}

// parseParams collects key=value tokens from the battery/sensor sub-field.
func parseParams(s string) map[string]string {
	var params map[string]string
	for _, token := range strings.Split(s, subFieldSep) {
		key, value, ok := strings.Cut(token, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		if params == nil {
			params = make(map[string]string)
		}
		params[key] = strings.TrimSpace(value)
	}
	return params
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
