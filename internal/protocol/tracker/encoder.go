package tracker

import (
	"strconv"
	"strings"

	"gpsgateway/internal/core/model"
)

// Encode renders report in the layout of its variant, without a line
// terminator. Absent optional values are written as empty fields. Reports
// with no variant are written in the compact layout.
func Encode(report *model.LocationReport) []byte {
	n := compactFields
	if report.Variant == model.VariantExtended {
		n = extendedFields
	}
	parts := make([]string, n)

	seq := report.Sequence
	if seq == "" {
		seq = "0"
	}
	parts[idxSequence] = frameMarker + seq
	parts[idxIMEI] = report.DeviceID
	parts[idxWorkNo] = report.WorkNo
	parts[idxSubType] = subTypeMarker
	parts[idxAlarm] = report.Alarm
	parts[idxTimestamp] = report.DeviceTime.UTC().Format(timeLayout)
	parts[idxFixFlag] = fixFlag(report)
	parts[idxLatitude] = formatFloat(report.Latitude)
	parts[idxLongitude] = formatFloat(report.Longitude)
	parts[idxSpeed] = formatFloat(report.Speed)
	parts[idxCourse] = formatOptional(report.Course)
	parts[idxAltitude] = formatOptional(report.Altitude)

	if n == compactFields {
		parts[idxCompactStatus] = report.Status
		return []byte(strings.Join(parts, fieldSep))
	}

	parts[idxOdometer] = formatOptional(report.Odometer)
	parts[idxFuel] = formatOptional(report.Fuel)
	parts[idxStatus] = report.Status
	parts[idxInput] = report.Input
	parts[idxOutput] = report.Output
	if c := report.Cell; c != nil {
		parts[idxCell] = strings.Join([]string{c.MCC, c.MNC, c.LAC, c.CI}, subFieldSep)
	}
	parts[idxBattery] = report.Battery

	return []byte(strings.Join(parts, fieldSep))
}

func fixFlag(report *model.LocationReport) string {
	if report.FixFlag != "" {
		return report.FixFlag
	}
	if report.Valid {
		return model.FixValid
	}
	return model.FixInvalid
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
