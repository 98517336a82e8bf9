// Package tracker implements the decoder for the "$$...,A00,..." text
// protocol spoken by the gateway's GPS trackers.
package tracker

import (
	"errors"
	"fmt"
)

// Protocol constants
const (
	frameMarker   = "$$"
	subTypeMarker = "A00"
	fieldSep      = ","
	subFieldSep   = "|"
	timeLayout    = "060102150405"

	// Field counts per variant
	compactFields  = 13
	extendedFields = 19

	cellParts = 4
)

// Field offsets shared by both variants
const (
	idxSequence = iota
	idxIMEI
	idxWorkNo
	idxSubType
	idxAlarm
	idxTimestamp
	idxFixFlag
	idxLatitude
	idxLongitude
	idxSpeed
	idxCourse
	idxAltitude
)

// Compact variant trailing field
const idxCompactStatus = 12

// Extended variant trailing fields
const (
	idxOdometer = 12 + iota
	idxFuel
	idxStatus
	idxInput
	idxOutput
	idxCell
	idxBattery
)

// ErrMalformedFrame is matched by every decode failure.
var ErrMalformedFrame = errors.New("malformed frame")

// Failure reasons
const (
	ReasonFieldCount    = "wrong field count"
	ReasonMarker        = "unrecognized marker"
	ReasonDeviceID      = "missing device identifier"
	ReasonTimestamp     = "bad timestamp"
	ReasonFixFlag       = "bad fix flag"
	ReasonLatitude      = "bad latitude"
	ReasonLongitude     = "bad longitude"
	ReasonSpeed         = "bad speed"
	ReasonEmptyFrame    = "empty frame"
	ReasonFrameTooLarge = "frame too large"
)

// MalformedFrameError carries the offending frame text and why it was
// rejected.
type MalformedFrameError struct {
	Raw    string
	Reason string
	Detail string
}

func (e *MalformedFrameError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s): %q", ErrMalformedFrame, e.Reason, e.Detail, e.Raw)
	}
	return fmt.Sprintf("%s: %s: %q", ErrMalformedFrame, e.Reason, e.Raw)
}

func (e *MalformedFrameError) Is(target error) bool {
	return target == ErrMalformedFrame
}

func malformed(raw, reason, detail string) error {
	return &MalformedFrameError{Raw: raw, Reason: reason, Detail: detail}
}

// Malformed builds a MalformedFrameError for callers that reject a frame
// before it reaches the decoder (oversized frames, for instance).
func Malformed(raw, reason string) error {
	return malformed(raw, reason, "")
}
