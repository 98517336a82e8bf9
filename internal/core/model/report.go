package model

import (
	"time"

	"gpsgateway/internal/core/util"
)

// Variant names the frame layout a report was decoded from.
type Variant string

const (
	VariantCompact  Variant = "compact"
	VariantExtended Variant = "extended"
)

// Transport names the socket type a report arrived on.
type Transport string

const (
	TransportTCP Transport = "tcp"
	TransportUDP Transport = "udp"
)

// Fix validity flags as sent by the device.
const (
	FixValid   = "A"
	FixInvalid = "V"
)

// CellInfo is the serving cell tuple reported by extended frames.
type CellInfo struct {
	MCC string `json:"mcc" bson:"mcc"`
	MNC string `json:"mnc" bson:"mnc"`
	LAC string `json:"lac" bson:"lac"`
	CI  string `json:"ci" bson:"ci"`
}

// LocationReport is a normalized position report. DeviceID and DeviceTime
// are always set; optional values are nil or empty when the device did not
// report them.
type LocationReport struct {
	ID         string    `json:"id" bson:"_id"`
	DeviceID   string    `json:"deviceId" bson:"deviceId"`
	Variant    Variant   `json:"variant" bson:"variant"`
	Transport  Transport `json:"transport,omitempty" bson:"transport,omitempty"`
	RemoteAddr string    `json:"remoteAddr,omitempty" bson:"remoteAddr,omitempty"`
	ServerTime time.Time `json:"serverTime" bson:"serverTime"`
	DeviceTime time.Time `json:"deviceTime" bson:"deviceTime"`
	Sequence   string    `json:"sequence,omitempty" bson:"sequence,omitempty"`
	WorkNo     string    `json:"workNo,omitempty" bson:"workNo,omitempty"`

	FixFlag   string  `json:"fixFlag" bson:"fixFlag"`
	Valid     bool    `json:"valid" bson:"valid"`
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
	Speed     float64 `json:"speed" bson:"speed"`

	Course   *float64 `json:"course,omitempty" bson:"course,omitempty"`
	Altitude *float64 `json:"altitude,omitempty" bson:"altitude,omitempty"`
	Odometer *float64 `json:"odometer,omitempty" bson:"odometer,omitempty"`
	Fuel     *float64 `json:"fuel,omitempty" bson:"fuel,omitempty"`

	Alarm   string            `json:"alarm,omitempty" bson:"alarm,omitempty"`
	Status  string            `json:"status,omitempty" bson:"status,omitempty"`
	Input   string            `json:"input,omitempty" bson:"input,omitempty"`
	Output  string            `json:"output,omitempty" bson:"output,omitempty"`
	Cell    *CellInfo         `json:"cell,omitempty" bson:"cell,omitempty"`
	Battery string            `json:"battery,omitempty" bson:"battery,omitempty"`
	Params  map[string]string `json:"params,omitempty" bson:"params,omitempty"`

	Raw string `json:"raw,omitempty" bson:"raw,omitempty"`
}

// NewLocationReport returns a report with a fresh ID for the given device.
func NewLocationReport(deviceID string, deviceTime time.Time) *LocationReport {
	return &LocationReport{
		ID:         util.GenerateID(),
		DeviceID:   deviceID,
		DeviceTime: deviceTime,
	}
}

// Float returns a pointer to v, for populating optional numeric fields.
func Float(v float64) *float64 {
	return &v
}
