package model

import (
	"time"
)

// Device is a tracker known to the gateway. It is created the first time a
// report from the IMEI is stored and refreshed on every later report.
type Device struct {
	ID             string    `json:"id" bson:"_id"` // IMEI
	Name           string    `json:"name,omitempty" bson:"name,omitempty"`
	Protocol       Variant   `json:"protocol" bson:"protocol"`
	LastTransport  Transport `json:"lastTransport" bson:"lastTransport"`
	LastRemoteAddr string    `json:"lastRemoteAddr,omitempty" bson:"lastRemoteAddr,omitempty"`
	LastReportID   string    `json:"lastReportId,omitempty" bson:"lastReportId,omitempty"`
	LastUpdate     time.Time `json:"lastUpdate" bson:"lastUpdate"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
}

func NewDevice(imei string) *Device {
	now := time.Now().UTC()
	return &Device{
		ID:         imei,
		LastUpdate: now,
		CreatedAt:  now,
	}
}

// Touch records report as the device's latest contact.
func (d *Device) Touch(report *LocationReport) {
	d.Protocol = report.Variant
	d.LastTransport = report.Transport
	d.LastRemoteAddr = report.RemoteAddr
	d.LastReportID = report.ID
	d.LastUpdate = report.ServerTime
}
