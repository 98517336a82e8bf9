package repository

import (
	"encoding/json"
	"time"

	"gpsgateway/internal/core/model"
)

// reportRow is the relational shape of a LocationReport. Cell is flattened
// and Params is kept as a JSON object.
type reportRow struct {
	ID         string    `gorm:"primaryKey;size:64"`
	DeviceID   string    `gorm:"size:32;index:idx_reports_device_time,priority:1"`
	DeviceTime time.Time `gorm:"index:idx_reports_device_time,priority:2"`
	ServerTime time.Time
	Variant    string `gorm:"size:16"`
	Transport  string `gorm:"size:8"`
	RemoteAddr string `gorm:"size:64"`
	Sequence   string `gorm:"size:32"`
	WorkNo     string `gorm:"size:32"`
	FixFlag    string `gorm:"size:1"`
	Valid      bool
	Latitude   float64
	Longitude  float64
	Speed      float64
	Course     *float64
	Altitude   *float64
	Odometer   *float64
	Fuel       *float64
	Alarm      string `gorm:"size:64"`
	Status     string `gorm:"size:64"`
	Input      string `gorm:"size:64"`
	Output     string `gorm:"size:64"`
	CellMCC    string `gorm:"size:8"`
	CellMNC    string `gorm:"size:8"`
	CellLAC    string `gorm:"size:16"`
	CellCI     string `gorm:"size:16"`
	Battery    string `gorm:"size:64"`
	Params     string `gorm:"type:text"`
	Raw        string `gorm:"type:text"`
}

func (reportRow) TableName() string { return "reports" }

type commandRow struct {
	ID        string    `gorm:"primaryKey;size:64"`
	DeviceID  string    `gorm:"size:32;index:idx_commands_device_status,priority:1"`
	Text      string    `gorm:"type:text"`
	Status    string    `gorm:"size:16;index:idx_commands_device_status,priority:2"`
	CreatedAt time.Time `gorm:"index"`
	SentAt    *time.Time
}

func (commandRow) TableName() string { return "commands" }

type deviceRow struct {
	ID             string `gorm:"primaryKey;size:32"`
	Name           string `gorm:"size:128"`
	Protocol       string `gorm:"size:16"`
	LastTransport  string `gorm:"size:8"`
	LastRemoteAddr string `gorm:"size:64"`
	LastReportID   string `gorm:"size:64"`
	LastUpdate     time.Time
	CreatedAt      time.Time
}

func (deviceRow) TableName() string { return "devices" }

func newReportRow(r *model.LocationReport) (*reportRow, error) {
	row := &reportRow{
		ID:         r.ID,
		DeviceID:   r.DeviceID,
		DeviceTime: r.DeviceTime,
		ServerTime: r.ServerTime,
		Variant:    string(r.Variant),
		Transport:  string(r.Transport),
		RemoteAddr: r.RemoteAddr,
		Sequence:   r.Sequence,
		WorkNo:     r.WorkNo,
		FixFlag:    r.FixFlag,
		Valid:      r.Valid,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		Speed:      r.Speed,
		Course:     r.Course,
		Altitude:   r.Altitude,
		Odometer:   r.Odometer,
		Fuel:       r.Fuel,
		Alarm:      r.Alarm,
		Status:     r.Status,
		Input:      r.Input,
		Output:     r.Output,
		Battery:    r.Battery,
		Raw:        r.Raw,
	}
	if r.Cell != nil {
		row.CellMCC, row.CellMNC, row.CellLAC, row.CellCI = r.Cell.MCC, r.Cell.MNC, r.Cell.LAC, r.Cell.CI
	}
	if len(r.Params) > 0 {
		b, err := json.Marshal(r.Params)
		if err != nil {
			return nil, err
		}
		row.Params = string(b)
	}
	return row, nil
}

func (row *reportRow) toModel() (*model.LocationReport, error) {
	r := &model.LocationReport{
		ID:         row.ID,
		DeviceID:   row.DeviceID,
		DeviceTime: row.DeviceTime.UTC(),
		ServerTime: row.ServerTime.UTC(),
		Variant:    model.Variant(row.Variant),
		Transport:  model.Transport(row.Transport),
		RemoteAddr: row.RemoteAddr,
		Sequence:   row.Sequence,
		WorkNo:     row.WorkNo,
		FixFlag:    row.FixFlag,
		Valid:      row.Valid,
		Latitude:   row.Latitude,
		Longitude:  row.Longitude,
		Speed:      row.Speed,
		Course:     row.Course,
		Altitude:   row.Altitude,
		Odometer:   row.Odometer,
		Fuel:       row.Fuel,
		Alarm:      row.Alarm,
		Status:     row.Status,
		Input:      row.Input,
		Output:     row.Output,
		Battery:    row.Battery,
		Raw:        row.Raw,
	}
	if row.CellMCC != "" || row.CellMNC != "" || row.CellLAC != "" || row.CellCI != "" {
		r.Cell = &model.CellInfo{MCC: row.CellMCC, MNC: row.CellMNC, LAC: row.CellLAC, CI: row.CellCI}
	}
	if row.Params != "" {
		if err := json.Unmarshal([]byte(row.Params), &r.Params); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func newCommandRow(c *model.Command) *commandRow {
	return &commandRow{
		ID:        c.ID,
		DeviceID:  c.DeviceID,
		Text:      c.Text,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
		SentAt:    c.SentAt,
	}
}

func (row *commandRow) toModel() *model.Command {
	c := &model.Command{
		ID:        row.ID,
		DeviceID:  row.DeviceID,
		Text:      row.Text,
		Status:    model.CommandStatus(row.Status),
		CreatedAt: row.CreatedAt.UTC(),
	}
	if row.SentAt != nil {
		at := row.SentAt.UTC()
		c.SentAt = &at
	}
	return c
}

func (row *deviceRow) toModel() *model.Device {
	return &model.Device{
		ID:             row.ID,
		Name:           row.Name,
		Protocol:       model.Variant(row.Protocol),
		LastTransport:  model.Transport(row.LastTransport),
		LastRemoteAddr: row.LastRemoteAddr,
		LastReportID:   row.LastReportID,
		LastUpdate:     row.LastUpdate.UTC(),
		CreatedAt:      row.CreatedAt.UTC(),
	}
}
