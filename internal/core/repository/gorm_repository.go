package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gpsgateway/internal/core/model"
)

// AutoMigrate creates or updates the reports, commands and devices tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&reportRow{}, &commandRow{}, &deviceRow{})
}

type GormReportRepository struct {
	db *gorm.DB
}

func NewGormReportRepository(db *gorm.DB) *GormReportRepository {
	return &GormReportRepository{db: db}
}

func (r *GormReportRepository) Create(ctx context.Context, report *model.LocationReport) error {
	row, err := newReportRow(report)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *GormReportRepository) FindByDeviceID(ctx context.Context, deviceID string, from, to time.Time) ([]*model.LocationReport, error) {
	q := r.db.WithContext(ctx).Where("device_id = ?", deviceID)
	if !from.IsZero() {
		q = q.Where("device_time >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("device_time < ?", to)
	}

	var rows []reportRow
	if err := q.Order("device_time ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	reports := make([]*model.LocationReport, 0, len(rows))
	for i := range rows {
		rep, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func (r *GormReportRepository) FindLatestByDeviceID(ctx context.Context, deviceID string) (*model.LocationReport, error) {
	var row reportRow
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("device_time DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

type GormCommandRepository struct {
	db *gorm.DB
}

func NewGormCommandRepository(db *gorm.DB) *GormCommandRepository {
	return &GormCommandRepository{db: db}
}

func (r *GormCommandRepository) Create(ctx context.Context, cmd *model.Command) error {
	return r.db.WithContext(ctx).Create(newCommandRow(cmd)).Error
}

func (r *GormCommandRepository) FindPendingByDeviceID(ctx context.Context, deviceID string) ([]*model.Command, error) {
	return r.find(r.db.WithContext(ctx).Where("device_id = ? AND status = ?", deviceID, string(model.CommandPending)))
}

func (r *GormCommandRepository) FindByDeviceID(ctx context.Context, deviceID string) ([]*model.Command, error) {
	return r.find(r.db.WithContext(ctx).Where("device_id = ?", deviceID))
}

func (r *GormCommandRepository) find(q *gorm.DB) ([]*model.Command, error) {
	var rows []commandRow
	if err := q.Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	cmds := make([]*model.Command, 0, len(rows))
	for i := range rows {
		cmds = append(cmds, rows[i].toModel())
	}
	return cmds, nil
}

func (r *GormCommandRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&commandRow{}).
		Where("id = ? AND status = ?", id, string(model.CommandPending)).
		Updates(map[string]any{
			"status":  string(model.CommandSent),
			"sent_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}

type GormDeviceRepository struct {
	db *gorm.DB
}

func NewGormDeviceRepository(db *gorm.DB) *GormDeviceRepository {
	return &GormDeviceRepository{db: db}
}

func (r *GormDeviceRepository) Touch(ctx context.Context, report *model.LocationReport) error {
	row := deviceRow{
		ID:             report.DeviceID,
		Protocol:       string(report.Variant),
		LastTransport:  string(report.Transport),
		LastRemoteAddr: report.RemoteAddr,
		LastReportID:   report.ID,
		LastUpdate:     report.ServerTime,
		CreatedAt:      report.ServerTime,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"protocol", "last_transport", "last_remote_addr", "last_report_id", "last_update",
		}),
	}).Create(&row).Error
}

func (r *GormDeviceRepository) FindByID(ctx context.Context, id string) (*model.Device, error) {
	var row deviceRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (r *GormDeviceRepository) FindAll(ctx context.Context) ([]*model.Device, error) {
	var rows []deviceRow
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	devices := make([]*model.Device, 0, len(rows))
	for i := range rows {
		devices = append(devices, rows[i].toModel())
	}
	return devices, nil
}
