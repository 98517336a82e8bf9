package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"gpsgateway/internal/core/model"
	"gpsgateway/internal/core/repository"
)

// ErrCommandNotPending is returned by MarkCommandSent when another caller
// already claimed the command.
var ErrCommandNotPending = errors.New("command is not pending")

// StorageError wraps a backend failure with the sink operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Publisher fans stored reports out to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, report *model.LocationReport) error
}

// Sink is the gateway's only path to durable storage.
type Sink struct {
	reports   repository.ReportRepository
	commands  repository.CommandRepository
	devices   repository.DeviceRepository
	publisher Publisher
	log       zerolog.Logger
	now       func() time.Time
}

func NewSink(reports repository.ReportRepository, commands repository.CommandRepository, devices repository.DeviceRepository, log zerolog.Logger) *Sink {
	return &Sink{
		reports:  reports,
		commands: commands,
		devices:  devices,
		log:      log.With().Str("component", "sink").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewMemorySink returns a sink backed by in-memory repositories.
func NewMemorySink(log zerolog.Logger) *Sink {
	return NewSink(
		repository.NewInMemoryReportRepository(),
		repository.NewInMemoryCommandRepository(),
		repository.NewInMemoryDeviceRepository(),
		log,
	)
}

// SetPublisher attaches p; a nil publisher disables fan-out.
func (s *Sink) SetPublisher(p Publisher) {
	s.publisher = p
}

// StoreLocationReport persists report and returns its id. The device row is
// upserted afterwards; failures past the report insert are logged only.
func (s *Sink) StoreLocationReport(ctx context.Context, report *model.LocationReport) (string, error) {
	if report.ServerTime.IsZero() {
		report.ServerTime = s.now()
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return "", &StorageError{Op: "store report", Err: err}
	}

	if err := s.devices.Touch(ctx, report); err != nil {
		s.log.Warn().Err(err).Str("device", report.DeviceID).Msg("device upsert failed")
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, report); err != nil {
			s.log.Warn().Err(err).Str("device", report.DeviceID).Msg("report publish failed")
		}
	}
	return report.ID, nil
}

func (s *Sink) EnqueueCommand(ctx context.Context, deviceID, text string) (*model.Command, error) {
	cmd := model.NewCommand(deviceID, text)
	cmd.CreatedAt = s.now()
	if err := s.commands.Create(ctx, cmd); err != nil {
		return nil, &StorageError{Op: "enqueue command", Err: err}
	}
	return cmd, nil
}

// FetchPendingCommands returns the device's Pending commands, oldest first.
func (s *Sink) FetchPendingCommands(ctx context.Context, deviceID string) ([]*model.Command, error) {
	cmds, err := s.commands.FindPendingByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, &StorageError{Op: "fetch pending commands", Err: err}
	}
	return cmds, nil
}

// MarkCommandSent claims a Pending command. Exactly one caller wins; the
// rest get ErrCommandNotPending.
func (s *Sink) MarkCommandSent(ctx context.Context, commandID string) error {
	err := s.commands.MarkSent(ctx, commandID, s.now())
	if errors.Is(err, repository.ErrNotPending) {
		return ErrCommandNotPending
	}
	if err != nil {
		return &StorageError{Op: "mark command sent", Err: err}
	}
	return nil
}

func (s *Sink) ListCommands(ctx context.Context, deviceID string) ([]*model.Command, error) {
	cmds, err := s.commands.FindByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, &StorageError{Op: "list commands", Err: err}
	}
	return cmds, nil
}

// FindReports returns the device's reports with from <= DeviceTime < to.
func (s *Sink) FindReports(ctx context.Context, deviceID string, from, to time.Time) ([]*model.LocationReport, error) {
	reports, err := s.reports.FindByDeviceID(ctx, deviceID, from, to)
	if err != nil {
		return nil, &StorageError{Op: "find reports", Err: err}
	}
	return reports, nil
}

func (s *Sink) LatestReport(ctx context.Context, deviceID string) (*model.LocationReport, error) {
	report, err := s.reports.FindLatestByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, &StorageError{Op: "latest report", Err: err}
	}
	return report, nil
}

func (s *Sink) ListDevices(ctx context.Context) ([]*model.Device, error) {
	devices, err := s.devices.FindAll(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list devices", Err: err}
	}
	return devices, nil
}

func (s *Sink) GetDevice(ctx context.Context, id string) (*model.Device, error) {
	device, err := s.devices.FindByID(ctx, id)
	if err != nil {
		return nil, &StorageError{Op: "get device", Err: err}
	}
	return device, nil
}
