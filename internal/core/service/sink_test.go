package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpsgateway/internal/core/model"
	"gpsgateway/internal/core/repository"
)

var errBackend = errors.New("backend down")

type failingReports struct{ repository.ReportRepository }

func (failingReports) Create(context.Context, *model.LocationReport) error { return errBackend }

type recordingPublisher struct {
	reports []*model.LocationReport
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, r *model.LocationReport) error {
	p.reports = append(p.reports, r)
	return p.err
}

func testReport() *model.LocationReport {
	r := model.NewLocationReport("123456789012345", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	r.Variant = model.VariantCompact
	r.Transport = model.TransportTCP
	r.FixFlag = model.FixValid
	r.Valid = true
	return r
}

func TestStoreLocationReport(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink(zerolog.Nop())
	pub := &recordingPublisher{err: errors.New("nats down")}
	sink.SetPublisher(pub)

	report := testReport()
	id, err := sink.StoreLocationReport(ctx, report)
	require.NoError(t, err, "publish failures are not returned")
	assert.Equal(t, report.ID, id)
	assert.False(t, report.ServerTime.IsZero())
	assert.Len(t, pub.reports, 1)

	device, err := sink.GetDevice(ctx, report.DeviceID)
	require.NoError(t, err)
	require.NotNil(t, device)
	assert.Equal(t, report.ID, device.LastReportID)

	reports, err := sink.FindReports(ctx, report.DeviceID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	latest, err := sink.LatestReport(ctx, report.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, latest.ID)
}

func TestStoreLocationReportStorageError(t *testing.T) {
	sink := NewSink(
		failingReports{},
		repository.NewInMemoryCommandRepository(),
		repository.NewInMemoryDeviceRepository(),
		zerolog.Nop(),
	)

	_, err := sink.StoreLocationReport(context.Background(), testReport())
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "store report", se.Op)
	assert.ErrorIs(t, err, errBackend)

	devices, err := sink.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices, "no device row without a stored report")
}

func TestCommandLifecycle(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink(zerolog.Nop())

	first, err := sink.EnqueueCommand(ctx, "123", "A")
	require.NoError(t, err)
	_, err = sink.EnqueueCommand(ctx, "123", "B")
	require.NoError(t, err)
	assert.Equal(t, model.CommandPending, first.Status)

	pending, err := sink.FetchPendingCommands(ctx, "123")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "A", pending[0].Text)

	require.NoError(t, sink.MarkCommandSent(ctx, first.ID))
	assert.ErrorIs(t, sink.MarkCommandSent(ctx, first.ID), ErrCommandNotPending)

	all, err := sink.ListCommands(ctx, "123")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, model.CommandSent, all[0].Status)
	assert.Equal(t, model.CommandPending, all[1].Status)
}
