package server

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"gpsgateway/internal/core/model"
	"gpsgateway/internal/metrics"
	"gpsgateway/internal/protocol/tracker"
)

// Sink persists decoded reports.
type Sink interface {
	StoreLocationReport(ctx context.Context, report *model.LocationReport) (string, error)
}

// FrameHandler is the frame path shared by the TCP and UDP servers: decode,
// stamp receipt metadata, persist.
type FrameHandler struct {
	decoder      *tracker.Decoder
	sink         Sink
	storeTimeout time.Duration
	metrics      *metrics.Metrics
	log          zerolog.Logger
	now          func() time.Time
}

func NewFrameHandler(sink Sink, storeTimeout time.Duration, m *metrics.Metrics, log zerolog.Logger) *FrameHandler {
	return &FrameHandler{
		decoder:      tracker.NewDecoder(),
		sink:         sink,
		storeTimeout: storeTimeout,
		metrics:      m,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Handle decodes and stores one frame. A malformed frame returns a nil
// report. A storage failure returns the decoded report together with the
// error, so the caller can still bind and ack.
func (h *FrameHandler) Handle(ctx context.Context, frame []byte, transport model.Transport, remote string) (*model.LocationReport, error) {
	received := h.now()

	report, err := h.decoder.Decode(frame)
	if err != nil {
		h.reject(transport, remote, err)
		return nil, err
	}
	report.ServerTime = received
	report.Transport = transport
	report.RemoteAddr = remote

	// a write that has started is finished even if the server is stopping
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.storeTimeout)
	defer cancel()

	if _, err := h.sink.StoreLocationReport(storeCtx, report); err != nil {
		h.metrics.Frames.WithLabelValues(string(transport), metrics.ResultStoreErr).Inc()
		h.metrics.StorageErrors.WithLabelValues("store report").Inc()
		h.log.Error().Err(err).
			Str("transport", string(transport)).
			Str("remote", remote).
			Str("device", report.DeviceID).
			Msg("failed to store report")
		return report, err
	}

	h.metrics.Frames.WithLabelValues(string(transport), metrics.ResultOK).Inc()
	h.metrics.ReportsStored.WithLabelValues(string(transport)).Inc()
	h.log.Debug().
		Str("transport", string(transport)).
		Str("remote", remote).
		Str("device", report.DeviceID).
		Str("variant", string(report.Variant)).
		Bool("valid", report.Valid).
		Float64("lat", report.Latitude).
		Float64("lng", report.Longitude).
		Msg("report stored")
	return report, nil
}

// RejectOversized records a frame the framer discarded for its size.
func (h *FrameHandler) RejectOversized(transport model.Transport, remote string) {
	h.reject(transport, remote, tracker.Malformed("", tracker.ReasonFrameTooLarge))
}

func (h *FrameHandler) reject(transport model.Transport, remote string, err error) {
	h.metrics.Frames.WithLabelValues(string(transport), metrics.ResultMalformed).Inc()

	ev := h.log.Warn().Err(err).Str("transport", string(transport)).Str("remote", remote)
	var mf *tracker.MalformedFrameError
	if errors.As(err, &mf) {
		ev = ev.Str("reason", mf.Reason)
	}
	ev.Msg("malformed frame")
}
