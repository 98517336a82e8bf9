// Package command queues operator commands per device and delivers them
// over the device's live connection.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"gpsgateway/internal/core/model"
	"gpsgateway/internal/core/service"
	"gpsgateway/internal/metrics"
	"gpsgateway/internal/session"
)

// ErrInvalidCommand is returned by Enqueue for an unusable device id or
// command text.
var ErrInvalidCommand = errors.New("invalid command")

// Store is the slice of the persistence sink the queue needs.
type Store interface {
	EnqueueCommand(ctx context.Context, deviceID, text string) (*model.Command, error)
	FetchPendingCommands(ctx context.Context, deviceID string) ([]*model.Command, error)
	MarkCommandSent(ctx context.Context, commandID string) error
	ListCommands(ctx context.Context, deviceID string) ([]*model.Command, error)
}

// Sender writes one frame to a device connection.
type Sender interface {
	Send(frame []byte) error
}

type deviceLock struct {
	mu   sync.Mutex
	refs int
}

type Queue struct {
	store    Store
	registry *session.Registry
	metrics  *metrics.Metrics
	log      zerolog.Logger

	mu    sync.Mutex
	locks map[string]*deviceLock
}

func NewQueue(store Store, registry *session.Registry, m *metrics.Metrics, log zerolog.Logger) *Queue {
	return &Queue{
		store:    store,
		registry: registry,
		metrics:  m,
		log:      log.With().Str("component", "command").Logger(),
		locks:    make(map[string]*deviceLock),
	}
}

// Validate checks a command before it is queued. Text is written as a
// single line, so it may not contain line terminators.
func Validate(deviceID, text string) error {
	switch {
	case strings.TrimSpace(deviceID) == "":
		return fmt.Errorf("%w: empty device id", ErrInvalidCommand)
	case strings.TrimSpace(text) == "":
		return fmt.Errorf("%w: empty command text", ErrInvalidCommand)
	case strings.ContainsAny(text, "\r\n"):
		return fmt.Errorf("%w: command text contains a line terminator", ErrInvalidCommand)
	}
	return nil
}

// Enqueue stores a Pending command. If the device is connected right now
// the queue is drained over that connection immediately; a failed push
// only delays delivery to the next contact.
func (q *Queue) Enqueue(ctx context.Context, deviceID, text string) (*model.Command, error) {
	if err := Validate(deviceID, text); err != nil {
		return nil, err
	}

	cmd, err := q.store.EnqueueCommand(ctx, deviceID, text)
	if err != nil {
		return nil, err
	}
	q.log.Info().Str("device", deviceID).Str("command_id", cmd.ID).Msg("command queued")

	if h, ok := q.registry.Lookup(deviceID); ok {
		n, err := q.Drain(ctx, deviceID, h)
		if err != nil {
			q.log.Warn().Err(err).Str("device", deviceID).Msg("proactive push failed")
		} else {
			q.log.Debug().Str("device", deviceID).Int("sent", n).Msg("proactive push")
		}
	}
	return cmd, nil
}

// Drain sends every Pending command for deviceID over sender, oldest
// first, and returns how many were written.
//
// Each command is claimed (Pending to Sent) before it is written, and
// drains of one device are serialized, so a command reaches at most one
// connection even when two connections race for the same device. A write
// failure stops the drain; the claimed command stays Sent and the rest stay
// Pending for the next contact.
func (q *Queue) Drain(ctx context.Context, deviceID string, sender Sender) (int, error) {
	unlock := q.lock(deviceID)
	defer unlock()

	cmds, err := q.store.FetchPendingCommands(ctx, deviceID)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, cmd := range cmds {
		if err := q.store.MarkCommandSent(ctx, cmd.ID); err != nil {
			if errors.Is(err, service.ErrCommandNotPending) {
				continue
			}
			return sent, err
		}

		if err := sender.Send([]byte(cmd.Text + "\r\n")); err != nil {
			q.metrics.CommandErrors.Inc()
			q.log.Warn().Err(err).Str("device", deviceID).Str("command_id", cmd.ID).Msg("command write failed")
			return sent, err
		}
		sent++
		q.metrics.CommandsSent.Inc()
		q.log.Info().Str("device", deviceID).Str("command_id", cmd.ID).Msg("command sent")
	}
	return sent, nil
}

// Pending returns the device's undelivered commands, oldest first.
func (q *Queue) Pending(ctx context.Context, deviceID string) ([]*model.Command, error) {
	return q.store.FetchPendingCommands(ctx, deviceID)
}

// List returns all of the device's commands, oldest first.
func (q *Queue) List(ctx context.Context, deviceID string) ([]*model.Command, error) {
	return q.store.ListCommands(ctx, deviceID)
}

func (q *Queue) lock(deviceID string) func() {
	q.mu.Lock()
	l, ok := q.locks[deviceID]
	if !ok {
		l = &deviceLock{}
		q.locks[deviceID] = l
	}
	l.refs++
	q.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		q.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(q.locks, deviceID)
		}
		q.mu.Unlock()
	}
}
