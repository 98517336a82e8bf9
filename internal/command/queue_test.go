package command

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpsgateway/internal/core/model"
	"gpsgateway/internal/core/service"
	"gpsgateway/internal/metrics"
	"gpsgateway/internal/session"
)

type fakeSender struct {
	mu     sync.Mutex
	frames []string
	failAt int // 1-based send that fails; 0 never fails
}

func (f *fakeSender) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.frames)+1 == f.failAt {
		return &session.TransportError{Op: "write", Err: errors.New("broken pipe")}
	}
	f.frames = append(f.frames, string(frame))
	return nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames...)
}

func newTestQueue(t *testing.T) (*Queue, *service.Sink, *session.Registry) {
	t.Helper()
	sink := service.NewMemorySink(zerolog.Nop())
	reg := session.NewRegistry()
	return NewQueue(sink, reg, metrics.New(), zerolog.Nop()), sink, reg
}

func statuses(t *testing.T, q *Queue, deviceID string) []model.CommandStatus {
	t.Helper()
	cmds, err := q.List(context.Background(), deviceID)
	require.NoError(t, err)
	out := make([]model.CommandStatus, len(cmds))
	for i, c := range cmds {
		out[i] = c.Status
	}
	return out
}

func TestEnqueueValidation(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		text     string
		wantErr  bool
	}{
		{"ok", "123", "LOCK", false},
		{"empty device", "", "LOCK", true},
		{"blank device", "  ", "LOCK", true},
		{"empty text", "123", "", true},
		{"newline", "123", "LOCK\nREPORT", true},
		{"carriage return", "123", "LOCK\r", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _, _ := newTestQueue(t)
			cmd, err := q.Enqueue(context.Background(), tt.deviceID, tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCommand)
				assert.Nil(t, cmd)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.CommandPending, cmd.Status)
		})
	}
}

func TestDrainDeliversBacklogInOrder(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t)

	_, err := q.Enqueue(ctx, "999", "LOCK")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "999", "REPORT")
	require.NoError(t, err)

	s := &fakeSender{}
	n, err := q.Drain(ctx, "999", s)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"LOCK\r\n", "REPORT\r\n"}, s.sent())
	assert.Equal(t, []model.CommandStatus{model.CommandSent, model.CommandSent}, statuses(t, q, "999"))

	// a second contact has nothing left to send
	n, err = q.Drain(ctx, "999", s)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, s.sent(), 2)
}

func TestDrainStopsOnTransportError(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t)
	for _, text := range []string{"A", "B", "C"} {
		_, err := q.Enqueue(ctx, "123", text)
		require.NoError(t, err)
	}

	s := &fakeSender{failAt: 2}
	n, err := q.Drain(ctx, "123", s)
	var te *session.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"A\r\n"}, s.sent())

	// B was claimed before the failed write and is not retried
	assert.Equal(t,
		[]model.CommandStatus{model.CommandSent, model.CommandSent, model.CommandPending},
		statuses(t, q, "123"))

	retry := &fakeSender{}
	n, err = q.Drain(ctx, "123", retry)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"C\r\n"}, retry.sent())
}

// claimedElsewhere simulates another gateway instance winning the claim.
type claimedElsewhere struct {
	*service.Sink
	id string
}

func (c claimedElsewhere) MarkCommandSent(ctx context.Context, id string) error {
	if id == c.id {
		return service.ErrCommandNotPending
	}
	return c.Sink.MarkCommandSent(ctx, id)
}

func TestDrainSkipsCommandsClaimedElsewhere(t *testing.T) {
	ctx := context.Background()
	sink := service.NewMemorySink(zerolog.Nop())
	a, err := sink.EnqueueCommand(ctx, "123", "A")
	require.NoError(t, err)
	_, err = sink.EnqueueCommand(ctx, "123", "B")
	require.NoError(t, err)

	q := NewQueue(claimedElsewhere{Sink: sink, id: a.ID}, session.NewRegistry(), metrics.New(), zerolog.Nop())
	s := &fakeSender{}
	n, err := q.Drain(ctx, "123", s)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"B\r\n"}, s.sent())
}

func TestConcurrentDrainsNeverDuplicate(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t)

	const total = 50
	for i := 0; i < total; i++ {
		_, err := q.Enqueue(ctx, "123", "CMD")
		require.NoError(t, err)
	}

	// two connections of the same device after a reconnect race
	senders := []*fakeSender{{}, {}}
	var wg sync.WaitGroup
	for _, s := range senders {
		wg.Add(1)
		go func(s *fakeSender) {
			defer wg.Done()
			_, err := q.Drain(ctx, "123", s)
			assert.NoError(t, err)
		}(s)
	}
	wg.Wait()

	assert.Equal(t, total, len(senders[0].sent())+len(senders[1].sent()))
	pending, err := q.Pending(ctx, "123")
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Empty(t, q.locks, "per-device locks are released")
}

func TestEnqueuePushesToBoundDevice(t *testing.T) {
	ctx := context.Background()
	q, _, reg := newTestQueue(t)

	server, client := net.Pipe()
	defer client.Close()
	h := session.NewHandle(server, time.Second)
	defer h.Close()
	reg.Bind("123", h, string(model.VariantCompact))

	lines := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(client).ReadString('\n')
		lines <- line
	}()

	cmd, err := q.Enqueue(ctx, "123", "LOCK")
	require.NoError(t, err)
	assert.Equal(t, "LOCK\r\n", <-lines)

	cmds, err := q.List(ctx, "123")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, cmd.ID, cmds[0].ID)
	assert.Equal(t, model.CommandSent, cmds[0].Status)
}

func TestEnqueueOfflineStaysPending(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t)

	_, err := q.Enqueue(ctx, "123", "LOCK")
	require.NoError(t, err)

	pending, err := q.Pending(ctx, "123")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "LOCK", pending[0].Text)
}
