package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpsgateway/internal/core/model"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	sent []message
	err  error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, message{subject, data})
	return nil
}

func TestPublish(t *testing.T) {
	conn := &fakeConn{}
	p := newPublisher(conn, "gps.reports.")

	report := model.NewLocationReport("123456789012345", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	report.Latitude = 31.2304
	require.NoError(t, p.Publish(context.Background(), report))

	require.Len(t, conn.sent, 1)
	assert.Equal(t, "gps.reports.123456789012345", conn.sent[0].subject)

	var got model.LocationReport
	require.NoError(t, json.Unmarshal(conn.sent[0].data, &got))
	assert.Equal(t, report.ID, got.ID)
	assert.Equal(t, 31.2304, got.Latitude)
}

func TestPublishError(t *testing.T) {
	boom := errors.New("no responders")
	p := newPublisher(&fakeConn{err: boom}, "gps")

	err := p.Publish(context.Background(), model.NewLocationReport("1", time.Now()))
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, p.Close())
}
