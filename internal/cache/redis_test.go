package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledClientIsNoop(t *testing.T) {
	ctx := context.Background()

	clients := map[string]*Client{
		"empty url": New(ctx, "", zerolog.Nop()),
		"bad url":   New(ctx, "://nope", zerolog.Nop()),
		"nil":       nil,
	}
	for name, c := range clients {
		t.Run(name, func(t *testing.T) {
			assert.False(t, c.Enabled())
			require.NoError(t, c.MarkOnline(ctx, Presence{DeviceID: "123"}, time.Minute))
			require.NoError(t, c.MarkOffline(ctx, "123"))

			online, err := c.IsOnline(ctx, "123")
			require.NoError(t, err)
			assert.False(t, online)

			p, err := c.GetPresence(ctx, "123")
			require.NoError(t, err)
			assert.Nil(t, p)

			var v string
			assert.ErrorIs(t, c.Get(ctx, "k", &v), redis.Nil)
			assert.NoError(t, c.Close())
		})
	}
}
