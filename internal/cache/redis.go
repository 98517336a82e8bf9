package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const presencePrefix = "presence:"

// Presence is the value stored for an online device.
type Presence struct {
	DeviceID   string    `json:"deviceId"`
	RemoteAddr string    `json:"remoteAddr"`
	Variant    string    `json:"variant"`
	Since      time.Time `json:"since"`
}

// Client wraps Redis. A Client built without a usable URL is disabled and
// every call is a no-op.
type Client struct {
	rdb     *redis.Client
	enabled bool
}

// New connects to redisURL. Parse or ping failures leave caching disabled
// rather than failing startup.
func New(ctx context.Context, redisURL string, log zerolog.Logger) *Client {
	if redisURL == "" {
		log.Info().Msg("Redis URL not provided, caching disabled")
		return &Client{}
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("failed to parse Redis URL, caching disabled")
		return &Client{}
	}

	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("failed to connect to Redis, caching disabled")
		rdb.Close()
		return &Client{}
	}

	log.Info().Msg("Redis cache initialized")
	return &Client{rdb: rdb, enabled: true}
}

// NewWithClient wraps an existing go-redis client.
func NewWithClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb, enabled: rdb != nil}
}

func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

func (c *Client) Close() error {
	if c.Enabled() {
		return c.rdb.Close()
	}
	return nil
}

// Set stores value as JSON with expiration.
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, expiration).Err()
}

// Get decodes the JSON value at key into dest. A miss, or a disabled
// client, returns redis.Nil.
func (c *Client) Get(ctx context.Context, key string, dest interface{}) error {
	if !c.Enabled() {
		return redis.Nil
	}

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (c *Client) Delete(ctx context.Context, key string) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Del(ctx, key).Err()
}

// MarkOnline records p for ttl. The TCP server refreshes it on every frame,
// so the key outlives the connection by at most ttl after a crash.
func (c *Client) MarkOnline(ctx context.Context, p Presence, ttl time.Duration) error {
	return c.Set(ctx, presencePrefix+p.DeviceID, p, ttl)
}

func (c *Client) MarkOffline(ctx context.Context, deviceID string) error {
	return c.Delete(ctx, presencePrefix+deviceID)
}

// IsOnline reports whether a presence key exists for deviceID.
func (c *Client) IsOnline(ctx context.Context, deviceID string) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	n, err := c.rdb.Exists(ctx, presencePrefix+deviceID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetPresence returns the stored presence, or nil when the device is not
// marked online.
func (c *Client) GetPresence(ctx context.Context, deviceID string) (*Presence, error) {
	var p Presence
	err := c.Get(ctx, presencePrefix+deviceID, &p)
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
