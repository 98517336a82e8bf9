package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	TCP      ListenConfig
	UDP      ListenConfig
	HTTP     ListenConfig
	Protocol ProtocolConfig
	Timeouts TimeoutConfig
	Storage  StorageConfig
	Mongo    MongoConfig
	SQL      SQLConfig
	Redis    RedisConfig
	NATS     NATSConfig
	JWT      JWTConfig
	Log      LogConfig
}

// ListenConfig is a listen address; an empty Addr disables the listener.
type ListenConfig struct {
	Addr string
}

type ProtocolConfig struct {
	Ack           string
	MaxFrameBytes int
}

type TimeoutConfig struct {
	Idle  time.Duration
	Write time.Duration
	Store time.Duration
}

// Storage drivers.
const (
	DriverMongo  = "mongo"
	DriverSQL    = "sql"
	DriverMemory = "memory"
)

type StorageConfig struct {
	Driver string
}

type RedisConfig struct {
	URL string
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type JWTConfig struct {
	Secret string
}

type LogConfig struct {
	Level  string
	Format string
}

// legacyEnv maps keys to the environment names earlier deployments used.
var legacyEnv = map[string]string{
	"mongo.uri":      "MONGODB_URI",
	"mongo.database": "MONGODB_DATABASE",
	"redis.url":      "REDIS_URL",
	"log.level":      "LOG_LEVEL",
	"jwt.secret":     "JWT_ACCESS_SECRET",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tcp.addr", ":10100")
	v.SetDefault("udp.addr", ":10110")
	v.SetDefault("http.addr", ":8000")
	v.SetDefault("protocol.ack", "##ACK")
	v.SetDefault("protocol.max_frame_bytes", 1024)
	v.SetDefault("timeouts.idle", 5*time.Minute)
	v.SetDefault("timeouts.write", 10*time.Second)
	v.SetDefault("timeouts.store", 5*time.Second)
	v.SetDefault("storage.driver", DriverMongo)
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "tracking")
	v.SetDefault("sql.dialect", "sqlite")
	v.SetDefault("sql.dsn", "gateway.db")
	v.SetDefault("redis.url", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "gps.reports")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads defaults, then the YAML file at path (if non-empty), then
// GATEWAY_* environment variables and the legacy names in legacyEnv.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := "GATEWAY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		TCP:  ListenConfig{Addr: v.GetString("tcp.addr")},
		UDP:  ListenConfig{Addr: v.GetString("udp.addr")},
		HTTP: ListenConfig{Addr: v.GetString("http.addr")},
		Protocol: ProtocolConfig{
			Ack:           v.GetString("protocol.ack"),
			MaxFrameBytes: v.GetInt("protocol.max_frame_bytes"),
		},
		Timeouts: TimeoutConfig{
			Idle:  v.GetDuration("timeouts.idle"),
			Write: v.GetDuration("timeouts.write"),
			Store: v.GetDuration("timeouts.store"),
		},
		Storage: StorageConfig{Driver: strings.ToLower(v.GetString("storage.driver"))},
		Mongo: MongoConfig{
			URI:      v.GetString("mongo.uri"),
			Database: v.GetString("mongo.database"),
		},
		SQL: SQLConfig{
			Dialect: strings.ToLower(v.GetString("sql.dialect")),
			DSN:     v.GetString("sql.dsn"),
		},
		Redis: RedisConfig{URL: v.GetString("redis.url")},
		NATS: NATSConfig{
			URL:           v.GetString("nats.url"),
			SubjectPrefix: v.GetString("nats.subject_prefix"),
		},
		JWT: JWTConfig{Secret: v.GetString("jwt.secret")},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.TCP.Addr == "" && c.UDP.Addr == "" {
		errs = append(errs, errors.New("at least one of tcp.addr and udp.addr is required"))
	}
	if c.Protocol.MaxFrameBytes <= 0 {
		errs = append(errs, errors.New("protocol.max_frame_bytes must be positive"))
	}
	if strings.ContainsAny(c.Protocol.Ack, "\r\n") {
		errs = append(errs, errors.New("protocol.ack must not contain line terminators"))
	}
	if c.Timeouts.Idle <= 0 || c.Timeouts.Write <= 0 || c.Timeouts.Store <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	switch c.Storage.Driver {
	case DriverMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("mongo.uri (MONGODB_URI) is required for the mongo driver"))
		}
	case DriverSQL:
		if c.SQL.Dialect != DialectSQLite && c.SQL.Dialect != DialectMySQL {
			errs = append(errs, fmt.Errorf("unknown sql.dialect %q", c.SQL.Dialect))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	return errors.Join(errs...)
}
