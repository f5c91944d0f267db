// Package config reads the tidings settings from the environment. Binaries
// import github.com/joho/godotenv/autoload so a .env file in the working
// directory is honored too.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/casualjim/tidings/internal/transport/natsrpc"
	"github.com/go-openapi/swag"
)

const (
	EnvNATSURL        = "NATS_URL"
	EnvPrefix         = "TIDINGS_PREFIX"
	EnvSweepInterval  = "TIDINGS_SWEEP_INTERVAL"
	EnvNotifyTimeout  = "TIDINGS_NOTIFY_TIMEOUT"
	EnvLogLevel       = "TIDINGS_LOG_LEVEL"
	EnvLogJSON        = "TIDINGS_LOG_JSON"
	EnvStateFile      = "TIDINGS_STATE_FILE"
	EnvRetryAttempts  = "TIDINGS_RETRY_ATTEMPTS"
	EnvRetryDelay     = "TIDINGS_RETRY_DELAY"
	EnvRequestTimeout = "TIDINGS_REQUEST_TIMEOUT"
	EnvMetricsAddr    = "TIDINGS_METRICS_ADDR"
)

// Log holds the logging settings shared by both binaries.
type Log struct {
	Level slog.Level
	JSON  bool
}

// Broker configures the tidings daemon.
type Broker struct {
	NATSURL       string
	Prefix        string
	SweepInterval time.Duration
	NotifyTimeout time.Duration
	// MetricsAddr is the listen address of the /metrics endpoint. Empty
	// disables it.
	MetricsAddr string
	Log         Log
}

// Agent configures the tidings-agent command.
type Agent struct {
	NATSURL        string
	Prefix         string
	StateFile      string
	RetryAttempts  int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
	Log            Log
}

// LoadBroker reads the daemon settings, applying defaults for unset values.
func LoadBroker() (Broker, error) {
	cfg := Broker{
		NATSURL:       env(EnvNATSURL, ""),
		Prefix:        env(EnvPrefix, natsrpc.DefaultPrefix),
		SweepInterval: time.Second,
		NotifyTimeout: 2 * time.Second,
		MetricsAddr:   env(EnvMetricsAddr, ""),
	}
	var err error
	if cfg.SweepInterval, err = duration(EnvSweepInterval, cfg.SweepInterval); err != nil {
		return Broker{}, err
	}
	if cfg.NotifyTimeout, err = duration(EnvNotifyTimeout, cfg.NotifyTimeout); err != nil {
		return Broker{}, err
	}
	if cfg.Log, err = loadLog(); err != nil {
		return Broker{}, err
	}
	return cfg, nil
}

// LoadAgent reads the agent settings, applying defaults for unset values.
func LoadAgent() (Agent, error) {
	cfg := Agent{
		NATSURL:        env(EnvNATSURL, ""),
		Prefix:         env(EnvPrefix, natsrpc.DefaultPrefix),
		StateFile:      env(EnvStateFile, "agent.json"),
		RetryAttempts:  20,
		RetryDelay:     800 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}
	var err error
	if cfg.RetryAttempts, err = integer(EnvRetryAttempts, cfg.RetryAttempts); err != nil {
		return Agent{}, err
	}
	if cfg.RetryAttempts < 1 {
		return Agent{}, fmt.Errorf("%s must be at least 1, got %d", EnvRetryAttempts, cfg.RetryAttempts)
	}
	if cfg.RetryDelay, err = duration(EnvRetryDelay, cfg.RetryDelay); err != nil {
		return Agent{}, err
	}
	if cfg.RequestTimeout, err = duration(EnvRequestTimeout, cfg.RequestTimeout); err != nil {
		return Agent{}, err
	}
	if cfg.Log, err = loadLog(); err != nil {
		return Agent{}, err
	}
	return cfg, nil
}

func loadLog() (Log, error) {
	cfg := Log{Level: slog.LevelInfo}
	if v, ok := lookup(EnvLogLevel); ok {
		if err := cfg.Level.UnmarshalText([]byte(v)); err != nil {
			return Log{}, fmt.Errorf("invalid %s: %w", EnvLogLevel, err)
		}
	}
	if v, ok := lookup(EnvLogJSON); ok {
		b, err := swag.ConvertBool(v)
		if err != nil {
			return Log{}, fmt.Errorf("invalid %s: %w", EnvLogJSON, err)
		}
		cfg.JSON = b
	}
	return cfg, nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func env(key, fallback string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return fallback
}

func integer(key string, fallback int) (int, error) {
	v, ok := lookup(key)
	if !ok {
		return fallback, nil
	}
	n, err := swag.ConvertInt32(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return int(n), nil
}

// duration accepts Go duration strings and bare integers meaning milliseconds.
func duration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := lookup(key)
	if !ok {
		return fallback, nil
	}
	var d time.Duration
	if ms, err := swag.ConvertInt64(v); err == nil {
		d = time.Duration(ms) * time.Millisecond
	} else if d, err = time.ParseDuration(v); err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return d, nil
}
