package broker

import (
	"log/slog"
	"time"

	"github.com/fogfish/opts"
)

const (
	defaultSweepInterval = time.Second
	defaultNotifyTimeout = 2 * time.Second
)

// Option configures a Broker.
type Option = opts.Option[Broker]

var (
	// WithSweepInterval sets the cadence of both retry sweep loops.
	WithSweepInterval = opts.ForName[Broker, time.Duration]("sweepInterval")

	// WithNotifyTimeout bounds every single push callback.
	WithNotifyTimeout = opts.ForName[Broker, time.Duration]("notifyTimeout")

	// WithLogger sets the logger, slog.Default() is used otherwise.
	WithLogger = opts.ForName[Broker, *slog.Logger]("logger")
)
