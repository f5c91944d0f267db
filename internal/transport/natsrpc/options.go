package natsrpc

import (
	"log/slog"
	"time"

	"github.com/fogfish/opts"
)

const defaultRequestTimeout = 5 * time.Second

var (
	// WithServerPrefix sets the subject prefix the server listens under.
	WithServerPrefix = opts.ForName[Server, string]("prefix")

	// WithServerLogger sets the server logger, slog.Default() otherwise.
	WithServerLogger = opts.ForName[Server, *slog.Logger]("logger")

	// WithClientPrefix sets the subject prefix the client sends to.
	WithClientPrefix = opts.ForName[Client, string]("prefix")

	// WithRequestTimeout bounds a broker call when ctx carries no deadline.
	WithRequestTimeout = opts.ForName[Client, time.Duration]("timeout")

	// WithListenerLogger sets the listener logger, slog.Default() otherwise.
	WithListenerLogger = opts.ForName[Listener, *slog.Logger]("logger")
)
