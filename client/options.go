package client

import (
	"log/slog"
	"time"

	"github.com/casualjim/tidings/pubsub"
	"github.com/fogfish/opts"
)

const (
	defaultAttempts   = 20
	defaultRetryDelay = 800 * time.Millisecond
)

// Option configures an Agent.
type Option = opts.Option[Agent]

var (
	// WithIdentity sets the identity the broker addresses the agent by.
	WithIdentity = opts.ForName[Agent, string]("identity")

	// WithAttempts bounds how often a call is tried while the broker is unreachable.
	WithAttempts = opts.ForName[Agent, int]("attempts")

	// WithRetryDelay is the pause between two attempts.
	WithRetryDelay = opts.ForName[Agent, time.Duration]("delay")

	// WithLogger sets the logger, slog.Default() is used otherwise.
	WithLogger = opts.ForName[Agent, *slog.Logger]("logger")

	// WithOnEvent registers a hook called for every received event.
	WithOnEvent = opts.ForName[Agent, func(pubsub.Event)]("onEvent")

	// WithOnAdvertisement registers a hook called for every advertised topic.
	WithOnAdvertisement = opts.ForName[Agent, func(pubsub.Topic)]("onAdvert")
)
