// Command tidings-agent is a non-interactive tidings agent.
//
// Every invocation restores the agent from its state file, reconnects to the
// broker under the saved subscriber ID, runs one command and saves the state
// again. Deliveries queued while the agent was away arrive during the next
// invocation; use watch to stay connected and print them as they come.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/casualjim/tidings/client"
	"github.com/casualjim/tidings/internal/config"
	"github.com/casualjim/tidings/internal/logging"
	"github.com/casualjim/tidings/internal/transport/natsrpc"
	"github.com/casualjim/tidings/pkg/natsx"
	_ "github.com/joho/godotenv/autoload"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries the settings shared by all subcommands.
type app struct {
	cfg    config.Agent
	raw    bool
	out    io.Writer
	logger *slog.Logger

	// connect opens the NATS connection, replaced in tests.
	connect func(url string) (*nats.Conn, error)
}

func newRootCommand(out io.Writer) *cobra.Command {
	a := &app{
		out: out,
		connect: func(url string) (*nats.Conn, error) {
			return natsx.NewClient(url, nats.Name("tidings-agent"), nats.Compression(true))
		},
	}
	var flagged config.Agent

	cmd := &cobra.Command{
		Use:           "tidings-agent",
		Short:         "Advertise, publish and subscribe through a tidings broker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadAgent()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("nats") {
				cfg.NATSURL = flagged.NATSURL
			}
			if flags.Changed("prefix") {
				cfg.Prefix = flagged.Prefix
			}
			if flags.Changed("state") {
				cfg.StateFile = flagged.StateFile
			}
			if flags.Changed("timeout") {
				cfg.RequestTimeout = flagged.RequestTimeout
			}
			a.cfg = cfg
			if a.logger == nil {
				a.logger = logging.New(os.Stderr, cfg.Log.Level, cfg.Log.JSON)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&flagged.NATSURL, "nats", "", "NATS server URL (default $NATS_URL or "+nats.DefaultURL+")")
	flags.StringVar(&flagged.Prefix, "prefix", natsrpc.DefaultPrefix, "subject prefix of the broker")
	flags.StringVar(&flagged.StateFile, "state", "agent.json", "file the agent state is kept in between runs")
	flags.DurationVar(&flagged.RequestTimeout, "timeout", 5*time.Second, "time limit of a single broker request")
	flags.BoolVar(&a.raw, "raw", false, "print raw values instead of formatted output")

	cmd.AddCommand(
		a.advertiseCommand(),
		a.publishCommand(),
		a.subscribeCommand(),
		a.unsubscribeCommand(),
		a.keywordCommand(),
		a.topicsCommand(),
		a.inboxCommand(),
		a.watchCommand(),
		a.schemaCommand(),
	)
	return cmd
}

// session is one connected run of the agent.
type session struct {
	agent    *client.Agent
	conn     *nats.Conn
	listener *natsrpc.Listener
	app      *app
}

// open restores or creates the agent, starts serving its callbacks and
// connects it to the broker.
func (a *app) open(ctx context.Context, options ...client.Option) (*session, error) {
	nc, err := a.connect(a.cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	server, err := natsrpc.NewClient(nc,
		natsrpc.WithClientPrefix(a.cfg.Prefix),
		natsrpc.WithRequestTimeout(a.cfg.RequestTimeout),
	)
	if err != nil {
		nc.Close()
		return nil, err
	}

	options = append([]client.Option{
		client.WithAttempts(a.cfg.RetryAttempts),
		client.WithRetryDelay(a.cfg.RetryDelay),
		client.WithLogger(a.logger),
	}, options...)

	agent, err := client.LoadState(a.cfg.StateFile, server, options...)
	if errors.Is(err, client.ErrNoState) {
		agent, err = client.New(server, append(options, client.WithIdentity(natsrpc.NewIdentity(a.cfg.Prefix)))...)
	}
	if err != nil {
		nc.Close()
		return nil, err
	}

	listener, err := natsrpc.Listen(ctx, nc, agent, natsrpc.WithListenerLogger(a.logger))
	if err != nil {
		nc.Close()
		return nil, err
	}
	if err := agent.Start(ctx); err != nil {
		_ = listener.Close()
		nc.Close()
		return nil, err
	}
	return &session{agent: agent, conn: nc, listener: listener, app: a}, nil
}

// close stops serving callbacks, then unbinds the agent and saves its state.
// Deliveries that miss the agent stay queued at the broker.
func (s *session) close(ctx context.Context) error {
	err := s.listener.Close()
	err = errors.Join(err, s.agent.SaveState(ctx, s.app.cfg.StateFile))
	s.conn.Close()
	return err
}

// within runs fn in a session and always closes it.
func (a *app) within(ctx context.Context, fn func(*session) error, options ...client.Option) (err error) {
	s, err := a.open(ctx, options...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.close(context.WithoutCancel(ctx)))
	}()
	return fn(s)
}
