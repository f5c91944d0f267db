package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/casualjim/tidings/client"
	"github.com/casualjim/tidings/internal/agentfmt"
	"github.com/casualjim/tidings/internal/transport/natsrpc"
	"github.com/casualjim/tidings/pkg/slogx"
	"github.com/casualjim/tidings/pubsub"
	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"
)

func (a *app) printRaw(values ...any) {
	printer := pp.New()
	printer.SetOutput(a.out)
	printer.SetColoringEnabled(!color.NoColor)
	printer.Println(values...)
}

func (a *app) findTopic(ctx context.Context, s *session, name string) (pubsub.Topic, error) {
	topic, ok, err := s.agent.FindTopic(ctx, name)
	if err != nil {
		return pubsub.Topic{}, err
	}
	if !ok {
		return pubsub.Topic{}, fmt.Errorf("topic %q is not listed", name)
	}
	return topic, nil
}

func (a *app) advertiseCommand() *cobra.Command {
	var keywords string
	cmd := &cobra.Command{
		Use:   "advertise NAME",
		Short: "Create a topic and advertise it to every agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.within(ctx, func(s *session) error {
				topic, err := s.agent.Advertise(ctx, pubsub.NewTopic(args[0], pubsub.ParseKeywords(keywords)...))
				if errors.Is(err, pubsub.ErrTopicExists) {
					return fmt.Errorf("topic %q already exists, pick another name", args[0])
				}
				if err != nil {
					return err
				}
				if a.raw {
					a.printRaw(topic)
					return nil
				}
				fmt.Fprintln(a.out, agentfmt.Topic(topic))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&keywords, "keywords", "k", "", "comma separated topic keywords")
	return cmd
}

func (a *app) publishCommand() *cobra.Command {
	var keywords string
	cmd := &cobra.Command{
		Use:   "publish TOPIC TITLE [CONTENT]",
		Short: "Publish an event on an advertised topic",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var content string
			if len(args) == 3 {
				content = args[2]
			}
			return a.within(ctx, func(s *session) error {
				topic, err := a.findTopic(ctx, s, args[0])
				if err != nil {
					return err
				}
				event, err := s.agent.Publish(ctx, pubsub.NewEvent(topic, args[1], content, pubsub.ParseKeywords(keywords)...))
				if err != nil {
					return err
				}
				if a.raw {
					a.printRaw(event)
					return nil
				}
				fmt.Fprintln(a.out, agentfmt.Event(event))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&keywords, "keywords", "k", "", "comma separated event keywords, the topic keywords otherwise")
	return cmd
}

func (a *app) subscribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe TOPIC...",
		Short: "Subscribe to topics by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.within(ctx, func(s *session) error {
				for _, name := range args {
					topic, err := a.findTopic(ctx, s, name)
					if err != nil {
						return err
					}
					added, err := s.agent.Subscribe(ctx, topic)
					if err != nil {
						return err
					}
					if added {
						fmt.Fprintf(a.out, "subscribed to %s\n", color.CyanString(topic.Name))
					} else {
						fmt.Fprintf(a.out, "already subscribed to %s\n", color.CyanString(topic.Name))
					}
				}
				return nil
			})
		},
	}
}

func (a *app) unsubscribeCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "unsubscribe [TOPIC...]",
		Short: "Unsubscribe from topics, or from everything with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("name topics or pass --all, not both")
			}
			ctx := cmd.Context()
			return a.within(ctx, func(s *session) error {
				if all {
					if err := s.agent.UnsubscribeAll(ctx); err != nil {
						return err
					}
					fmt.Fprintln(a.out, "unsubscribed from all topics and keywords")
					return nil
				}
				for _, name := range args {
					topic, err := a.findTopic(ctx, s, name)
					if err != nil {
						return err
					}
					removed, err := s.agent.Unsubscribe(ctx, topic)
					if err != nil {
						return err
					}
					if removed {
						fmt.Fprintf(a.out, "unsubscribed from %s\n", color.CyanString(topic.Name))
					} else {
						fmt.Fprintf(a.out, "was not subscribed to %s\n", color.CyanString(topic.Name))
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "drop every topic and keyword subscription")
	return cmd
}

func (a *app) keywordCommand() *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "keyword KEYWORD...",
		Short: "Receive every event carrying a keyword, whatever its topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.within(ctx, func(s *session) error {
				for _, kw := range args {
					var changed bool
					var err error
					if remove {
						changed, err = s.agent.UnsubscribeKeyword(ctx, kw)
					} else {
						changed, err = s.agent.SubscribeKeyword(ctx, kw)
					}
					if errors.Is(err, pubsub.ErrInvalidKeyword) {
						return fmt.Errorf("keyword %q is empty", kw)
					}
					if err != nil {
						return err
					}
					state := "unchanged"
					if changed && remove {
						state = "removed"
					} else if changed {
						state = "added"
					}
					fmt.Fprintf(a.out, "%s %s\n", color.YellowString(strings.TrimSpace(kw)), state)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "withdraw the keyword subscriptions instead")
	return cmd
}

func (a *app) topicsCommand() *cobra.Command {
	var style string
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List the advertised topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.within(ctx, func(s *session) error {
				topics, err := s.agent.Topics(ctx)
				if err != nil {
					return err
				}
				if a.raw {
					a.printRaw(topics)
					return nil
				}
				r, err := agentfmt.NewTableRenderer(style)
				if err != nil {
					return err
				}
				return r.Topics(a.out, topics)
			})
		},
	}
	cmd.Flags().StringVar(&style, "style", "", "glamour style of the table (dark, light, notty), picked from the terminal otherwise")
	return cmd
}

func (a *app) inboxCommand() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Show received events and topics, subscriptions and what this agent published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.within(ctx, func(s *session) error {
				if wait > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(wait):
					}
				}
				state := s.agent.State()
				if a.raw {
					a.printRaw(state)
					return nil
				}
				a.printInbox(state)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "stay connected this long so deliveries queued at the broker can arrive")
	return cmd
}

func (a *app) printInbox(state client.State) {
	fmt.Fprintf(a.out, "agent %d (%s)\n", state.ID, state.Identity)

	section := func(title string, n int) bool {
		fmt.Fprintf(a.out, "\n%s (%d)\n", color.New(color.Bold).Sprint(title), n)
		return n > 0
	}
	if section("received events", len(state.ReceivedEvents)) {
		for _, e := range state.ReceivedEvents {
			fmt.Fprintln(a.out, "  "+agentfmt.Event(e))
		}
	}
	if section("received topics", len(state.ReceivedTopics)) {
		for _, t := range state.ReceivedTopics {
			fmt.Fprintln(a.out, "  "+agentfmt.Topic(t))
		}
	}
	if section("subscribed topics", len(state.Subscribed)) {
		for _, t := range state.Subscribed {
			fmt.Fprintln(a.out, "  "+agentfmt.Topic(t))
		}
	}
	if section("keywords", len(state.Keywords)) {
		fmt.Fprintln(a.out, "  "+color.YellowString(strings.Join(state.Keywords, ", ")))
	}
	if section("advertised topics", len(state.Advertised)) {
		for _, t := range state.Advertised {
			fmt.Fprintln(a.out, "  "+agentfmt.Topic(t))
		}
	}
	if section("published events", len(state.Published)) {
		for _, e := range state.Published {
			fmt.Fprintln(a.out, "  "+agentfmt.Event(e))
		}
	}
}

func (a *app) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and print events and topics as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			feed := make(chan agentfmt.Notification, 64)
			onEvent := func(e pubsub.Event) {
				select {
				case feed <- agentfmt.Notification{Event: &e}:
				case <-ctx.Done():
				}
			}
			onAdvert := func(t pubsub.Topic) {
				select {
				case feed <- agentfmt.Notification{Topic: &t}:
				case <-ctx.Done():
				}
			}

			return a.within(ctx, func(s *session) error {
				a.logger.Info("watching, press ctrl-c to stop", slogx.SubscriberID(s.agent.ID()))
				err := agentfmt.Console(ctx, a.out, feed)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}, client.WithOnEvent(onEvent), client.WithOnAdvertisement(onAdvert))
		},
	}
}

func (a *app) schemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "schema [topic|event|request|reply]",
		Short:     "Print the JSON schemas of the wire documents",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"topic", "event", "request", "reply"},
		// no broker needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(_ *cobra.Command, args []string) error {
			schemas := natsrpc.Schemas()
			var doc any = schemas
			if len(args) == 1 {
				schema, ok := schemas[args[0]]
				if !ok {
					names := make([]string, 0, len(schemas))
					for name := range schemas {
						names = append(names, name)
					}
					slices.Sort(names)
					return fmt.Errorf("unknown schema %q, pick one of %s", args[0], strings.Join(names, ", "))
				}
				doc = schema
			}
			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, string(data))
			return err
		},
	}
}
