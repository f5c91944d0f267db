package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/casualjim/tidings/pkg/slogx"
	"github.com/casualjim/tidings/pubsub"
	json "github.com/goccy/go-json"
)

// State is the persisted form of an agent.
type State struct {
	ID             int            `json:"id"`
	Identity       string         `json:"identity"`
	ReceivedEvents []pubsub.Event `json:"received_events,omitempty"`
	ReceivedTopics []pubsub.Topic `json:"received_topics,omitempty"`
	Subscribed     []pubsub.Topic `json:"subscribed,omitempty"`
	Keywords       []string       `json:"keywords,omitempty"`
	Advertised     []pubsub.Topic `json:"advertised,omitempty"`
	Published      []pubsub.Event `json:"published,omitempty"`
}

// State returns a snapshot of the agent bookkeeping.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

func (a *Agent) stateLocked() State {
	return State{
		ID:             a.id,
		Identity:       a.identity,
		ReceivedEvents: cloneEvents(a.receivedEvents),
		ReceivedTopics: cloneTopics(a.receivedTopics),
		Subscribed:     cloneTopics(a.subscribed),
		Keywords:       append([]string(nil), a.keywords...),
		Advertised:     cloneTopics(a.advertised),
		Published:      cloneEvents(a.published),
	}
}

// SaveState unbinds the agent from the broker and writes its state to path.
// The broker keeps queuing deliveries for the agent until it reconnects.
//
// A push the broker started before the unbind may still arrive. The snapshot
// and the switch to detached happen under one lock: a push recorded before it
// is in the file, a later one fails with ErrDetached and stays queued on the
// broker. Start attaches the agent again.
func (a *Agent) SaveState(ctx context.Context, path string) error {
	id, err := a.connectedID()
	if err != nil {
		return err
	}
	err = a.retry(ctx, "unbind", func(ctx context.Context) error {
		return a.server.Unbind(ctx, id)
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.detached = true
	state := a.stateLocked()
	a.mu.Unlock()

	if err := writeState(path, state); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "agent state saved", slogx.SubscriberID(id), slog.String("path", path))
	return nil
}

func writeState(path string, state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode agent state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write agent state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write agent state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write agent state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write agent state: %w", err)
	}
	return nil
}

// ReadState reads a state file written by SaveState.
func ReadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("invalid agent state in %s: %w", path, err)
	}
	if state.Identity == "" {
		return State{}, fmt.Errorf("invalid agent state in %s: missing identity", path)
	}
	return state, nil
}

// LoadState restores an agent saved to path. Start reconnects it under the
// saved subscriber ID. A missing file yields ErrNoState.
func LoadState(path string, server pubsub.Broker, options ...Option) (*Agent, error) {
	state, err := ReadState(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, err
	}

	a, err := New(server, append(options, WithIdentity(state.Identity))...)
	if err != nil {
		return nil, err
	}
	a.id = state.ID
	a.receivedEvents = state.ReceivedEvents
	a.receivedTopics = state.ReceivedTopics
	a.subscribed = state.Subscribed
	a.keywords = state.Keywords
	a.advertised = state.Advertised
	a.published = state.Published
	return a, nil
}

// ErrNoState is returned by LoadState when there is no saved state.
var ErrNoState = errors.New("client: no saved agent state")
