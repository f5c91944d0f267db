// Package agentfmt renders what a tidings agent sees for a terminal.
package agentfmt

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/casualjim/tidings/pubsub"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
)

// Notification is one push received by an agent: an event or an advertised
// topic.
type Notification struct {
	Event *pubsub.Event
	Topic *pubsub.Topic
}

// Console prints notifications as they arrive until in is closed or ctx ends.
func Console(ctx context.Context, w io.Writer, in <-chan Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-in:
			if !ok {
				return nil
			}
			switch {
			case n.Event != nil:
				fmt.Fprintln(w, Event(*n.Event))
			case n.Topic != nil:
				fmt.Fprintln(w, Topic(*n.Topic))
			}
		}
	}
}

// Event formats a received event on one line.
func Event(e pubsub.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s #%d %s %s", color.MagentaString("event"), e.ID, color.CyanString(e.Topic.Name), e.Title)
	if e.Content != "" {
		b.WriteString(": ")
		b.WriteString(e.Content)
	}
	if len(e.Keywords) > 0 {
		fmt.Fprintf(&b, " %s", color.YellowString("[%s]", strings.Join(e.Keywords, ", ")))
	}
	return b.String()
}

// Topic formats an advertised topic on one line.
func Topic(t pubsub.Topic) string {
	line := fmt.Sprintf("%s #%d %s", color.GreenString("topic"), t.ID, color.CyanString(t.Name))
	if len(t.Keywords) > 0 {
		line += " " + color.YellowString("[%s]", strings.Join(t.Keywords, ", "))
	}
	return line
}

// TopicsMarkdown renders topics as a markdown table.
func TopicsMarkdown(topics []pubsub.Topic) string {
	if len(topics) == 0 {
		return "_No topics advertised yet._\n"
	}
	var b strings.Builder
	b.WriteString("| ID | Name | Keywords |\n")
	b.WriteString("|---:|------|----------|\n")
	for _, t := range topics {
		fmt.Fprintf(&b, "| %d | %s | %s |\n", t.ID, escapeCell(t.Name), escapeCell(strings.Join(t.Keywords, ", ")))
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// TableRenderer renders markdown for a terminal.
type TableRenderer struct {
	glam *glamour.TermRenderer
}

// NewTableRenderer creates a renderer. An empty style picks one from the
// terminal background; "notty" renders plain text.
func NewTableRenderer(style string) (*TableRenderer, error) {
	opt := glamour.WithAutoStyle()
	if style != "" {
		opt = glamour.WithStandardStyle(style)
	}
	glam, err := glamour.NewTermRenderer(opt, glamour.WithWordWrap(100))
	if err != nil {
		return nil, err
	}
	return &TableRenderer{glam: glam}, nil
}

// Topics writes the topic table to w.
func (r *TableRenderer) Topics(w io.Writer, topics []pubsub.Topic) error {
	out, err := r.glam.Render(TopicsMarkdown(topics))
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}
