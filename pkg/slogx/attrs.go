package slogx

import "log/slog"

// Error returns a slog.Attr with key "error" holding the error message.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// SubscriberID is the attribute used for subscriber identifiers.
func SubscriberID(id int) slog.Attr {
	return slog.Int("subscriber_id", id)
}

// TopicID is the attribute used for topic identifiers.
func TopicID(id int) slog.Attr {
	return slog.Int("topic_id", id)
}

// EventID is the attribute used for event identifiers.
func EventID(id int) slog.Attr {
	return slog.Int("event_id", id)
}

// Pending is the attribute used for the size of a pending set or queue.
func Pending(n int) slog.Attr {
	return slog.Int("pending", n)
}

const (
	// KeyLoggerName is the key for the component that emitted a record.
	KeyLoggerName = "logger"
)

// LoggerName returns an attribute naming the emitting component.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}
