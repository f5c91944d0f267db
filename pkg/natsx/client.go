package natsx

import (
	"cmp"
	"os"
	"time"

	"github.com/nats-io/nats.go"
)

// NewClient connects to the NATS server at url, falling back to the NATS_URL
// environment variable and then to nats.DefaultURL. Without explicit options
// the connection is named "tidings", compressed, and reconnects forever.
func NewClient(url string, opts ...nats.Option) (*nats.Conn, error) {
	if len(opts) == 0 {
		opts = append(opts,
			nats.Name("tidings"),
			nats.Compression(true),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second),
		)
	}
	return nats.Connect(cmp.Or(url, os.Getenv("NATS_URL"), nats.DefaultURL), opts...)
}
