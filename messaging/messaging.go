// Package messaging provides the NATS-backed messaging capability for
// sandboxed modules.
//
// Each running module instance owns at most one [Conn]. Incoming messages
// are delivered on an internal channel and forwarded into a bounded inbox
// by the connection's event loop ([Conn.Run]), which the host supervises as
// a companion task next to the module's execution. Sandboxed code consumes
// the inbox through the messaging host functions.
package messaging

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
)

const (
	// DefaultQueueSize bounds both the delivery channel and the inbox.
	DefaultQueueSize = 64
)

// Config is the optional messaging block of a module's runtime
// configuration. Its absence means the module runs without messaging.
type Config struct {
	// URL is the NATS server address, e.g. "nats://127.0.0.1:4222".
	URL string `toml:"url"`
	// Name identifies the connection to the server. Defaults to the
	// module name when left empty.
	Name string `toml:"name"`
	// Subjects are subscribed at connect time. Sandboxed code can add
	// more through the subscribe capability.
	Subjects []string `toml:"subjects"`
	// QueueSize bounds the inbox; 0 means DefaultQueueSize.
	QueueSize int `toml:"queue_size"`
}

// Message is one received message, as handed to the sandbox.
type Message struct {
	Subject string
	Data    []byte
}

// Conn is an established messaging connection for a single module
// instance. It is safe for concurrent use by the event loop and the host
// functions of the running instance.
type Conn struct {
	nc         *nats.Conn
	deliveries chan *nats.Msg
	inbox      chan Message
	closed     chan struct{}
	logger     *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect establishes a connection and subscribes to the configured
// subjects. On any subscription failure the connection is closed and the
// error returned; a half-subscribed connection is never handed out.
func Connect(cfg *Config, logger *slog.Logger) (*Conn, error) {
	if cfg.URL == "" {
		return nil, errors.New("messaging: url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	queue := cfg.QueueSize
	if queue <= 0 {
		queue = DefaultQueueSize
	}

	c := &Conn{
		deliveries: make(chan *nats.Msg, queue),
		inbox:      make(chan Message, queue),
		closed:     make(chan struct{}),
		logger:     logger,
	}

	opts := []nats.Option{
		nats.ClosedHandler(func(*nats.Conn) { close(c.closed) }),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	c.nc = nc

	for _, subject := range cfg.Subjects {
		if err := c.Subscribe(subject); err != nil {
			nc.Close()
			return nil, err
		}
	}

	return c, nil
}

// Publish sends data on the given subject.
func (c *Conn) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

// Subscribe adds a subscription delivering into the connection's inbox.
func (c *Conn) Subscribe(subject string) error {
	sub, err := c.nc.ChanSubscribe(subject, c.deliveries)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

// Next returns the oldest buffered message without blocking. The second
// return is false when nothing is pending.
func (c *Conn) Next() (Message, bool) {
	select {
	case msg := <-c.inbox:
		return msg, true
	default:
		return Message{}, false
	}
}

// Run is the connection's event loop. It forwards deliveries into the
// inbox until either a stop signal arrives or the connection is closed,
// whichever happens first. A full inbox drops the incoming message with a
// diagnostic rather than stalling the loop.
//
// Run returns nil on a clean stop and the connection's last error when the
// connection itself was torn down.
func (c *Conn) Run(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		case <-c.closed:
			return c.nc.LastError()
		case msg := <-c.deliveries:
			select {
			case c.inbox <- Message{Subject: msg.Subject, Data: msg.Data}:
			default:
				c.logger.Warn("messaging inbox full, dropping message",
					"subject", msg.Subject, "size", len(msg.Data))
			}
		}
	}
}

// Close unsubscribes everything and closes the underlying connection.
func (c *Conn) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	c.nc.Close()
}
