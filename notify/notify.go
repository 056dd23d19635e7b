// Package notify announces rebuilt graphs over NATS so running servers can
// hot-reload them.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// GraphRebuilt is published after the builder stores a new graph.
type GraphRebuilt struct {
	Version string    `json:"version"`
	Source  string    `json:"source"` // "file" or "db"
	Path    string    `json:"path,omitempty"`
	Nodes   int       `json:"nodes"`
	BuiltAt time.Time `json:"built_at"`
}

func (e GraphRebuilt) validate() error {
	if e.Version == "" {
		return fmt.Errorf("graph event has no version")
	}
	if e.Source != "file" && e.Source != "db" {
		return fmt.Errorf("graph event has unknown source %q", e.Source)
	}
	if e.Source == "file" && e.Path == "" {
		return fmt.Errorf("file graph event has no path")
	}
	return nil
}

func encode(e GraphRebuilt) ([]byte, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

func decode(data []byte) (GraphRebuilt, error) {
	var e GraphRebuilt
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("decode graph event: %w", err)
	}
	return e, e.validate()
}

// Notifier publishes and receives graph events on one subject.
type Notifier struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

// Connect dials NATS. Reconnects are retried forever.
func Connect(url, subject string, logger *zap.Logger) (*Notifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "notify"))
	nc, err := nats.Connect(url,
		nats.Name("precinct-nav"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Notifier{nc: nc, subject: subject, logger: logger}, nil
}

// Publish sends an event and flushes it.
func (n *Notifier) Publish(e GraphRebuilt) error {
	data, err := encode(e)
	if err != nil {
		return err
	}
	if err := n.nc.Publish(n.subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	if err := n.nc.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	n.logger.Info("graph event published", zap.String("version", e.Version), zap.String("subject", n.subject))
	return nil
}

// Subscribe calls handle for every valid event. Invalid messages are logged
// and dropped.
func (n *Notifier) Subscribe(handle func(GraphRebuilt)) (*nats.Subscription, error) {
	sub, err := n.nc.Subscribe(n.subject, func(msg *nats.Msg) {
		e, err := decode(msg.Data)
		if err != nil {
			n.logger.Warn("invalid graph event dropped", zap.Error(err))
			return
		}
		handle(e)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	return sub, nil
}

// Close drains pending messages and closes the connection.
func (n *Notifier) Close() error {
	return n.nc.Drain()
}
