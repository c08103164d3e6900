// ABOUTME: NATS client publishing outcome events and serving digest lookups
// ABOUTME: Handles connection, queue-group subscription and graceful shutdown

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hikmaai-io/hikmaai-warden/internal/observability"
)

// ErrNotConnected is returned when the client has no connection.
var ErrNotConnected = errors.New("not connected to NATS")

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	// NATS server URL.
	URL string

	// Subject receives outcome events.
	Subject string

	// LookupSubject serves digest lookups; empty disables them.
	LookupSubject string

	// Queue group name for load balancing lookups.
	QueueGroup string

	// Connection name for identification.
	Name string

	// Reconnect settings.
	MaxReconnects int
	ReconnectWait time.Duration

	// Timeout bounds the connect and flush.
	Timeout time.Duration
}

// DefaultNATSConfig returns a configuration with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Subject:       "warden.events",
		LookupSubject: "warden.lookup",
		QueueGroup:    "warden",
		Name:          "hikmaai-warden",
		MaxReconnects: -1, // Unlimited.
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Client wraps the NATS connection.
type Client struct {
	conn    *nats.Conn
	handler *Handler
	config  NATSConfig
	host    string
	logger  *slog.Logger
}

// NewClient creates a client. handler may be nil when lookups are not served.
func NewClient(cfg NATSConfig, handler *Handler, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	host, _ := os.Hostname()

	return &Client{
		handler: handler,
		config:  cfg,
		host:    host,
		logger:  logger,
	}
}

// Event message headers.
const (
	HeaderEventType     = "Warden-Event-Type"
	HeaderCorrelationID = "Warden-Correlation-ID"
)

func (c *Client) options() []nats.Option {
	return []nats.Option{
		nats.Name(c.config.Name),
		nats.Timeout(c.config.Timeout),
		nats.MaxReconnects(c.config.MaxReconnects),
		nats.ReconnectWait(c.config.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("NATS reconnected", slog.String("url", observability.RedactURL(nc.ConnectedUrl())))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			attrs := []any{slog.String("error", err.Error())}
			if sub != nil {
				attrs = append(attrs, slog.String("subject", sub.Subject))
			}
			c.logger.Error("NATS async error", attrs...)
		}),
	}
}

// Connect dials the server.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := nats.Connect(c.config.URL, c.options()...)
	if err != nil {
		return fmt.Errorf("connecting to NATS at %s: %w", observability.RedactURL(c.config.URL), err)
	}

	c.conn = conn
	c.logger.InfoContext(ctx, "connected to NATS",
		slog.String("url", observability.RedactURL(conn.ConnectedUrl())),
		slog.String("server_id", conn.ConnectedServerId()),
	)
	return nil
}

// Publish sends ev on the events subject. The event type and run id are
// repeated as headers so subscribers can filter without decoding.
func (c *Client) Publish(ctx context.Context, ev Event) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if ev.Host == "" {
		ev.Host = c.host
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	msg := nats.NewMsg(c.config.Subject)
	msg.Data = data
	msg.Header.Set(HeaderEventType, string(ev.Type))
	if ev.RunID != "" {
		msg.Header.Set(HeaderCorrelationID, ev.RunID)
	}
	if err := c.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing %s: %w", ev.Type, err)
	}

	c.logger.DebugContext(ctx, "published event",
		slog.String("type", string(ev.Type)),
		slog.String("subject", c.config.Subject),
	)
	return nil
}

// Subscribe starts answering lookups on LookupSubject.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	if c.handler == nil || c.config.LookupSubject == "" {
		return nil
	}

	_, err := c.conn.QueueSubscribe(c.config.LookupSubject, c.config.QueueGroup, func(msg *nats.Msg) {
		c.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", c.config.LookupSubject, err)
	}

	c.logger.InfoContext(ctx, "subscribed to NATS",
		slog.String("subject", c.config.LookupSubject),
		slog.String("queue", c.config.QueueGroup),
	)
	return nil
}

// handleMessage answers one lookup message.
func (c *Client) handleMessage(ctx context.Context, msg *nats.Msg) {
	ctx, span := observability.StartSpan(ctx, "nats.handle_lookup")
	defer span.End()

	c.respond(msg, HandleMessage(ctx, c.handler, msg.Data))
}

// HandleMessage decodes a single or batch lookup and returns the reply.
func HandleMessage(ctx context.Context, h *Handler, data []byte) any {
	var probe struct {
		Digests []string `json:"digests"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return LookupResponse{
			Status:    StatusError,
			Error:     "invalid request format: " + err.Error(),
			ScannedAt: time.Now().UTC(),
		}
	}

	if probe.Digests != nil {
		var req BatchLookupRequest
		_ = json.Unmarshal(data, &req)
		return h.ProcessBatch(ctx, req)
	}

	var req LookupRequest
	_ = json.Unmarshal(data, &req)
	return h.ProcessRequest(ctx, req)
}

func (c *Client) respond(msg *nats.Msg, resp any) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("failed to marshal response", slog.Any("error", err))
		return
	}
	if err := msg.Respond(data); err != nil {
		c.logger.Error("failed to send reply", slog.Any("error", err))
	}
}

// Close drains the lookup subscription and pending publishes, then
// closes the connection.
func (c *Client) Close() error {
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	if err := c.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		c.conn.Close()
		return fmt.Errorf("draining NATS connection: %w", err)
	}

	deadline := time.Now().Add(c.config.Timeout)
	for !c.conn.IsClosed() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	c.conn.Close()
	return nil
}

// IsConnected returns true if connected to NATS.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}
