// Package natsbroker wraps the NATS JetStream connection tracecore's
// binaries share: connect/drain lifecycle, idempotent stream provisioning,
// and publishing for the link-shortener domain.
package natsbroker

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectLinkEvents captures every message the CDC projector publishes
// under link-events, whatever the number of subject tokens after it.
const SubjectLinkEvents = "link-events.>"

// StreamSpec describes a JetStream stream a binary expects to exist before
// it publishes or consumes.
type StreamSpec struct {
	Name     string
	Subjects []string
}

// LinkEvents is the durable stream carrying every projected outbox row for
// the link-shortener domain.
var LinkEvents = StreamSpec{
	Name:     "LINK_EVENTS",
	Subjects: []string{SubjectLinkEvents},
}

// Client wraps a NATS connection and its JetStream context.
type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
	Log  *zap.Logger
}

// NewClient connects to url and initializes a JetStream context.
func NewClient(url string, logger *zap.Logger) (*Client, error) {
	nc, err := nats.Connect(url, nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("natsbroker: connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("natsbroker: jetstream: %w", err)
	}

	logger.Info("NATS JetStream connected", zap.String("url", url))
	return &Client{Conn: nc, JS: js, Log: logger}, nil
}

// Close drains pending publishes/deliveries before closing the connection,
// falling back to an immediate Close if Drain itself errors.
func (c *Client) Close() {
	if c.Conn == nil {
		return
	}
	if err := c.Conn.Drain(); err != nil {
		c.Conn.Close()
	}
}

// EnsureStream idempotently creates spec's stream if it does not exist yet.
func (c *Client) EnsureStream(spec StreamSpec) error {
	_, err := c.JS.StreamInfo(spec.Name)
	if err == nil {
		c.Log.Info("NATS stream already exists", zap.String("stream", spec.Name))
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("natsbroker: stream info %s: %w", spec.Name, err)
	}

	cfg := &nats.StreamConfig{
		Name:      spec.Name,
		Subjects:  spec.Subjects,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	}
	if _, err := c.JS.AddStream(cfg); err != nil {
		return fmt.Errorf("natsbroker: create stream %s: %w", spec.Name, err)
	}

	c.Log.Info("NATS stream provisioned",
		zap.String("stream", spec.Name),
		zap.Strings("subjects", spec.Subjects),
	)
	return nil
}

// Publish sends msg through JetStream and waits for the stream's ack.
func (c *Client) Publish(msg *nats.Msg) (*nats.PubAck, error) {
	ack, err := c.JS.PublishMsg(msg)
	if err != nil {
		return nil, fmt.Errorf("natsbroker: publish %s: %w", msg.Subject, err)
	}
	return ack, nil
}
