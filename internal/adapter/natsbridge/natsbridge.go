// Package natsbridge publishes dispatcher events onto a NATS subject
// tree, for deployments that fan telemetry out to other processes
// instead of (or alongside) the in-process WebSocket broadcaster. It
// satisfies telemetry.Sink.
package natsbridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/asgard/telemetry-core/internal/obslog"
)

// subjectPrefix namespaces every published subject under one root so
// multiple telemetry-core deployments can share a NATS cluster.
const subjectPrefix = "telemetry"

// Config holds the bridge's connection tunables.
type Config struct {
	URL           string
	ClientName    string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns sane defaults for a single-process deployment.
func DefaultConfig(url string) Config {
	return Config{
		URL:           url,
		ClientName:    "telemetry-core",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Bridge publishes events to NATS. Obtain one from Connect; Emit logs
// and drops a payload that fails to marshal or publish rather than
// blocking the caller.
type Bridge struct {
	cfg Config
	nc  *nats.Conn
	log *obslog.Logger
}

// Connect dials the configured NATS server.
func Connect(cfg Config) (*Bridge, error) {
	opts := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("natsbridge: connect to %s: %w", cfg.URL, err)
	}

	return &Bridge{cfg: cfg, nc: nc, log: obslog.New("natsbridge")}, nil
}

// Emit implements telemetry.Sink, publishing payload as JSON on
// "telemetry.<topic>" with ':' replaced by '.' to match NATS subject
// conventions.
func (b *Bridge) Emit(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Warn("marshal failed for topic %s: %v", topic, err)
		return
	}

	subject := subjectPrefix + "." + natsSubject(topic)
	if err := b.nc.Publish(subject, data); err != nil {
		b.log.Warn("publish to %s failed: %v", subject, err)
		return
	}
	b.log.Debug("published %d bytes to %s", len(data), subject)
}

// Close drains and closes the underlying connection.
func (b *Bridge) Close() {
	if b.nc == nil {
		return
	}
	if err := b.nc.Drain(); err != nil {
		b.log.Warn("drain failed: %v", err)
	}
}

func natsSubject(topic string) string {
	out := make([]rune, 0, len(topic))
	for _, r := range topic {
		if r == ':' {
			out = append(out, '.')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
