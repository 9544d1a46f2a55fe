package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"

	"github.com/vsm-systems/corevsm/internal/compress"
	"github.com/vsm-systems/corevsm/internal/eventstore"
)

// JetStreamConfig configures the durable NATS JetStream transport,
// mirroring the pack's ClusterJetStreamConfig field-for-field where the
// concerns coincide (URL, Prefix, retention knobs, ack tuning).
type JetStreamConfig struct {
	URL string
	Prefix string
	Name string
	MaxAge time.Duration
	Storage nats.StorageType
	Replicas int

	AckWait time.Duration
	MaxAckPending int
}

func (cfg JetStreamConfig) withDefaults() JetStreamConfig {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "vsm"
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 10 * time.Minute
	}
	if cfg.Storage == 0 {
		cfg.Storage = nats.MemoryStorage
	}
	if cfg.Replicas <= 0 {
		cfg.Replicas = 1
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.MaxAckPending <= 0 {
		cfg.MaxAckPending = 1024
	}
	return cfg
}

// JetStreamTransport is the durable Transport: every subject is backed
// by a JetStream stream so subscribers reconnecting after a crash
// resume from where they left off instead of losing in-flight events.
type JetStreamTransport struct {
	cfg JetStreamConfig
	nc *nats.Conn
	js nats.JetStreamContext
	codec compress.Compressor

	mu sync.Mutex
	subs []*nats.Subscription
}

// NewJetStreamTransport connects to NATS and ensures the backing stream
// exists for cfg.Prefix, covering every subject this transport will
// publish under (prefix.>).
func NewJetStreamTransport(cfg JetStreamConfig) (*JetStreamTransport, error) {
	cfg = cfg.withDefaults()

	nc, err := nats.Connect(cfg.URL, func(o *nats.Options) error {
		if cfg.Name != "" {
			o.Name = cfg.Name
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("broker: connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("broker: jetstream context: %w", err)
	}

	t := &JetStreamTransport{cfg: cfg, nc: nc, js: js, codec: compress.NewSnappyCompressor()}
	if err := t.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return t, nil
}

func (t *JetStreamTransport) streamName() string {
	return strings.ToUpper(strings.ReplaceAll(t.cfg.Prefix, ".", "_")) + "_EVENTS"
}

func (t *JetStreamTransport) subject(topic string) string {
	return t.cfg.Prefix + "." + topic
}

func (t *JetStreamTransport) ensureStream() error {
	name := t.streamName()
	if _, err := t.js.StreamInfo(name); err == nil {
		return nil
	}
	_, err := t.js.AddStream(&nats.StreamConfig{
		Name: name,
		Subjects: []string{t.cfg.Prefix + ".>"},
		Storage: t.cfg.Storage,
		MaxAge: t.cfg.MaxAge,
		Retention: nats.LimitsPolicy,
		Replicas: t.cfg.Replicas,
	})
	if err != nil {
		return fmt.Errorf("broker: add stream %s: %w", name, err)
	}
	return nil
}

// Publish encodes event as JSON, snappy-compresses the body for the hot
// broadcast path, and publishes it durably under prefix.<subject>,
// stamping the causality trace id as a header for consumers that only
// want to peek at routing metadata. A failed publish is retried up to
// three times with exponential backoff.
func (t *JetStreamTransport) Publish(ctx context.Context, subject string, event eventstore.Event) error {
	data, err := eventstore.EncodeEventJSON(event)
	if err != nil {
		return fmt.Errorf("broker: encode event: %w", err)
	}
	compressed, err := t.codec.Compress(data)
	if err != nil {
		return fmt.Errorf("broker: compress event: %w", err)
	}
	msg := &nats.Msg{
		Subject: t.subject(subject),
		Data: compressed,
		Header: nats.Header{},
	}
	msg.Header.Set("X-Trace-ID", event.Causality.TraceID)
	msg.Header.Set("X-Event-Type", event.EventType)
	msg.Header.Set("X-Codec", t.codec.Name())
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(func() error {
		_, err := t.js.PublishMsg(msg, nats.Context(ctx))
		return err
	}, policy)
}

type jetstreamSubscription struct {
	sub *nats.Subscription
}

func (s *jetstreamSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

// Subscribe durably consumes prefix.<subject> with manual ack:
// handler success acks, handler failure naks so JetStream redelivers
// after AckWait.
func (t *JetStreamTransport) Subscribe(ctx context.Context, subject string, handler Handler) (Subscription, error) {
	durable := durableName(t.cfg.Prefix, subject)
	sub, err := t.js.QueueSubscribe(
		t.subject(subject),
		durable,
		func(msg *nats.Msg) {
			raw, err := t.codec.Decompress(msg.Data)
			if err != nil {
				_ = msg.Nak()
				return
			}
			event, err := eventstore.DecodeEventJSON(raw)
			if err != nil {
				_ = msg.Nak()
				return
			}
			if err := handler(ctx, event); err != nil {
				_ = msg.Nak()
				return
			}
			_ = msg.Ack()
		},
		nats.Durable(durable),
		nats.ManualAck(),
		nats.AckWait(t.cfg.AckWait),
		nats.MaxAckPending(t.cfg.MaxAckPending),
	)
	if err != nil {
		return nil, fmt.Errorf("broker: subscribe %s: %w", subject, err)
	}

	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()

	return &jetstreamSubscription{sub: sub}, nil
}

// Close drains outstanding acks and closes the NATS connection.
func (t *JetStreamTransport) Close() error {
	t.mu.Lock()
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	return t.nc.Drain()
}

func durableName(prefix, subject string) string {
	name := prefix + "_" + subject
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
