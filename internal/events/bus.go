// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/huddle/internal/config"
	"github.com/tomtom215/huddle/internal/metrics"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event bus closed")

// ErrSubscribeUnsupported is returned by Subscribe on publish-only backends.
var ErrSubscribeUnsupported = errors.New("subscribe not supported by this backend")

// Bus publishes JSON-encoded domain events.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	prefix     string
	logger     watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// NewBus builds the backend named by cfg.Backend.
func NewBus(cfg config.EventsConfig, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	b := &Bus{prefix: cfg.TopicPrefix, logger: logger}

	switch cfg.Backend {
	case "", BackendGoChannel:
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		b.publisher = ch
		b.subscriber = ch

	case BackendNATS:
		pub, err := newNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			return nil, err
		}
		b.publisher = pub

	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}

	return b, nil
}

func newNATSPublisher(url string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	natsOpts := []natsgo.Option{
		natsgo.Name("huddle"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}
	return pub, nil
}

// Topic returns the full topic name for a relative topic.
func (b *Bus) Topic(topic string) string {
	if b.prefix == "" {
		return topic
	}
	return b.prefix + "." + topic
}

// Publish encodes payload as JSON and publishes it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload interface{}) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		metrics.RecordEventPublished(topic, err)
		return fmt.Errorf("encode %s event: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	msg.Metadata.Set("topic", topic)
	msg.Metadata.Set("content_type", "application/json")

	err = b.publisher.Publish(b.Topic(topic), msg)
	metrics.RecordEventPublished(topic, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns the message stream for a relative topic. Only the
// in-process backend supports it.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if b.subscriber == nil {
		return nil, ErrSubscribeUnsupported
	}
	return b.subscriber.Subscribe(ctx, b.Topic(topic))
}

// Serve blocks until ctx is done and then closes the bus.
func (b *Bus) Serve(ctx context.Context) error {
	<-ctx.Done()
	if err := b.Close(); err != nil {
		return err
	}
	return ctx.Err()
}

// Close releases the backend. It is safe to call more than once.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.publisher.Close()
}
