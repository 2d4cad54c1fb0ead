package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"peak_analyzer/internal/metrics"
	"peak_analyzer/internal/store"
)

// Config selects the Kafka topic for session events. Publishing is
// disabled when Brokers is empty.
type Config struct {
	Brokers []string
	Topic   string
}

func (c Config) Enabled() bool {
	return len(c.Brokers) > 0
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type writeCloser interface {
	Close() error
}

const publisherQueueSize = 64

var (
	errPublisherNotStarted = errors.New("publisher not started")
	errPublisherStopped    = errors.New("publisher stopped")
)

// Publisher delivers session events to Kafka from a background loop so
// API requests never wait on the broker.
type Publisher struct {
	cfg       Config
	log       *slog.Logger
	writer    messageWriter
	closer    writeCloser
	enabled   bool
	queue     chan kafka.Message
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
}

// NewPublisher returns a Kafka-backed publisher, or a disabled one when no
// brokers are configured.
func NewPublisher(cfg Config, log *slog.Logger) (*Publisher, error) {
	if !cfg.Enabled() {
		log.Info("publisher_disabled")
		return &Publisher{cfg: cfg, log: log}, nil
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic must not be empty")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
		WriteTimeout:           10 * time.Second,
	}
	return newPublisherWithWriter(cfg, log, w, w), nil
}

func newPublisherWithWriter(cfg Config, log *slog.Logger, writer messageWriter, closer writeCloser) *Publisher {
	return &Publisher{
		cfg:     cfg,
		log:     log.With(slog.String("component", "publisher")),
		writer:  writer,
		closer:  closer,
		enabled: true,
		queue:   make(chan kafka.Message, publisherQueueSize),
	}
}

func (p *Publisher) Enabled() bool {
	return p.enabled
}

// Start launches the delivery loop. Only Stop ends it: cancelling ctx does
// not, so events raised while a server drains its requests still go out.
func (p *Publisher) Start(ctx context.Context) {
	if !p.enabled {
		return
	}
	p.startOnce.Do(func() {
		p.runCtx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
		p.started.Store(true)
		p.wg.Add(1)
		go p.run()
		p.log.Info("publisher_started", slog.String("topic", p.cfg.Topic))
	})
}

// Stop ends the loop after draining queued events, or when ctx expires.
func (p *Publisher) Stop(ctx context.Context) error {
	if !p.enabled {
		return nil
	}
	var stopErr error
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = ctx.Err()
		}
		if p.closer != nil {
			if err := p.closer.Close(); err != nil {
				p.log.Error("publisher_close_err", slog.Any("err", err))
			}
		}
		p.log.Info("publisher_stopped")
	})
	return stopErr
}

// PublishSession queues a summary event keyed by session ID.
func (p *Publisher) PublishSession(ctx context.Context, eventType string, sess store.Session) error {
	if !p.enabled {
		return nil
	}
	if !p.started.Load() {
		return errPublisherNotStarted
	}

	value, err := json.Marshal(NewSessionEvent(eventType, sess))
	if err != nil {
		metrics.PublishTotal.WithLabelValues("fail").Inc()
		return fmt.Errorf("encoding session event: %w", err)
	}
	msg := kafka.Message{Key: []byte(sess.ID), Value: value}

	select {
	case p.queue <- msg:
		return nil
	case <-ctx.Done():
		metrics.PublishTotal.WithLabelValues("fail").Inc()
		return ctx.Err()
	case <-p.runCtx.Done():
		metrics.PublishTotal.WithLabelValues("fail").Inc()
		return errPublisherStopped
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.runCtx.Done():
			p.drain()
			p.started.Store(false)
			return
		case msg := <-p.queue:
			p.deliver(p.runCtx, msg)
		}
	}
}

func (p *Publisher) drain() {
	// the run context is already cancelled; give leftovers a short window
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case msg := <-p.queue:
			p.deliver(ctx, msg)
		default:
			return
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, msg kafka.Message) {
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.PublishTotal.WithLabelValues("fail").Inc()
		p.log.Error("publish_err", slog.Any("err", err), slog.String("session", string(msg.Key)))
		return
	}
	metrics.PublishTotal.WithLabelValues("ok").Inc()
	p.log.Debug("publish_ok", slog.String("session", string(msg.Key)))
}
