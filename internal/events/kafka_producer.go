package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"pigeon-auction/internal/models"
	"pigeon-auction/utils"

	"github.com/segmentio/kafka-go"
)

// ErrBufferFull is returned when the producer cannot queue another message
var ErrBufferFull = errors.New("events: producer buffer full")

// ErrProducerClosed is returned when publishing after Close
var ErrProducerClosed = errors.New("events: producer closed")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds producer settings
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	BufferSize   int
	WriteTimeout time.Duration
}

// KafkaProducer queues BidAccepted envelopes and writes them to Kafka from a single goroutine.
type KafkaProducer struct {
	w            messageWriter
	producer     string
	writeTimeout time.Duration
	inbox        chan kafka.Message
	done         chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewKafkaProducer creates a producer keyed by auction id so events of one auction stay ordered
func NewKafkaProducer(cfg KafkaConfig) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
	}
	return newKafkaProducer(w, cfg)
}

func newKafkaProducer(w messageWriter, cfg KafkaConfig) *KafkaProducer {
	buf := cfg.BufferSize
	if buf <= 0 {
		buf = 256
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	producer := cfg.ClientID
	if producer == "" {
		producer = "pigeon-auction"
	}
	return &KafkaProducer{
		w:            w,
		producer:     producer,
		writeTimeout: timeout,
		inbox:        make(chan kafka.Message, buf),
		done:         make(chan struct{}),
	}
}

// Run drains the inbox until Close is called, then flushes what is left and closes the writer.
func (p *KafkaProducer) Run() {
	defer close(p.done)
	for m := range p.inbox {
		p.write(m)
	}
	if err := p.w.Close(); err != nil {
		utils.Error("kafka producer: close writer failed", map[string]any{"error": err.Error()})
	}
}

func (p *KafkaProducer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		utils.Error("kafka producer: write failed", map[string]any{
			"key":   string(m.Key),
			"error": err.Error(),
		})
	}
}

// PublishBidAccepted queues the event without blocking on the broker.
func (p *KafkaProducer) PublishBidAccepted(_ context.Context, evt models.BidAccepted) error {
	env, err := NewBidAcceptedEnvelope(p.producer, evt)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(evt.AuctionID),
		Value: value,
		Time:  evt.AcceptedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventBidAccepted)},
			{Key: "event_id", Value: []byte(env.EventID)},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	select {
	case p.inbox <- msg:
		return nil
	default:
		return fmt.Errorf("%w - dropping event for auction %s", ErrBufferFull, evt.AuctionID)
	}
}

// Close stops accepting events and lets Run flush the queue.
func (p *KafkaProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// WaitClosed blocks until Run has flushed and closed the writer.
func (p *KafkaProducer) WaitClosed() { <-p.done }

var _ Publisher = (*KafkaProducer)(nil)
