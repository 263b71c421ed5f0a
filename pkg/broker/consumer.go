// Package broker feeds the dispatch pipeline from the message broker. One
// consumer loop runs per queue with manual acknowledgment: envelopes that
// cannot be decoded are discarded as poison, envelopes whose handling
// fails are requeued for redelivery.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailfleet/mailfleet/pkg/email"
	"github.com/mailfleet/mailfleet/pkg/metrics"
)

// Envelope is a broker-delivered unit wrapping a send request with a
// correlation id for tracing. One envelope corresponds to exactly one
// message created by the pipeline; redelivery after a requeue creates a
// new message (no deduplication by correlation id).
type Envelope struct {
	CorrelationID uuid.UUID       `json:"correlationId"`
	Payload       json.RawMessage `json:"payload"`
}

// Delivery is one fetched queue message plus the broker metadata needed
// to settle it.
type Delivery struct {
	Value []byte
	meta  any
}

// Queue is one logical broker queue with manual-acknowledgment semantics.
// The queue handle is owned exclusively by its consumer loop and must not
// be used concurrently from other goroutines.
type Queue interface {
	Name() string
	// Fetch blocks until a message is available or ctx is done.
	Fetch(ctx context.Context) (Delivery, error)
	// Ack removes the message from the queue.
	Ack(ctx context.Context, d Delivery) error
	// Discard rejects the message without requeue (poison message).
	Discard(ctx context.Context, d Delivery) error
	// Requeue rejects the message so the broker redelivers it.
	Requeue(ctx context.Context, d Delivery) error
	Close() error
}

// Handler processes one decoded envelope payload.
type Handler func(ctx context.Context, correlationID uuid.UUID, payload json.RawMessage) error

// Consumer runs one loop per registered queue until stopped. Cancellation
// is observed only between messages.
type Consumer struct {
	sink metrics.Sink
	log  *zap.SugaredLogger

	queues   []Queue
	handlers map[string]Handler

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewConsumer creates a consumer with no queues registered.
func NewConsumer(sink metrics.Sink, log *zap.SugaredLogger) *Consumer {
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &Consumer{
		sink:     sink,
		log:      log.Named("consumer"),
		handlers: make(map[string]Handler),
	}
}

// Register attaches a handler to a queue. Must be called before Start.
func (c *Consumer) Register(q Queue, h Handler) {
	c.queues = append(c.queues, q)
	c.handlers[q.Name()] = h
}

// Start launches one consumer goroutine per registered queue.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	for _, q := range c.queues {
		c.wg.Add(1)
		go func(q Queue) {
			defer c.wg.Done()
			c.consume(ctx, q, c.handlers[q.Name()])
		}(q)
	}
	c.log.Infow("Queue consumer started", "queues", len(c.queues))
}

// Stop cancels the consumer loops, waits for in-flight handlers to finish
// and closes all queues.
func (c *Consumer) Stop(ctx context.Context) error {
	c.log.Info("Queue consumer stopping")
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.log.Warnw("Timed out waiting for consumer loops to finish")
	}

	var errs []error
	for _, q := range c.queues {
		if err := q.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing queue %s: %w", q.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (c *Consumer) consume(ctx context.Context, q Queue, h Handler) {
	log := c.log.With("queue", q.Name())
	log.Info("Consumer loop started")

	for {
		d, err := q.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Consumer loop shutting down")
				return
			}
			log.Errorw("Failed to fetch message", "error", err)
			continue
		}
		// Shutdown interrupts fetching only: a fetched message is handled
		// and settled to completion even while Stop is cancelling the loop.
		c.handleOne(context.WithoutCancel(ctx), q, h, d, log)
	}
}

// handleOne settles exactly one delivery. Failure to decode is permanent
// (discard); failure to handle is treated as transient (requeue), which
// means a request whose processing permanently fails will be redelivered
// indefinitely unless the broker caps redelivery.
func (c *Consumer) handleOne(ctx context.Context, q Queue, h Handler, d Delivery, log *zap.SugaredLogger) {
	env, err := decodeEnvelope(d.Value)
	if err != nil {
		log.Warnw("Discarding undecodable message", "error", err)
		c.sink.MessageConsumed(q.Name(), "discard")
		if err := q.Discard(ctx, d); err != nil {
			log.Errorw("Failed to discard poison message", "error", err)
		}
		return
	}

	log = log.With("correlationId", env.CorrelationID)
	log.Info("Processing queue message")

	if err := h(ctx, env.CorrelationID, env.Payload); err != nil {
		if errors.Is(err, ErrBadPayload) {
			log.Warnw("Discarding message with undecodable payload", "error", err)
			c.sink.MessageConsumed(q.Name(), "discard")
			if err := q.Discard(ctx, d); err != nil {
				log.Errorw("Failed to discard poison message", "error", err)
			}
			return
		}
		log.Errorw("Failed to process queue message, requeueing", "error", err)
		c.sink.MessageConsumed(q.Name(), "requeue")
		if err := q.Requeue(ctx, d); err != nil {
			log.Errorw("Failed to requeue message", "error", err)
		}
		return
	}

	c.sink.MessageConsumed(q.Name(), "ack")
	if err := q.Ack(ctx, d); err != nil {
		log.Errorw("Failed to acknowledge message", "error", err)
	}
}

func decodeEnvelope(value []byte) (Envelope, error) {
	var env Envelope
	if len(bytes.TrimSpace(value)) == 0 {
		return env, errors.New("empty message body")
	}
	if err := json.Unmarshal(value, &env); err != nil {
		return env, fmt.Errorf("decoding envelope: %w", err)
	}
	if len(bytes.TrimSpace(env.Payload)) == 0 || bytes.Equal(bytes.TrimSpace(env.Payload), []byte("null")) {
		return env, errors.New("empty envelope payload")
	}
	return env, nil
}

// ErrBadPayload marks an envelope payload that does not decode to the
// expected request shape. Such messages are poison and are discarded
// rather than requeued.
var ErrBadPayload = errors.New("undecodable payload")

// SendHandler adapts the pipeline's direct send for the plain queue.
func SendHandler(svc *email.Service) Handler {
	return func(ctx context.Context, _ uuid.UUID, payload json.RawMessage) error {
		var p email.SendPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		_, err := svc.SendDirect(ctx, p.Email, p.Attachments)
		return err
	}
}

// SendTemplatedHandler adapts the pipeline's templated send for the
// templated queue.
func SendTemplatedHandler(svc *email.Service) Handler {
	return func(ctx context.Context, _ uuid.UUID, payload json.RawMessage) error {
		var p email.SendTemplatedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		_, err := svc.SendTemplated(ctx, p.Email, p.Attachments)
		return err
	}
}
