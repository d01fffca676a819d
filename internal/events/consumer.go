// Package events consumes analysis status events from the message bus and
// feeds them to the orchestrator. The transport preserves per-task ordering;
// delivery is at-least-once, so the orchestrator's event handling is
// idempotent for terminal events.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/reviewlens/reviewlens/internal/analysis"
	"github.com/reviewlens/reviewlens/internal/metrics"
	"github.com/reviewlens/reviewlens/internal/store"
	"github.com/reviewlens/reviewlens/pkg/models"
)

// Handler applies one analysis event. Satisfied by *analysis.Service.
type Handler interface {
	HandleEvent(ctx context.Context, evt models.AnalysisEvent) error
}

// disposition says what the consumer should do with a delivery.
type disposition int

const (
	dispositionAck disposition = iota
	dispositionDrop
	dispositionRequeue
)

// Consumer reads AnalysisEvent messages from an AMQP queue.
type Consumer struct {
	channel    *amqp.Channel
	exchange   string
	routingKey string
	queue      string
	handler    Handler
}

// NewConsumer declares the exchange, queue and binding, and sets a prefetch
// of 1 so one slow event does not pile deliveries onto this consumer.
func NewConsumer(conn *amqp.Connection, exchange, routingKey, queue string, handler Handler) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, err
	}
	if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		return nil, err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, err
	}

	return &Consumer{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		queue:      queue,
		handler:    handler,
	}, nil
}

// Start consumes until the context is cancelled or the channel closes. A
// single malformed or unresolvable event is dropped with a log line; it never
// stops the loop.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	slog.Info("event consumer started", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			slog.Info("event consumer shutting down")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				slog.Warn("event channel closed")
				return nil
			}
			switch c.process(ctx, msg.Body) {
			case dispositionAck:
				_ = msg.Ack(false)
			case dispositionDrop:
				_ = msg.Nack(false, false)
			case dispositionRequeue:
				_ = msg.Nack(false, true)
			}
		}
	}
}

// process decodes and applies one delivery body and decides its fate.
func (c *Consumer) process(ctx context.Context, body []byte) disposition {
	var evt models.AnalysisEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		slog.Error("malformed event dropped", "error", err)
		metrics.EventsConsumed.WithLabelValues("malformed").Inc()
		return dispositionDrop
	}
	// Some producers emit request_id instead of task_id for the same value.
	if evt.TaskID == "" && evt.RequestID != "" {
		evt.TaskID = evt.RequestID
	}

	err := c.handler.HandleEvent(ctx, evt)
	switch {
	case err == nil:
		metrics.EventsConsumed.WithLabelValues("ok").Inc()
		return dispositionAck
	case errors.Is(err, store.ErrNotFound), errors.Is(err, analysis.ErrInvalidEvent):
		slog.Error("unresolvable event dropped", "task_id", evt.TaskID, "error", err)
		metrics.EventsConsumed.WithLabelValues("dropped").Inc()
		return dispositionDrop
	default:
		slog.Warn("event handling failed, requeueing", "task_id", evt.TaskID, "error", err)
		metrics.EventsConsumed.WithLabelValues("requeued").Inc()
		return dispositionRequeue
	}
}
