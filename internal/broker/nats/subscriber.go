// Package nats feeds events published by other services into the
// asynchronous dispatch queue.
package nats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Priya8975/checkout-webhooks/internal/worker"
)

// drainTimeout bounds how long Close waits for buffered messages.
const drainTimeout = 10 * time.Second

// QueueGroup load-balances messages across service replicas so each event
// is dispatched once.
const QueueGroup = "checkout-webhooks"

// Queue accepts events for background fan-out.
type Queue interface {
	TrySubmit(req worker.DispatchRequest) bool
}

// Subscriber turns NATS messages into dispatch requests. The subject is
// the event type and the message body the JSON payload.
type Subscriber struct {
	conn   *nats.Conn
	queue  Queue
	logger *slog.Logger

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed chan struct{}
}

// Connect dials the NATS server with reconnects enabled.
func Connect(url, name string, queue Queue, logger *slog.Logger) (*Subscriber, error) {
	closed := make(chan struct{})
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.DrainTimeout(drainTimeout),
		nats.ClosedHandler(func(*nats.Conn) {
			close(closed)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	return &Subscriber{conn: conn, queue: queue, logger: logger, closed: closed}, nil
}

// Subscribe starts listening on every subject pattern.
func (s *Subscriber) Subscribe(subjects ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, subject := range subjects {
		sub, err := s.conn.QueueSubscribe(subject, QueueGroup, s.handleMessage)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
		s.logger.Info("listening for events", "subject", subject, "queue_group", QueueGroup)
	}
	return nil
}

// Close drains every subscription, so messages already received are
// still queued, then waits for the connection to close.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs = nil
	if err := s.conn.Drain(); err != nil {
		s.logger.Warn("draining nats connection", "error", err)
		s.conn.Close()
	}

	select {
	case <-s.closed:
	case <-time.After(drainTimeout + time.Second):
		s.logger.Warn("nats drain did not finish in time")
	}
}

func (s *Subscriber) handleMessage(msg *nats.Msg) {
	payload := json.RawMessage(msg.Data)
	if len(payload) > 0 && !json.Valid(payload) {
		s.logger.Warn("dropping message with invalid JSON", "subject", msg.Subject)
		return
	}

	if !s.queue.TrySubmit(worker.DispatchRequest{EventType: msg.Subject, Payload: payload}) {
		s.logger.Warn("dispatch queue full, message dropped", "subject", msg.Subject)
		return
	}
	s.logger.Debug("event queued from nats", "event_type", msg.Subject)
}
