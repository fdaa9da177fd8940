package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Priya8975/checkout-webhooks/internal/domain"
	"github.com/Priya8975/checkout-webhooks/internal/metrics"
)

// Dispatcher runs one synchronous fan-out.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload json.RawMessage) (*domain.DispatchReport, error)
}

// DispatchRequest is an event waiting to be fanned out.
type DispatchRequest struct {
	EventType string
	Payload   json.RawMessage
}

// Pool runs dispatches in the background so callers on the checkout path
// never wait on subscriber endpoints.
type Pool struct {
	numWorkers int
	jobs       chan DispatchRequest
	dispatcher Dispatcher
	timeout    time.Duration
	logger     *slog.Logger
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a pool with numWorkers goroutines and room for
// queueSize pending requests. Each dispatch is bounded by timeout.
func NewPool(numWorkers, queueSize int, dispatcher Dispatcher, timeout time.Duration, logger *slog.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan DispatchRequest, queueSize),
		dispatcher: dispatcher,
		timeout:    timeout,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until it is closed or the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers, "queue_size", cap(p.jobs))
}

// TrySubmit enqueues req only if there is room right now. A full queue
// drops the request and reports false.
func (p *Pool) TrySubmit(req DispatchRequest) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.jobs <- req:
		metrics.QueueDepth.Inc()
		return true
	default:
		metrics.QueueDropped.Inc()
		p.logger.Warn("dispatch queue full, dropping event", "event_type", req.EventType)
		return false
	}
}

// Stop closes the jobs channel and waits for queued dispatches to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for req := range p.jobs {
		metrics.QueueDepth.Dec()
		select {
		case <-ctx.Done():
			p.logger.Warn("worker exiting with queued dispatches", "worker_id", id, "event_type", req.EventType)
			return
		default:
			p.run(ctx, id, req)
		}
	}
}

func (p *Pool) run(ctx context.Context, id int, req DispatchRequest) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	report, err := p.dispatcher.Dispatch(ctx, req.EventType, req.Payload)
	if err != nil {
		p.logger.Error("async dispatch rejected", "error", err, "worker_id", id, "event_type", req.EventType)
		return
	}
	p.logger.Debug("async dispatch finished",
		"worker_id", id,
		"event_id", report.EventID,
		"attempted", report.Attempted,
		"failed", report.Failed,
	)
}
