package crm

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"voxloom/internal/models"
)

// Sender delivers one payload synchronously. Client satisfies this; tests
// substitute their own.
type Sender interface {
	Send(ctx context.Context, payload models.IntakePayload) error
}

// Dispatcher decouples CRM delivery from the request path: payloads are
// queued and posted by a fixed pool of workers. When the queue is full the
// payload is dropped with a log line; delivery is fire-and-forget with no
// retries, and a failed send never reaches the message pipeline's caller.
type Dispatcher struct {
	sender Sender
	jobs   chan models.IntakePayload
	log    *zap.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

const (
	defaultWorkers   = 2
	defaultQueueSize = 64
)

func NewDispatcher(sender Sender, workers, queueSize int, log *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		sender: sender,
		jobs:   make(chan models.IntakePayload, queueSize),
		log:    log,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Dispatch enqueues a payload without blocking the caller.
func (d *Dispatcher) Dispatch(payload models.IntakePayload) {
	select {
	case d.jobs <- payload:
	default:
		d.log.Warn("crm dispatch queue full, dropping payload",
			zap.String("session_id", payload.SessionID),
		)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for payload := range d.jobs {
		if err := d.sender.Send(context.Background(), payload); err != nil {
			d.log.Warn("crm dispatch failed",
				zap.String("session_id", payload.SessionID),
				zap.Error(err),
			)
		}
	}
}

// Close drains the queue and stops the workers.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.jobs)
	})
	d.wg.Wait()
}
