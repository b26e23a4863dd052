package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tech-arch1tect/gatekeep/services/logging"
	"go.uber.org/zap"
)

var ErrDispatcherStopped = errors.New("notification dispatcher stopped")

type job struct {
	kind  string
	email string
	run   func(ctx context.Context) error
}

// Dispatcher queues notifications and delivers them from worker goroutines
// so request latency does not depend on the mail server. A full queue drops
// the notification with an error log; delivery failures are logged only.
type Dispatcher struct {
	next    Notifier
	logger  *logging.Service
	timeout time.Duration

	mu      sync.RWMutex
	queue   chan job
	stopped bool
	wg      sync.WaitGroup
}

func NewDispatcher(next Notifier, queueSize, workers int, logger *logging.Service) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}

	d := &Dispatcher{
		next:    next,
		logger:  logger,
		timeout: 30 * time.Second,
		queue:   make(chan job, queueSize),
	}

	d.wg.Add(workers)
	for range workers {
		go d.work()
	}
	return d
}

func (d *Dispatcher) work() {
	defer d.wg.Done()

	for j := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := j.run(ctx); err != nil {
			d.logger.Error("notification delivery failed",
				zap.Error(err),
				zap.String("kind", j.kind),
				zap.String("email", j.email))
		}
		cancel()
	}
}

func (d *Dispatcher) enqueue(j job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrDispatcherStopped
	}

	select {
	case d.queue <- j:
		return nil
	default:
		d.logger.Error("notification queue full, dropping",
			zap.String("kind", j.kind),
			zap.String("email", j.email))
		return nil
	}
}

func (d *Dispatcher) SendVerification(_ context.Context, to Recipient, link string, expires time.Time) error {
	return d.enqueue(job{kind: KindVerification, email: to.Email, run: func(ctx context.Context) error {
		return d.next.SendVerification(ctx, to, link, expires)
	}})
}

func (d *Dispatcher) SendPasswordReset(_ context.Context, to Recipient, link string, expires time.Time) error {
	return d.enqueue(job{kind: KindPasswordReset, email: to.Email, run: func(ctx context.Context) error {
		return d.next.SendPasswordReset(ctx, to, link, expires)
	}})
}

func (d *Dispatcher) SendPasswordChanged(_ context.Context, to Recipient) error {
	return d.enqueue(job{kind: KindPasswordChanged, email: to.Email, run: func(ctx context.Context) error {
		return d.next.SendPasswordChanged(ctx, to)
	}})
}

// Stop refuses new notifications and waits for queued ones to drain, or
// for ctx to end.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("notification queue not drained before shutdown", zap.Int("pending", len(d.queue)))
		return ctx.Err()
	}
}
