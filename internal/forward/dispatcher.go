package forward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ondrasimku/audio-relay/internal/domain"
)

var (
	ErrQueueFull  = errors.New("forward queue is full")
	ErrNotRunning = errors.New("dispatcher is not running")
)

// Sender delivers one upload downstream.
type Sender interface {
	Send(ctx context.Context, u domain.Upload) error
}

type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:   2,
		QueueSize: 64,
		Timeout:   30 * time.Second,
	}
}

// Dispatcher runs best-effort forwards off the request path. Accepted
// uploads are sent once; failures are logged and dropped.
type Dispatcher struct {
	config DispatcherConfig
	sender Sender
	logger *slog.Logger

	jobs    chan domain.Upload
	pending *inflight
	workers sync.WaitGroup
	cancel  context.CancelFunc

	mu      sync.RWMutex
	running bool
	started bool
}

func NewDispatcher(cfg DispatcherConfig, sender Sender, logger *slog.Logger) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Workers < 1 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	return &Dispatcher{
		config:  cfg,
		sender:  sender,
		logger:  logger,
		jobs:    make(chan domain.Upload, cfg.QueueSize),
		pending: newInflight(),
	}
}

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("dispatcher already started")
	}
	d.started = true
	d.running = true

	// Workers outlive the caller's context; only Stop ends them.
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel

	for i := 0; i < d.config.Workers; i++ {
		workerID := fmt.Sprintf("forwarder-%d", i+1)
		d.workers.Add(1)
		go func() {
			defer d.workers.Done()
			d.run(workerCtx, workerID)
		}()
	}

	d.logger.Info("Forward dispatcher started", "workers", d.config.Workers, "queue_size", d.config.QueueSize)
	return nil
}

// Submit enqueues u without blocking.
func (d *Dispatcher) Submit(u domain.Upload) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return ErrNotRunning
	}

	d.pending.add()
	select {
	case d.jobs <- u:
		return nil
	default:
		d.pending.done()
		return ErrQueueFull
	}
}

// Wait blocks until every accepted upload has been processed.
func (d *Dispatcher) Wait(ctx context.Context) error {
	select {
	case <-d.pending.idle():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new uploads, drains the accepted ones and stops the workers.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	drainErr := d.Wait(ctx)
	if drainErr != nil {
		d.logger.Warn("Timeout draining forward queue", "queued", len(d.jobs))
	}

	d.cancel()
	d.workers.Wait()

	d.logger.Info("Forward dispatcher stopped")
	return drainErr
}

func (d *Dispatcher) run(ctx context.Context, workerID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-d.jobs:
			d.process(ctx, workerID, u)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, workerID string, u domain.Upload) {
	defer d.pending.done()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Forward panicked", "worker", workerID, "filename", u.Filename, "panic", r)
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	start := time.Now()
	err := d.sender.Send(sendCtx, u)
	duration := time.Since(start)

	if err != nil {
		d.logger.Error("Failed to forward upload",
			"worker", workerID,
			"filename", u.Filename,
			"size", u.Size,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return
	}

	d.logger.Info("Forwarded upload",
		"worker", workerID,
		"filename", u.Filename,
		"size", u.Size,
		"duration_ms", duration.Milliseconds(),
	)
}

// inflight counts accepted uploads. Unlike a WaitGroup it can be waited
// on with a deadline and reused right after.
type inflight struct {
	mu     sync.Mutex
	n      int
	idleCh chan struct{}
}

func newInflight() *inflight {
	ch := make(chan struct{})
	close(ch)
	return &inflight{idleCh: ch}
}

func (f *inflight) add() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		f.idleCh = make(chan struct{})
	}
	f.n++
}

func (f *inflight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n--
	if f.n == 0 {
		close(f.idleCh)
	}
}

// idle is closed once the count drops to zero.
func (f *inflight) idle() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idleCh
}
