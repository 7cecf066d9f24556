package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nekogravitycat/museum-booking-backend/internal/booking"
)

var (
	ErrQueueFull   = errors.New("notification queue is full")
	ErrQueueClosed = errors.New("notification queue is closed")
)

type QueueConfig struct {
	Workers     int
	Buffer      int
	MaxAttempts int
	Backoff     time.Duration // Delay before the second attempt, doubled after each failure
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Workers:     2,
		Buffer:      256,
		MaxAttempts: 3,
		Backoff:     2 * time.Second,
	}
}

// Queue is a booking.Notifier that renders messages and hands them to background workers.
// Enqueueing never blocks the caller.
type Queue struct {
	sender   Sender
	renderer Renderer
	cfg      QueueConfig
	log      *zap.Logger

	mu      sync.RWMutex
	msgs    chan Message
	closed  bool
	started bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

var _ booking.Notifier = (*Queue)(nil)

func NewQueue(sender Sender, renderer Renderer, cfg QueueConfig, log *zap.Logger) *Queue {
	def := DefaultQueueConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		sender:   sender,
		renderer: renderer,
		cfg:      cfg,
		log:      log.Named("notify"),
		msgs:     make(chan Message, cfg.Buffer),
	}
}

func (q *Queue) SendConfirmation(ctx context.Context, b *booking.Booking) error {
	return q.enqueue(q.renderer.Confirmation(b))
}

func (q *Queue) SendApproval(ctx context.Context, b *booking.Booking) error {
	return q.enqueue(q.renderer.Approval(b))
}

func (q *Queue) SendRejection(ctx context.Context, b *booking.Booking, reason string) error {
	return q.enqueue(q.renderer.Rejection(b, reason))
}

func (q *Queue) enqueue(msg Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.msgs <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the workers. Cancelling ctx aborts pending retries.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	q.ctx, q.cancel = context.WithCancel(ctx)

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work(i)
	}
	q.log.Info("notification queue started", zap.Int("workers", q.cfg.Workers), zap.Int("buffer", q.cfg.Buffer))
}

// Stop refuses new messages, waits for the workers to send what is already queued and returns.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.msgs)
	started := q.started
	q.mu.Unlock()

	if started {
		q.wg.Wait()
		q.cancel()
	}
	q.log.Info("notification queue stopped")
}

func (q *Queue) work(id int) {
	defer q.wg.Done()
	for msg := range q.msgs {
		q.deliver(msg, id)
	}
}

func (q *Queue) deliver(msg Message, worker int) {
	backoff := q.cfg.Backoff
	for attempt := 1; ; attempt++ {
		err := q.sender.Send(q.ctx, msg)
		if err == nil {
			return
		}

		fields := []zap.Field{
			zap.Int("worker", worker),
			zap.String("kind", string(msg.Kind)),
			zap.String("booking_id", msg.BookingID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		}
		if attempt >= q.cfg.MaxAttempts {
			q.log.Error("notification dropped", fields...)
			return
		}
		q.log.Warn("notification failed, retrying", append(fields, zap.Duration("backoff", backoff))...)

		select {
		case <-q.ctx.Done():
			q.log.Error("notification abandoned", fields...)
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
