package render

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
)

// DefaultQueueSize is the number of pending jobs a slot may hold.
const DefaultQueueSize = 16

// Runner executes a single render job.
type Runner interface {
	Run(ctx context.Context, job domain.RenderJob) error
}

// Compile-time interface checks.
var (
	_ Runner              = (*Pipeline)(nil)
	_ domain.JobSubmitter = (*Queue)(nil)
)

// QueueOption configures the Queue.
type QueueOption func(*Queue)

// WithQueueSize sets the per-slot capacity.
func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.size = n
		}
	}
}

// Queue gives every slot its own FIFO lane and worker. Lanes run
// concurrently with each other and with ingestion; jobs within a lane run
// one at a time, in submission order.
type Queue struct {
	runner Runner
	log    *logger.Logger
	size   int

	mu     sync.Mutex
	lanes  map[domain.SlotID]chan domain.RenderJob
	closed bool

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue creates lanes for slots 1..slots. Call Start to begin work.
func NewQueue(runner Runner, slots int, log *logger.Logger, opts ...QueueOption) *Queue {
	q := &Queue{
		runner: runner,
		log:    log,
		size:   DefaultQueueSize,
		lanes:  make(map[domain.SlotID]chan domain.RenderJob, slots),
	}
	for _, opt := range opts {
		opt(q)
	}
	for i := 1; i <= slots; i++ {
		q.lanes[domain.SlotID(i)] = make(chan domain.RenderJob, q.size)
	}
	return q
}

// Start launches one worker per slot. Jobs run under a context derived
// from ctx; cancelling it abandons running jobs, which still clean up.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.group = &errgroup.Group{}
	for id, lane := range q.lanes {
		q.group.Go(func() error {
			q.work(id, lane)
			return nil
		})
	}
	q.log.Info("render: queue started (%d slots, %d pending per slot)", len(q.lanes), q.size)
}

// Submit enqueues job on its slot's lane without blocking.
func (q *Queue) Submit(job domain.RenderJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return domain.ErrQueueClosed
	}
	lane, ok := q.lanes[job.Slot]
	if !ok {
		return fmt.Errorf("slot %d: %w", job.Slot, domain.ErrInvalidSlot)
	}
	select {
	case lane <- job:
		q.log.Debug("render: slot %d: queued (pending=%d)", job.Slot, len(lane))
		return nil
	default:
		return fmt.Errorf("slot %d: %w", job.Slot, domain.ErrQueueFull)
	}
}

// Pending returns the number of jobs waiting on the slot's lane.
func (q *Queue) Pending(id domain.SlotID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes[id])
}

// Close stops intake and waits for queued and running jobs to finish. If
// ctx expires first, running jobs are cancelled and ctx's error returned.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for _, lane := range q.lanes {
		close(lane)
	}
	q.mu.Unlock()

	if q.group == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		_ = q.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.log.Info("render: queue drained")
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		q.log.Warn("render: drain cut short: %v", ctx.Err())
		return ctx.Err()
	}
}

func (q *Queue) work(id domain.SlotID, lane <-chan domain.RenderJob) {
	for job := range lane {
		if q.ctx.Err() != nil {
			q.log.Debug("render: slot %d: dropping job, queue cancelled", id)
			continue
		}
		if err := q.runner.Run(q.ctx, job); err != nil {
			q.log.Error("render: slot %d: %v", id, err)
		}
	}
}
