package store

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/avioncargo/precisionland/control"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/movement"
	"github.com/avioncargo/precisionland/utils"
)

// DefaultQueueSize bounds how many events wait for the database.
const DefaultQueueSize = 1024

const flushTimeout = 5 * time.Second

// pending is one queued event. Only the event is copied out of the snapshot so a backed up
// queue never pins frames.
type pending struct {
	runID string
	event movement.Event
}

// Recorder is a loop observer that writes each cycle's movement event to the store on its own
// goroutine. OnUpdate never blocks the loop: when the queue is full the event is dropped and
// counted.
type Recorder struct {
	store   *Store
	logger  logging.Logger
	queue   chan pending
	workers utils.StoppableWorkers

	written  atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
	dropWarn rate.Sometimes
	failWarn rate.Sometimes
}

// NewRecorder starts a recorder writing to store.
func NewRecorder(store *Store, queueSize int, logger logging.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	r := &Recorder{
		store:    store,
		logger:   logger,
		queue:    make(chan pending, queueSize),
		dropWarn: rate.Sometimes{First: 1, Interval: 10 * time.Second},
		failWarn: rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	r.workers = utils.NewStoppableWorkers(r.drain)
	return r
}

// OnUpdate queues the snapshot's movement event, if it has one.
func (r *Recorder) OnUpdate(_ context.Context, snap control.Snapshot) error {
	if snap.Tracking.Movement == nil {
		return nil
	}
	select {
	case r.queue <- pending{runID: snap.RunID, event: *snap.Tracking.Movement}:
	default:
		r.dropped.Add(1)
		r.dropWarn.Do(func() {
			r.logger.Warnw("movement recorder is behind; dropping events", "dropped", r.dropped.Load())
		})
	}
	return nil
}

func (r *Recorder) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return
		case p := <-r.queue:
			r.write(ctx, p)
		}
	}
}

// flush writes whatever is still queued once the recorder is closing.
func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		select {
		case p := <-r.queue:
			r.write(ctx, p)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, p pending) {
	if err := r.store.Insert(ctx, p.runID, p.event); err != nil {
		r.failed.Add(1)
		r.failWarn.Do(func() {
			r.logger.Warnw("cannot record movement", "run_id", p.runID, "error", err)
		})
		return
	}
	r.written.Add(1)
}

// Counts reports how many events were written, dropped, and failed.
func (r *Recorder) Counts() (written, dropped, failed uint64) {
	return r.written.Load(), r.dropped.Load(), r.failed.Load()
}

// Close flushes the queue and stops the writer. The store stays open.
func (r *Recorder) Close() {
	r.workers.Stop()
	written, dropped, failed := r.Counts()
	r.logger.Infow("movement recorder stopped", "written", written, "dropped", dropped, "failed", failed)
}
