// Package history persists a transcript of the conversation to Postgres.
// Recording is fire and forget: a full queue or a dead database slows
// nothing down and loses only transcript rows, never flow state.
package history

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"

	"github.com/m3rciful/flowbot/core/flow/engine"
	"github.com/m3rciful/flowbot/core/logger"
)

const insertTimeout = 5 * time.Second

const insertRecord = `
	INSERT INTO message_log (id, turn_id, user_id, direction, node_id, variable, body)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Recorder buffers conversation records and writes them from background
// workers. It satisfies the engine observer contract.
type Recorder struct {
	db      *sqlx.DB
	insert  func(rec engine.Record) error
	queue   chan engine.Record
	wg      sync.WaitGroup
	dropped atomic.Int64

	// mu orders enqueues against Close so no send can race the channel
	// being closed.
	mu     sync.RWMutex
	closed bool
}

// New starts a recorder with the given queue capacity and worker count.
func New(db *sqlx.DB, queueSize, workers int) *Recorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 1
	}
	r := &Recorder{
		db:    db,
		queue: make(chan engine.Record, queueSize),
	}
	r.insert = r.insertRow
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	logger.Info(context.Background(), "hist", "recorder.started",
		slog.Int("queue", queueSize),
		slog.Int("messages", workers),
	)
	return r
}

// Observe enqueues a record without blocking. When the queue is full the
// record is dropped and counted.
func (r *Recorder) Observe(rec engine.Record) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- rec:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			logger.Warn(context.Background(), "hist", "recorder.saturated",
				slog.Int64("dropped", n),
				slog.Int("queue", cap(r.queue)),
			)
		}
	}
}

// Dropped returns how many records were discarded due to backpressure.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops intake and drains the queue before returning.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
	logger.Info(context.Background(), "hist", "recorder.stopped",
		slog.Int64("dropped", r.dropped.Load()),
	)
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for rec := range r.queue {
		if err := r.insert(rec); err != nil {
			logger.Warn(context.Background(), "hist", "recorder.insert_failed",
				slog.String("turn_id", rec.TurnID),
				slog.Int64("user_id", rec.UserID),
				slog.String("err", err.Error()),
			)
		}
	}
}

func (r *Recorder) insertRow(rec engine.Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	id := ulid.Make().String()
	_, err := r.db.ExecContext(ctx, insertRecord,
		id, rec.TurnID, rec.UserID, string(rec.Direction), rec.NodeID, rec.Variable, rec.Text,
	)
	return err
}
