package db

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/monitoring"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/timeutil"
)

// Recorder writes events on its own goroutine so the link loops never wait
// on SQLite. When the queue is full new events are dropped and counted.
type Recorder struct {
	db        *DB
	sessionID string
	clock     timeutil.Clock
	queue     chan func(context.Context) error
	dropped   atomic.Uint64
	written   atomic.Uint64
}

// NewRecorder returns a Recorder with a queue of size events. Each Recorder
// tags its rows with a fresh session ID.
func NewRecorder(db *DB, size int, clock timeutil.Clock) *Recorder {
	if size <= 0 {
		size = 256
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Recorder{
		db:        db,
		sessionID: uuid.NewString(),
		clock:     clock,
		queue:     make(chan func(context.Context) error, size),
	}
}

// SessionID identifies this run in the event log.
func (r *Recorder) SessionID() string { return r.sessionID }

// Dropped returns how many events were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Written returns how many events reached the database.
func (r *Recorder) Written() uint64 { return r.written.Load() }

func (r *Recorder) enqueue(write func(context.Context) error) {
	select {
	case r.queue <- write:
	default:
		if r.dropped.Add(1)%100 == 1 {
			monitoring.Logf("recorder: queue full, %d events dropped so far", r.dropped.Load())
		}
	}
}

// LinkState queues a link state transition.
func (r *Recorder) LinkState(link, state string) {
	e := LinkEvent{
		ID:         uuid.NewString(),
		SessionID:  r.sessionID,
		Link:       link,
		State:      state,
		RecordedAt: r.clock.Now(),
	}
	r.enqueue(func(ctx context.Context) error { return r.db.InsertLinkEvent(ctx, e) })
}

// Intrusion queues an intrusion escalation.
func (r *Recorder) Intrusion(angle, distance, renderDistance float64, verdict string, threshold float64) {
	e := Intrusion{
		ID:             uuid.NewString(),
		SessionID:      r.sessionID,
		Angle:          angle,
		Distance:       distance,
		RenderDistance: renderDistance,
		Verdict:        verdict,
		Threshold:      threshold,
		RecordedAt:     r.clock.Now(),
	}
	r.enqueue(func(ctx context.Context) error { return r.db.InsertIntrusion(ctx, e) })
}

// Command queues a control command attempt.
func (r *Recorder) Command(command string, sendErr error) {
	e := Command{
		ID:         uuid.NewString(),
		SessionID:  r.sessionID,
		Command:    command,
		RecordedAt: r.clock.Now(),
	}
	if sendErr != nil {
		e.Error = sendErr.Error()
	}
	r.enqueue(func(ctx context.Context) error { return r.db.InsertCommand(ctx, e) })
}

// Run writes queued events until ctx is done, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return ctx.Err()
		case write := <-r.queue:
			r.write(ctx, write)
		}
	}
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case write := <-r.queue:
			r.write(ctx, write)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, write func(context.Context) error) {
	if err := write(ctx); err != nil {
		monitoring.Logf("recorder: write failed: %v", err)
		return
	}
	r.written.Add(1)
}
