package scheduler

import (
	"context"
	"sync"
	"time"

	"vesper/internal/eventbus"
	"vesper/internal/trigger"
	"vesper/pkg/logx"
)

// Callback executes one command string and returns the spoken/printed result.
// It is injected by the command processor; the engine treats both the command
// and the result as opaque.
type Callback func(ctx context.Context, command string) (string, error)

// Config controls the scheduler engine.
type Config struct {
	Enabled bool

	// Timezone is the IANA zone jobs are evaluated in, e.g. "Asia/Jakarta".
	// Empty means the process-local zone.
	Timezone string

	// TickInterval is the due-job check resolution (default 1s).
	TickInterval time.Duration

	Workers   int // worker pool size (default 2)
	QueueSize int // dispatch queue capacity (default 64)

	// DefaultTimeout bounds a single callback run. 0 disables.
	DefaultTimeout time.Duration

	HistorySize int // retained run records (default 200)
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}

// runState guards a single job against overlapping runs. A fire that finds
// the previous run still executing is skipped, which also keeps one job's
// successive runs strictly ordered.
type runState struct {
	mu      sync.Mutex
	running bool
}

func (st *runState) tryAcquire() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.running {
		return false
	}
	st.running = true
	return true
}

func (st *runState) release() {
	st.mu.Lock()
	st.running = false
	st.mu.Unlock()
}

// job is the engine-private record for one registered schedule.
// The engine exclusively owns these; snapshots copy the exported view.
type job struct {
	id      string
	command string
	trig    trigger.Trigger

	nextRun time.Time
	lastRun time.Time
	lastErr string

	state *runState
}

// task is one dispatched fire handed to the worker pool.
type task struct {
	runID   string
	jobID   string
	command string
	cb      Callback
	timeout time.Duration
	state   *runState
}

// JobInfo is the read-only listing view of a registered job.
type JobInfo struct {
	ID      string    `json:"id"`
	Command string    `json:"command"`
	Trigger string    `json:"trigger"`
	Kind    string    `json:"kind"`
	NextRun time.Time `json:"next_run"`
	LastRun time.Time `json:"last_run,omitzero"`
	LastErr string    `json:"last_error,omitempty"`
}

// HistoryItem records one completed (or failed) run.
type HistoryItem struct {
	RunID    string        `json:"run_id"`
	JobID    string        `json:"job_id"`
	Command  string        `json:"command"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Snapshot is a point-in-time operator view of the engine.
type Snapshot struct {
	Running  bool          `json:"running"`
	Timezone string        `json:"timezone"`
	Workers  int           `json:"workers"`
	QueueLen int           `json:"queue_len"`
	QueueCap int           `json:"queue_cap"`
	Dropped  uint64        `json:"dropped"`
	Jobs     []JobInfo     `json:"jobs"`
	History  []HistoryItem `json:"history"`
}

// JobEvent is the payload carried on the event bus for job lifecycle events.
type JobEvent struct {
	RunID    string
	JobID    string
	Command  string
	Started  time.Time
	Duration time.Duration
	Result   string
	Error    string
}

// Event types published on the bus.
const (
	EventFired     = "job.fired"
	EventCompleted = "job.completed"
	EventFailed    = "job.failed"
	EventSkipped   = "job.skipped"
	EventDropped   = "job.dropped"
	EventRemoved   = "job.removed"
	EventExhausted = "job.exhausted"
)

// Service owns the job set and drives the timing loop. Public operations are
// safe to call concurrently with each other and with the loop.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	bus eventbus.Bus
	cfg Config
	loc *time.Location

	callback Callback
	jobs     map[string]*job

	queue  chan task
	stopCh chan struct{}
	// stopDone is non-nil while a Stop() is in progress; it is closed once
	// the loop and all workers have exited.
	stopDone  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	loopWG    sync.WaitGroup
	workerWG  sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem

	dropped uint64 // atomic; lifetime count of queue-full drops
}
