package history

import (
	"context"
	"sync"
	"time"

	"vesper/internal/eventbus"
	"vesper/internal/scheduler"
	logx "vesper/pkg/logx"
)

// Recorder consumes job lifecycle events and persists finished runs.
// Only completed and failed runs produce rows; fires, skips and drops are
// transient and stay in logs/metrics.
type Recorder struct {
	store *Store
	log   logx.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRecorder(store *Store, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, log: log}
}

// Start subscribes to the bus and records until Stop.
func (r *Recorder) Start(bus eventbus.Bus) {
	if r.store == nil || bus == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	events, unsub := bus.Subscribe(128)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				r.record(ctx, e)
			}
		}
	}()
}

func (r *Recorder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Recorder) record(ctx context.Context, e eventbus.Event) {
	if e.Type != scheduler.EventCompleted && e.Type != scheduler.EventFailed {
		return
	}
	ev, ok := e.Data.(scheduler.JobEvent)
	if !ok {
		return
	}

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := r.store.Append(wctx, Record{
		RunID:   ev.RunID,
		JobID:   ev.JobID,
		Command: ev.Command,
		Started: ev.Started,
		TookMS:  ev.Duration.Milliseconds(),
		Result:  ev.Result,
		Error:   ev.Error,
	})
	if err != nil {
		r.log.Warn("history append failed",
			logx.String("job", ev.JobID), logx.String("run", ev.RunID), logx.Err(err))
	}
}
