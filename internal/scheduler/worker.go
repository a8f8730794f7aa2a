package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"vesper/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan task) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, t)
		}
	}
}

// execOne runs a single fire: callback with per-run timeout, history record,
// lifecycle event. Callback failures are contained here; they never reach the
// timing loop and never remove the job.
func (s *Service) execOne(ctx context.Context, t task) {
	start := time.Now()
	defer t.state.release()

	runCtx := ctx
	var cancel context.CancelFunc
	if t.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
	}
	result, err := t.cb(runCtx, t.command)
	if cancel != nil {
		cancel()
	}
	dur := time.Since(start)

	item := HistoryItem{
		RunID:    t.runID,
		JobID:    t.jobID,
		Command:  t.command,
		Started:  start,
		Duration: dur,
	}
	if err != nil {
		item.Error = err.Error()
		s.setJobError(t.jobID, t.state, err.Error())
		s.log.Warn("job run failed",
			logx.String("job", t.jobID), logx.Err(err), logx.Duration("dur", dur))
		s.publish(EventFailed, JobEvent{RunID: t.runID, JobID: t.jobID, Command: t.command, Started: start, Duration: dur, Error: item.Error})
	} else {
		s.setJobError(t.jobID, t.state, "")
		// Avoid noisy logs for very frequent jobs: only elevate to INFO when
		// the run took noticeable time.
		if dur >= 750*time.Millisecond {
			s.log.Info("job run completed", logx.String("job", t.jobID), logx.Duration("dur", dur))
		} else {
			s.log.Debug("job run completed", logx.String("job", t.jobID), logx.Duration("dur", dur))
		}
		s.publish(EventCompleted, JobEvent{RunID: t.runID, JobID: t.jobID, Command: t.command, Started: start, Duration: dur, Result: result})
	}

	s.appendHistory(item)
}

// setJobError records the last run outcome on the job, unless the job was
// removed or replaced since the fire was dispatched (the run state pointer
// identifies the generation).
func (s *Service) setJobError(id string, state *runState, msg string) {
	s.mu.Lock()
	if j, ok := s.jobs[id]; ok && j.state == state {
		j.lastErr = msg
	}
	s.mu.Unlock()
}

func (s *Service) appendHistory(item HistoryItem) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

func (s *Service) addDropped() {
	atomic.AddUint64(&s.dropped, 1)
}
