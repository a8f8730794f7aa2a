package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"vesper/pkg/logx"
)

// loop is the single background timing task: every tick it collects due jobs
// and hands them to the worker pool. It never runs callbacks itself, so a
// slow command cannot stall due-job detection.
func (s *Service) loop(ctx context.Context, stopCh <-chan struct{}, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case now := <-t.C:
			s.dispatchDue(now)
		}
	}
}

// dispatchDue advances every job whose nextRun has passed and enqueues a fire
// for each. Trigger advancement happens under the job-set lock; callback
// execution does not.
func (s *Service) dispatchDue(now time.Time) {
	s.mu.Lock()
	now = now.In(s.loc)
	cb := s.callback
	timeout := s.cfg.DefaultTimeout

	var due []task
	var exhausted []JobEvent
	for id, j := range s.jobs {
		if j.nextRun.IsZero() || j.nextRun.After(now) {
			continue
		}
		j.lastRun = now

		// Recompute from the fired time; an exhausted trigger retires the job.
		if next, ok := j.trig.NextAfter(now); ok {
			j.nextRun = next
		} else {
			delete(s.jobs, id)
			s.log.Debug("job exhausted", logx.String("job", id))
			exhausted = append(exhausted, JobEvent{JobID: id, Command: j.command})
		}

		if cb == nil {
			// Skipped, not crashed: the fire is lost but the schedule advances.
			s.log.Warn("job due but no command callback registered; skipping",
				logx.String("job", id), logx.Err(ErrNoCallback))
			continue
		}
		due = append(due, task{
			runID:   uuid.NewString(),
			jobID:   id,
			command: j.command,
			cb:      cb,
			timeout: timeout,
			state:   j.state,
		})
	}
	s.mu.Unlock()

	for _, t := range due {
		s.enqueue(t)
	}
	for _, ev := range exhausted {
		s.publish(EventExhausted, ev)
	}
}

// enqueue hands one fire to the worker pool. It is non-blocking: overlap with
// the job's previous run skips the fire, and a full queue drops it. Both
// outcomes are logged and published, never fatal.
func (s *Service) enqueue(t task) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		s.log.Debug("engine stopping; dropping fire", logx.String("job", t.jobID))
		return
	}

	if !t.state.tryAcquire() {
		s.log.Debug("job skipped (previous run still running)", logx.String("job", t.jobID))
		s.publish(EventSkipped, JobEvent{RunID: t.runID, JobID: t.jobID, Command: t.command, Error: "overlap_skip"})
		return
	}

	s.publish(EventFired, JobEvent{RunID: t.runID, JobID: t.jobID, Command: t.command, Started: time.Now()})

	select {
	case q <- t:
	default:
		t.state.release()
		s.addDropped()
		s.log.Warn("dispatch queue full; dropping fire",
			logx.String("job", t.jobID), logx.Int("queue_len", len(q)), logx.Int("queue_cap", cap(q)))
		s.publish(EventDropped, JobEvent{RunID: t.runID, JobID: t.jobID, Command: t.command, Error: ErrQueueFull.Error()})
	}
}
