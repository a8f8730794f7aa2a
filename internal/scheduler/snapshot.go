package scheduler

import (
	"sort"
	"sync/atomic"
	"time"
)

// Jobs returns a read-only snapshot of the registered jobs, sorted by id.
// It never exposes engine-internal state and never evaluates triggers.
func (s *Service) Jobs() []JobInfo {
	s.mu.Lock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, JobInfo{
			ID:      j.id,
			Command: j.command,
			Trigger: j.trig.String(),
			Kind:    j.trig.Kind(),
			NextRun: j.nextRun,
			LastRun: j.lastRun,
			LastErr: j.lastErr,
		})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// History returns a copy of the retained run records, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	out := make([]HistoryItem, len(s.history))
	copy(out, s.history)
	s.hmu.Unlock()
	return out
}

// Snapshot returns a point-in-time operator view of the engine.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	running := s.stopCh != nil
	workers := s.cfg.Workers
	loc := s.loc
	ql, qc := 0, 0
	if s.queue != nil {
		ql = len(s.queue)
		qc = cap(s.queue)
	}
	s.mu.Unlock()

	tz := ""
	if loc != nil {
		tz = loc.String()
	} else {
		tz = time.Local.String()
	}

	return Snapshot{
		Running:  running,
		Timezone: tz,
		Workers:  workers,
		QueueLen: ql,
		QueueCap: qc,
		Dropped:  atomic.LoadUint64(&s.dropped),
		Jobs:     s.Jobs(),
		History:  s.History(),
	}
}
