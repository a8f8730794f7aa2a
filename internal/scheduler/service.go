package scheduler

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"vesper/internal/eventbus"
	"vesper/pkg/logx"
)

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:  cfg.withDefaults(),
		log:  log,
		bus:  bus,
		jobs: map[string]*job{},
	}
}

// SetCommandCallback registers the single execution callback. Re-setting
// replaces it; fires dispatched before the swap keep the callback they were
// dispatched with.
func (s *Service) SetCommandCallback(cb Callback) {
	s.mu.Lock()
	s.callback = cb
	s.mu.Unlock()
}

// Running reports whether the timing loop is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh != nil
}

// Apply swaps the engine config. A timezone change takes effect immediately
// for subsequent ticks; worker count and queue size apply on the next Start().
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg.withDefaults()
	if s.stopCh == nil {
		return
	}
	if oldTZ != newTZ {
		s.loc = s.loadLocationLocked()
		s.log.Info("scheduler timezone changed", logx.String("tz", s.loc.String()))
	}
}

// Start begins the background timing loop and worker pool. Starting an
// already-running engine is a logged no-op.
func (s *Service) Start(ctx context.Context) {
	// If a Stop() is in progress, wait for it to complete first
	// (prevents double worker pools).
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			s.mu.Unlock()
			s.log.Warn("start requested but engine already running")
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
			// loop and try again
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()

	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.loc = s.loadLocationLocked()

	// Fresh job set and queue per run: nothing survives a stop/start toggle.
	s.jobs = map[string]*job{}
	s.queue = make(chan task, s.cfg.QueueSize)

	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue
	workers := s.cfg.Workers
	tick := s.cfg.TickInterval

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in scheduler worker",
						logx.Int("worker", idx), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}

	s.loopWG.Add(1)
	go func() {
		defer s.loopWG.Done()
		s.loop(runCtx, stopCh, tick)
	}()

	s.log.Info("scheduler started",
		logx.Int("workers", workers),
		logx.Duration("tick", tick),
		logx.String("tz", s.loc.String()))
}

// Stop halts the timing loop within one tick interval and discards all
// registered jobs. In-flight callback runs are allowed to complete; no new
// fires are dispatched after Stop returns.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		s.log.Warn("stop requested but engine not running")
		return
	}
	if s.stopDone != nil {
		// A stop is already in progress; wait for it (best effort).
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.runCancel
	s.runCancel = nil
	// No persistence: the active set dies with the loop.
	discarded := len(s.jobs)
	s.jobs = map[string]*job{}
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	// Finalize in the background so Stop can honor ctx deadlines.
	go func() {
		s.loopWG.Wait()
		s.workerWG.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.runCtx = nil
		s.queue = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("scheduler stopped",
			logx.Int("discarded_jobs", discarded),
			logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}

// loadLocationLocked resolves the configured timezone. Call with s.mu held.
func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to local",
			logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) publish(typ string, ev JobEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}
