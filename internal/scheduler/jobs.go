package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"vesper/internal/trigger"
	"vesper/pkg/logx"
)

// AddJob inserts or replaces a job. Replacement is atomic: no tick observes
// the id half-registered. It returns false (never panics) when the engine is
// not running, the id is empty, or the trigger can never fire.
//
// A Once trigger whose time has already passed is rejected here rather than
// fired immediately; the caller gets false and a logged warning.
func (s *Service) AddJob(id, command string, trig trigger.Trigger) bool {
	id = strings.TrimSpace(id)
	if id == "" || trig == nil {
		s.log.Warn("add_job rejected: id and trigger required")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		s.log.Warn("add_job rejected", logx.String("job", id), logx.Err(ErrNotRunning))
		return false
	}

	now := time.Now().In(s.loc)
	next, ok := trig.NextAfter(now)
	if !ok {
		// A once trigger in the past is exhausted; a cron pattern with no
		// reachable fire time ran out of its search window.
		cause := trigger.ErrExhausted
		if trig.Kind() == "cron" {
			cause = trigger.ErrNoMatch
		}
		s.log.Warn("add_job rejected: trigger can never fire",
			logx.String("job", id), logx.Err(cause))
		return false
	}

	replaced := s.jobs[id] != nil
	s.jobs[id] = &job{
		id:      id,
		command: command,
		trig:    trig,
		nextRun: next,
		state:   &runState{},
	}
	s.log.Debug("job registered",
		logx.String("job", id),
		logx.String("trigger", trig.String()),
		logx.Time("next", next),
		logx.Bool("replaced", replaced))
	return true
}

// RemoveJob removes a job if present. It returns false when the id is absent
// or the engine is not running.
func (s *Service) RemoveJob(id string) bool {
	id = strings.TrimSpace(id)

	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		s.log.Warn("remove_job rejected", logx.String("job", id), logx.Err(ErrNotRunning))
		return false
	}
	j, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.log.Debug("job removed", logx.String("job", id))
	s.publish(EventRemoved, JobEvent{JobID: id, Command: j.command})
	return true
}

// ---- convenience constructors (sugar over AddJob; no extra state) ----

// ScheduleOnce runs command once at the given absolute time.
func (s *Service) ScheduleOnce(id, command string, at time.Time) bool {
	t, err := trigger.NewOnce(at)
	if err != nil {
		s.log.Warn("schedule_once rejected", logx.String("job", id), logx.Err(err))
		return false
	}
	return s.AddJob(id, command, t)
}

// ScheduleInterval runs command every period, starting now.
func (s *Service) ScheduleInterval(id, command string, period time.Duration) bool {
	t, err := trigger.NewInterval(period, time.Now())
	if err != nil {
		s.log.Warn("schedule_interval rejected", logx.String("job", id), logx.Err(err))
		return false
	}
	return s.AddJob(id, command, t)
}

// ScheduleCron runs command whenever wall clock matches the field constraints.
func (s *Service) ScheduleCron(id, command string, fields trigger.CronFields) bool {
	t, err := trigger.NewCron(fields)
	if err != nil {
		s.log.Warn("schedule_cron rejected", logx.String("job", id), logx.Err(err))
		return false
	}
	return s.AddJob(id, command, t)
}

// ScheduleDaily runs command every day at "HH:MM".
func (s *Service) ScheduleDaily(id, command, atHHMM string) bool {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		s.log.Warn("schedule_daily rejected", logx.String("job", id), logx.Err(err))
		return false
	}
	return s.ScheduleCron(id, command, trigger.CronFields{
		Hour:   fmt.Sprintf("%d", h),
		Minute: fmt.Sprintf("%d", m),
	})
}

// ScheduleWeekly runs command every week on the given weekday at "HH:MM".
func (s *Service) ScheduleWeekly(id, command string, weekday time.Weekday, atHHMM string) bool {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		s.log.Warn("schedule_weekly rejected", logx.String("job", id), logx.Err(err))
		return false
	}
	return s.ScheduleCron(id, command, trigger.CronFields{
		DayOfWeek: fmt.Sprintf("%d", int(weekday)), // Sunday = 0
		Hour:      fmt.Sprintf("%d", h),
		Minute:    fmt.Sprintf("%d", m),
	})
}

// ScheduleCrontab runs command on a standard crontab expression.
func (s *Service) ScheduleCrontab(id, command, expr string) bool {
	t, err := trigger.ParseCrontab(expr)
	if err != nil {
		s.log.Warn("schedule_crontab rejected", logx.String("job", id), logx.Err(err))
		return false
	}
	return s.AddJob(id, command, t)
}

// ScheduleFromText runs command on a natural-language schedule
// ("every day at 7:00", "in 30 minutes", ...).
func (s *Service) ScheduleFromText(id, command, text string) bool {
	s.mu.Lock()
	loc := s.loc
	s.mu.Unlock()
	if loc == nil {
		loc = time.Local
	}
	t, err := trigger.ParseAt(text, time.Now().In(loc))
	if err != nil {
		s.log.Warn("schedule_from_text rejected",
			logx.String("job", id), logx.String("text", text), logx.Err(err))
		return false
	}
	return s.AddJob(id, command, t)
}

// parseHHMM parses "HH:MM" into its components.
func parseHHMM(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	hs, ms, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
