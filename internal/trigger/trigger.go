// Package trigger defines when a scheduled job becomes due.
//
// A Trigger is an immutable value; computing the next fire time is a pure
// function of the trigger and a reference time. There are four variants:
//
//   - Once: fires exactly once at an absolute time.
//   - Interval: fires every fixed period, anchored at a start time.
//   - Cron: fires when wall-clock time matches a set of per-field constraints
//     (second/minute/hour/day/month/day-of-week/week/year).
//   - Crontab: a standard crontab expression ("*/5 * * * *", "@daily", ...)
//     evaluated by robfig/cron.
package trigger

import (
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned when a one-shot trigger's time has already passed
// at registration.
var ErrExhausted = errors.New("trigger: already exhausted")

// ErrNoMatch is returned when a cron trigger cannot match any time within the
// bounded forward search window.
var ErrNoMatch = errors.New("trigger: no matching time within search window")

// Trigger is the closed set of schedule rules. NextAfter returns the earliest
// time strictly after ref at which the trigger fires, or false when it can
// never fire again.
type Trigger interface {
	NextAfter(ref time.Time) (time.Time, bool)

	// Kind reports the variant name ("once", "interval" or "cron").
	Kind() string

	// String renders a short human-readable summary for listings and logs.
	String() string
}

// Once fires exactly once at At; afterwards the owning job is exhausted.
type Once struct {
	At time.Time
}

// NewOnce validates a one-shot trigger. A zero time is rejected.
func NewOnce(at time.Time) (Once, error) {
	if at.IsZero() {
		return Once{}, errors.New("trigger: once time required")
	}
	return Once{At: at}, nil
}

func (o Once) NextAfter(ref time.Time) (time.Time, bool) {
	if o.At.After(ref) {
		return o.At, true
	}
	return time.Time{}, false
}

func (o Once) Kind() string { return "once" }

func (o Once) String() string {
	return fmt.Sprintf("once at %s", o.At.Format(time.RFC3339))
}

// Interval fires every Period, anchored at Start. The next fire time is
// Start + k*Period for the smallest k placing it strictly after the
// reference, so missed ticks do not accumulate backlog.
type Interval struct {
	Period time.Duration
	Start  time.Time
}

// NewInterval validates an interval trigger. Start defaults to now when zero.
func NewInterval(period time.Duration, start time.Time) (Interval, error) {
	if period <= 0 {
		return Interval{}, errors.New("trigger: interval period must be > 0")
	}
	if start.IsZero() {
		start = time.Now()
	}
	return Interval{Period: period, Start: start}, nil
}

func (iv Interval) NextAfter(ref time.Time) (time.Time, bool) {
	if iv.Period <= 0 {
		return time.Time{}, false
	}
	if iv.Start.After(ref) {
		return iv.Start, true
	}
	// Smallest k with start + k*period > ref. Integer division floors,
	// so +1 lands strictly after ref even when ref sits exactly on a tick.
	k := ref.Sub(iv.Start)/iv.Period + 1
	return iv.Start.Add(k * iv.Period), true
}

func (iv Interval) Kind() string { return "interval" }

func (iv Interval) String() string {
	return fmt.Sprintf("every %s", iv.Period)
}
