package trigger

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnparsable is returned when schedule text matches no recognized phrasing,
// or a matched number/time field is malformed.
var ErrUnparsable = errors.New("trigger: unrecognized schedule text")

// Parse converts a natural-language schedule phrase into a Trigger.
//
// Recognized phrasings, tried in this fixed order (first match wins, which
// keeps phrases containing both "every" and "in" deterministic):
//
//	"every day at 7:00" / "daily at 7"  -> cron (hour+minute)
//	"every 10 minutes"                  -> interval
//	"every 2 hours"                     -> interval
//	"tomorrow at 9:30"                  -> once (next day, seconds zeroed)
//	"in 30 minutes"                     -> once
//	"in 2 hours"                        -> once
//
// Matching is case-insensitive. Anything else fails with ErrUnparsable.
func Parse(text string) (Trigger, error) {
	return ParseAt(text, time.Now())
}

// ParseAt is Parse with an explicit reference time. Relative phrasings
// ("tomorrow", "in N minutes") are resolved against now, in now's location.
func ParseAt(text string, now time.Time) (Trigger, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return nil, ErrUnparsable
	}
	for _, r := range parseRules {
		m := r.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		t, err := r.build(m, now)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
		}
		return t, nil
	}
	return nil, ErrUnparsable
}

type parseRule struct {
	re    *regexp.Regexp
	build func(m []string, now time.Time) (Trigger, error)
}

// Rule order is load-bearing; see Parse.
var parseRules = []parseRule{
	{
		re: regexp.MustCompile(`(?:every day|daily)\s+at\s+(\d{1,2}(?::\d{1,2})?)`),
		build: func(m []string, _ time.Time) (Trigger, error) {
			h, min, err := parseClock(m[1])
			if err != nil {
				return nil, err
			}
			return NewCron(CronFields{
				Hour:   strconv.Itoa(h),
				Minute: strconv.Itoa(min),
			})
		},
	},
	{
		re: regexp.MustCompile(`every\s+(\d+)\s+minutes?`),
		build: func(m []string, now time.Time) (Trigger, error) {
			return intervalOf(m[1], time.Minute, now)
		},
	},
	{
		re: regexp.MustCompile(`every\s+(\d+)\s+hours?`),
		build: func(m []string, now time.Time) (Trigger, error) {
			return intervalOf(m[1], time.Hour, now)
		},
	},
	{
		re: regexp.MustCompile(`tomorrow\s+at\s+(\d{1,2}(?::\d{1,2})?)`),
		build: func(m []string, now time.Time) (Trigger, error) {
			h, min, err := parseClock(m[1])
			if err != nil {
				return nil, err
			}
			d := now.AddDate(0, 0, 1)
			at := time.Date(d.Year(), d.Month(), d.Day(), h, min, 0, 0, now.Location())
			return NewOnce(at)
		},
	},
	{
		re: regexp.MustCompile(`in\s+(\d+)\s+minutes?`),
		build: func(m []string, now time.Time) (Trigger, error) {
			return onceIn(m[1], time.Minute, now)
		},
	},
	{
		re: regexp.MustCompile(`in\s+(\d+)\s+hours?`),
		build: func(m []string, now time.Time) (Trigger, error) {
			return onceIn(m[1], time.Hour, now)
		},
	},
}

func intervalOf(raw string, unit time.Duration, now time.Time) (Trigger, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid count %q", raw)
	}
	return NewInterval(time.Duration(n)*unit, now)
}

func onceIn(raw string, unit time.Duration, now time.Time) (Trigger, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid count %q", raw)
	}
	return NewOnce(now.Add(time.Duration(n) * unit))
}

// parseClock parses "H" or "H:MM" into hour and minute.
func parseClock(s string) (hour, minute int, err error) {
	hs, ms, hasMin := strings.Cut(s, ":")
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m := 0
	if hasMin {
		m, err = strconv.Atoi(ms)
		if err != nil || m < 0 || m > 59 {
			return 0, 0, fmt.Errorf("invalid minute in %q", s)
		}
	}
	return h, m, nil
}
