package trigger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// searchYears bounds the forward search for the next cron match. A trigger
// that cannot match within this window (e.g. february 30th) reports false
// from NextAfter; registration surfaces that as ErrNoMatch.
const searchYears = 4

// CronFields holds per-field constraint strings. An empty field is
// unconstrained. Constraint syntax is the usual cron field grammar:
// "*", "N", "N-M", "*/S", "N-M/S" and comma lists thereof.
//
// Fields finer than the finest explicitly constrained field default to their
// minimum value; coarser fields default to wildcard. Constraining only
// Hour="7" therefore means 07:00:00 every day, not every second of that hour.
type CronFields struct {
	Second    string
	Minute    string
	Hour      string
	Day       string // day of month, 1-31
	Month     string // 1-12
	DayOfWeek string // 0-6, Sunday = 0
	Week      string // ISO week number, 1-53
	Year      string
}

// Cron fires whenever wall-clock time matches every constrained field.
// Constraints are compiled at construction; the value is immutable.
type Cron struct {
	fields CronFields

	year   constraint
	month  constraint
	week   constraint
	day    constraint
	dow    constraint
	hour   constraint
	minute constraint
	second constraint
}

// cron fields ordered coarse to fine; index is used for the default rule.
var cronFieldDefs = []struct {
	name     string
	min, max int
}{
	{"year", 1970, 9999},
	{"month", 1, 12},
	{"week", 1, 53},
	{"day", 1, 31},
	{"day_of_week", 0, 6},
	{"hour", 0, 23},
	{"minute", 0, 59},
	{"second", 0, 59},
}

// NewCron compiles the field constraints. At least one field must be
// constrained, and each constraint must parse in that field's range.
func NewCron(f CronFields) (*Cron, error) {
	raw := []string{f.Year, f.Month, f.Week, f.Day, f.DayOfWeek, f.Hour, f.Minute, f.Second}

	finest := -1
	for i, s := range raw {
		if strings.TrimSpace(s) != "" {
			finest = i
		}
	}
	if finest < 0 {
		return nil, fmt.Errorf("trigger: cron requires at least one constrained field")
	}

	compiled := make([]constraint, len(raw))
	for i, s := range raw {
		def := cronFieldDefs[i]
		switch {
		case strings.TrimSpace(s) != "":
			c, err := compileField(s, def.min, def.max)
			if err != nil {
				return nil, fmt.Errorf("trigger: cron %s: %w", def.name, err)
			}
			compiled[i] = c
		case i > finest:
			// Unset field finer than the finest constrained one pins to
			// the minimum. Skip day_of_week and week: pinning those
			// would over-constrain the date.
			if def.name == "day_of_week" || def.name == "week" {
				compiled[i] = anyValue()
			} else {
				compiled[i] = exactValue(def.min)
			}
		default:
			compiled[i] = anyValue()
		}
	}

	return &Cron{
		fields: f,
		year:   compiled[0],
		month:  compiled[1],
		week:   compiled[2],
		day:    compiled[3],
		dow:    compiled[4],
		hour:   compiled[5],
		minute: compiled[6],
		second: compiled[7],
	}, nil
}

// NextAfter searches forward from ref, bumping the coarsest mismatching unit
// and re-validating finer ones. The search is bounded to searchYears.
func (c *Cron) NextAfter(ref time.Time) (time.Time, bool) {
	loc := ref.Location()
	t := ref.Truncate(time.Second).Add(time.Second)
	limit := ref.AddDate(searchYears, 0, 0)

	for !t.After(limit) {
		switch {
		case !c.year.match(t.Year()):
			t = time.Date(t.Year()+1, time.January, 1, 0, 0, 0, 0, loc)
		case !c.month.match(int(t.Month())):
			t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
		case !c.matchDate(t):
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
		case !c.hour.match(t.Hour()):
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc).Add(time.Hour)
		case !c.minute.match(t.Minute()):
			t = t.Truncate(time.Minute).Add(time.Minute)
		case !c.second.match(t.Second()):
			t = t.Add(time.Second)
		default:
			return t, true
		}
	}
	return time.Time{}, false
}

// matchDate checks the three date constraints (day of month, ISO week,
// day of week) as a logical AND.
func (c *Cron) matchDate(t time.Time) bool {
	if !c.day.match(t.Day()) {
		return false
	}
	if !c.dow.match(int(t.Weekday())) {
		return false
	}
	if !c.week.any {
		_, wk := t.ISOWeek()
		if !c.week.match(wk) {
			return false
		}
	}
	return true
}

func (c *Cron) Kind() string { return "cron" }

func (c *Cron) String() string {
	parts := make([]string, 0, 8)
	add := func(name, v string) {
		if strings.TrimSpace(v) != "" {
			parts = append(parts, name+"="+v)
		}
	}
	add("year", c.fields.Year)
	add("month", c.fields.Month)
	add("week", c.fields.Week)
	add("day", c.fields.Day)
	add("day_of_week", c.fields.DayOfWeek)
	add("hour", c.fields.Hour)
	add("minute", c.fields.Minute)
	add("second", c.fields.Second)
	return "cron[" + strings.Join(parts, " ") + "]"
}

// Fields returns the constraint strings the trigger was built from.
func (c *Cron) Fields() CronFields { return c.fields }

// ---- field constraint compilation ----

type span struct {
	lo, hi, step int
}

type constraint struct {
	any   bool
	spans []span
}

func anyValue() constraint        { return constraint{any: true} }
func exactValue(v int) constraint { return constraint{spans: []span{{lo: v, hi: v, step: 1}}} }

func (c constraint) match(v int) bool {
	if c.any {
		return true
	}
	for _, s := range c.spans {
		if v >= s.lo && v <= s.hi && (v-s.lo)%s.step == 0 {
			return true
		}
	}
	return false
}

func compileField(expr string, min, max int) (constraint, error) {
	expr = strings.TrimSpace(expr)
	if expr == "*" {
		return anyValue(), nil
	}

	var spans []span
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return constraint{}, fmt.Errorf("empty list element in %q", expr)
		}
		s, err := compileSpan(part, min, max)
		if err != nil {
			return constraint{}, err
		}
		spans = append(spans, s)
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].lo < spans[j].lo })
	return constraint{spans: spans}, nil
}

func compileSpan(part string, min, max int) (span, error) {
	rng := part
	step := 1
	if i := strings.IndexByte(part, '/'); i >= 0 {
		rng = part[:i]
		n, err := strconv.Atoi(part[i+1:])
		if err != nil || n <= 0 {
			return span{}, fmt.Errorf("invalid step in %q", part)
		}
		step = n
	}

	if rng == "*" {
		return span{lo: min, hi: max, step: step}, nil
	}

	lo, hi := rng, rng
	if i := strings.IndexByte(rng, '-'); i >= 0 {
		lo, hi = rng[:i], rng[i+1:]
	}
	l, err := strconv.Atoi(lo)
	if err != nil {
		return span{}, fmt.Errorf("invalid value %q", part)
	}
	h, err := strconv.Atoi(hi)
	if err != nil {
		return span{}, fmt.Errorf("invalid value %q", part)
	}
	if l < min || h > max || l > h {
		return span{}, fmt.Errorf("value %q out of range %d-%d", part, min, max)
	}
	return span{lo: l, hi: h, step: step}, nil
}
