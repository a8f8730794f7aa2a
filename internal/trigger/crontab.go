package trigger

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// crontabParser accepts both 5-field and 6-field (with seconds) crontab
// expressions plus descriptors like "@daily" and "@every 55m".
var crontabParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Crontab wraps a standard crontab expression. It exists for callers that
// already speak crontab; the per-field Cron variant covers everything the
// natural-language parser produces.
type Crontab struct {
	expr  string
	sched cron.Schedule
}

// ParseCrontab validates expr with the robfig/cron parser.
func ParseCrontab(expr string) (*Crontab, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("trigger: crontab expression required")
	}
	sched, err := crontabParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("trigger: invalid crontab %q: %w", expr, err)
	}
	return &Crontab{expr: expr, sched: sched}, nil
}

func (c *Crontab) NextAfter(ref time.Time) (time.Time, bool) {
	n := c.sched.Next(ref)
	return n, !n.IsZero()
}

func (c *Crontab) Kind() string { return "cron" }

func (c *Crontab) String() string { return "crontab[" + c.expr + "]" }

// Expr returns the original crontab expression.
func (c *Crontab) Expr() string { return c.expr }
