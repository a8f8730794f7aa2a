package trigger

import (
	"testing"
	"time"
)

func TestOnceNextAfter(t *testing.T) {
	t.Parallel()
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	o, err := NewOnce(at)
	if err != nil {
		t.Fatalf("NewOnce error: %v", err)
	}

	next, ok := o.NextAfter(at.Add(-time.Hour))
	if !ok || !next.Equal(at) {
		t.Fatalf("NextAfter before = %v,%v; want %v,true", next, ok, at)
	}

	// Exactly at the fire time it is exhausted (strictly-after contract).
	if _, ok := o.NextAfter(at); ok {
		t.Fatal("expected exhausted at fire time")
	}
	if _, ok := o.NextAfter(at.Add(time.Second)); ok {
		t.Fatal("expected exhausted after fire time")
	}
}

func TestNewOnceRejectsZeroTime(t *testing.T) {
	t.Parallel()
	if _, err := NewOnce(time.Time{}); err == nil {
		t.Fatal("expected error for zero time")
	}
}

func TestIntervalNextAfter(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	iv, err := NewInterval(10*time.Minute, start)
	if err != nil {
		t.Fatalf("NewInterval error: %v", err)
	}

	tests := []struct {
		name string
		ref  time.Time
		want time.Time
	}{
		{"before start", start.Add(-time.Hour), start},
		{"exactly on start", start, start.Add(10 * time.Minute)},
		{"mid period", start.Add(3 * time.Minute), start.Add(10 * time.Minute)},
		{"exactly on tick", start.Add(30 * time.Minute), start.Add(40 * time.Minute)},
		{"long gap skips backlog", start.Add(24*time.Hour + time.Minute), start.Add(24*time.Hour + 10*time.Minute)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := iv.NextAfter(tt.ref)
			if !ok {
				t.Fatal("interval must always have a next fire time")
			}
			if !got.Equal(tt.want) {
				t.Fatalf("NextAfter(%v) = %v, want %v", tt.ref, got, tt.want)
			}
		})
	}
}

// Successive next-fire times advance by exactly the period: no drift, no
// negative gaps.
func TestIntervalMonotonic(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	iv, _ := NewInterval(7*time.Minute, start)

	ref := start.Add(13 * time.Second)
	prev, ok := iv.NextAfter(ref)
	if !ok {
		t.Fatal("no first fire")
	}
	for i := 0; i < 50; i++ {
		next, ok := iv.NextAfter(prev)
		if !ok {
			t.Fatal("interval exhausted unexpectedly")
		}
		if got := next.Sub(prev); got != 7*time.Minute {
			t.Fatalf("step %d: gap = %v, want %v", i, got, 7*time.Minute)
		}
		prev = next
	}
}

func TestNewIntervalRejectsNonPositivePeriod(t *testing.T) {
	t.Parallel()
	if _, err := NewInterval(0, time.Now()); err == nil {
		t.Fatal("expected error for zero period")
	}
	if _, err := NewInterval(-time.Second, time.Now()); err == nil {
		t.Fatal("expected error for negative period")
	}
}

func TestCrontabNextAfter(t *testing.T) {
	t.Parallel()
	c, err := ParseCrontab("*/5 * * * *")
	if err != nil {
		t.Fatalf("ParseCrontab error: %v", err)
	}
	ref := time.Date(2025, 6, 1, 10, 2, 30, 0, time.UTC)
	next, ok := c.NextAfter(ref)
	if !ok {
		t.Fatal("expected a next fire time")
	}
	want := time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("NextAfter = %v, want %v", next, want)
	}
}

func TestParseCrontabInvalid(t *testing.T) {
	t.Parallel()
	if _, err := ParseCrontab("not a crontab"); err == nil {
		t.Fatal("expected error for invalid expression")
	}
	if _, err := ParseCrontab(""); err == nil {
		t.Fatal("expected error for empty expression")
	}
}
