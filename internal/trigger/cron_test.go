package trigger

import (
	"testing"
	"time"
)

func TestCronHourMinute(t *testing.T) {
	t.Parallel()
	c, err := NewCron(CronFields{Hour: "7", Minute: "30"})
	if err != nil {
		t.Fatalf("NewCron error: %v", err)
	}

	tests := []struct {
		name string
		ref  time.Time
		want time.Time
	}{
		{
			"before time today",
			time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC),
			time.Date(2025, 6, 1, 7, 30, 0, 0, time.UTC),
		},
		{
			"after time rolls to tomorrow",
			time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
			time.Date(2025, 6, 2, 7, 30, 0, 0, time.UTC),
		},
		{
			"exactly at fire time rolls to tomorrow",
			time.Date(2025, 6, 1, 7, 30, 0, 0, time.UTC),
			time.Date(2025, 6, 2, 7, 30, 0, 0, time.UTC),
		},
		{
			"one second before still fires today",
			time.Date(2025, 6, 1, 7, 29, 59, 0, time.UTC),
			time.Date(2025, 6, 1, 7, 30, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := c.NextAfter(tt.ref)
			if !ok {
				t.Fatal("expected a match")
			}
			if !got.Equal(tt.want) {
				t.Fatalf("NextAfter(%v) = %v, want %v", tt.ref, got, tt.want)
			}
			if got.Hour() != 7 || got.Minute() != 30 || got.Second() != 0 {
				t.Fatalf("fire time %v does not pin hour/minute/second", got)
			}
		})
	}
}

// Unset fields finer than the finest constrained field pin to their minimum,
// so Hour-only means once a day at the top of that hour.
func TestCronFinerFieldsDefaultToMinimum(t *testing.T) {
	t.Parallel()
	c, err := NewCron(CronFields{Hour: "9"})
	if err != nil {
		t.Fatalf("NewCron error: %v", err)
	}
	ref := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	got, ok := c.NextAfter(ref)
	if !ok {
		t.Fatal("expected a match")
	}
	want := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NextAfter = %v, want %v (next day, not next second)", got, want)
	}
}

func TestCronFieldSyntax(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		fields CronFields
		ref    time.Time
		want   time.Time
	}{
		{
			"step minutes",
			CronFields{Minute: "*/15"},
			time.Date(2025, 6, 1, 10, 2, 0, 0, time.UTC),
			time.Date(2025, 6, 1, 10, 15, 0, 0, time.UTC),
		},
		{
			"range hour",
			CronFields{Hour: "9-17", Minute: "0"},
			time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC),
			time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		},
		{
			"list days of week",
			CronFields{DayOfWeek: "1,3,5", Hour: "8", Minute: "0"}, // mon/wed/fri
			time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),           // monday, past 8
			time.Date(2025, 6, 4, 8, 0, 0, 0, time.UTC),           // wednesday
		},
		{
			"day of month",
			CronFields{Day: "15", Hour: "12", Minute: "0"},
			time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC),
		},
		{
			"month and year",
			CronFields{Year: "2026", Month: "3", Day: "1", Hour: "0", Minute: "0"},
			time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"stepped range",
			CronFields{Hour: "0-12/6", Minute: "0"},
			time.Date(2025, 6, 1, 1, 0, 0, 0, time.UTC),
			time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := NewCron(tt.fields)
			if err != nil {
				t.Fatalf("NewCron error: %v", err)
			}
			got, ok := c.NextAfter(tt.ref)
			if !ok {
				t.Fatal("expected a match")
			}
			if !got.Equal(tt.want) {
				t.Fatalf("NextAfter(%v) = %v, want %v", tt.ref, got, tt.want)
			}
		})
	}
}

func TestCronISOWeekConstraint(t *testing.T) {
	t.Parallel()
	// 2025-06-01 is in ISO week 22; week 24 starts monday 2025-06-09.
	c, err := NewCron(CronFields{Week: "24", Hour: "0", Minute: "0"})
	if err != nil {
		t.Fatalf("NewCron error: %v", err)
	}
	got, ok := c.NextAfter(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if !ok {
		t.Fatal("expected a match")
	}
	want := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NextAfter = %v, want %v", got, want)
	}
}

func TestCronNoMatchWithinWindow(t *testing.T) {
	t.Parallel()
	// February 30th never exists; the bounded search must give up.
	c, err := NewCron(CronFields{Month: "2", Day: "30", Hour: "0", Minute: "0"})
	if err != nil {
		t.Fatalf("NewCron error: %v", err)
	}
	if _, ok := c.NextAfter(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); ok {
		t.Fatal("expected no match within search window")
	}
}

func TestNewCronRejectsBadFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		fields CronFields
	}{
		{"no fields", CronFields{}},
		{"hour out of range", CronFields{Hour: "24"}},
		{"garbage", CronFields{Minute: "banana"}},
		{"reversed range", CronFields{Minute: "30-10"}},
		{"zero step", CronFields{Minute: "*/0"}},
		{"empty list element", CronFields{Hour: "1,,2"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewCron(tt.fields); err == nil {
				t.Fatalf("expected error for %+v", tt.fields)
			}
		})
	}
}
