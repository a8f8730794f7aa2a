package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vesper/internal/eventbus"
	"vesper/internal/scheduler"
)

func TestObserveOutcomes(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	c := New(func() int { return 3 })
	c.Start(bus)
	defer c.Stop()

	bus.Publish(eventbus.Event{Type: scheduler.EventCompleted,
		Data: scheduler.JobEvent{JobID: "a", Duration: 50 * time.Millisecond}})
	bus.Publish(eventbus.Event{Type: scheduler.EventFailed,
		Data: scheduler.JobEvent{JobID: "a", Error: "boom"}})
	bus.Publish(eventbus.Event{Type: scheduler.EventFired}) // not counted

	// Delivery is async; poll the scrape output.
	deadline := time.Now().Add(3 * time.Second)
	for {
		rec := httptest.NewRecorder()
		c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		body := rec.Body.String()
		if strings.Contains(body, `vesper_scheduler_runs_total{outcome="completed"} 1`) &&
			strings.Contains(body, `vesper_scheduler_runs_total{outcome="failed"} 1`) &&
			strings.Contains(body, "vesper_scheduler_active_jobs 3") {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected counters not found in scrape:\n%s", body)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
