package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vesper/internal/scheduler"
	logx "vesper/pkg/logx"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	engine := scheduler.New(scheduler.Config{
		TickInterval: 50 * time.Millisecond,
	}, logx.Nop(), nil)
	engine.Start(context.Background())
	engine.SetCommandCallback(func(ctx context.Context, cmd string) (string, error) { return "", nil })
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		engine.Stop(ctx)
	})

	srv := New(Config{}, logx.Nop(), engine)
	return srv, srv.buildRouter()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s: invalid JSON response: %v\n%s", method, path, err, rec.Body.String())
		}
	}
	return rec, decoded
}

func TestHealth(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t)
	rec, body := doJSON(t, h, "GET", "/health", "")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", rec.Code, body)
	}
}

func TestScheduleAndList(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t)
	rec, body := doJSON(t, h, "POST", "/schedule",
		`{"job_id":"briefing","command":"read the news","schedule":"every day at 7:30"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("schedule = %d %v", rec.Code, body)
	}

	rec, body = doJSON(t, h, "GET", "/schedule", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	if int(body["count"].(float64)) != 1 {
		t.Fatalf("count = %v, want 1", body["count"])
	}
	jobs := body["jobs"].([]any)
	job := jobs[0].(map[string]any)
	if job["id"] != "briefing" || job["kind"] != "cron" {
		t.Fatalf("job = %v", job)
	}
}

func TestScheduleValidation(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t)
	tests := []struct {
		name string
		body string
		code int
	}{
		{"missing fields", `{"job_id":"x"}`, http.StatusBadRequest},
		{"bad json", `{"job_id":`, http.StatusBadRequest},
		{"unparsable schedule", `{"job_id":"x","command":"y","schedule":"on the next full moon"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := doJSON(t, h, "POST", "/schedule", tt.body)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}

func TestScheduleWhenStopped(t *testing.T) {
	t.Parallel()

	engine := scheduler.New(scheduler.Config{}, logx.Nop(), nil)
	srv := New(Config{}, logx.Nop(), engine)
	h := srv.buildRouter()

	rec, _ := doJSON(t, h, "POST", "/schedule",
		`{"job_id":"x","command":"y","schedule":"every 5 minutes"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503", rec.Code)
	}
}

func TestRemoveJob(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t)
	rec, _ := doJSON(t, h, "DELETE", "/schedule/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("remove missing = %d, want 404", rec.Code)
	}

	doJSON(t, h, "POST", "/schedule",
		`{"job_id":"lights","command":"toggle","schedule":"every 10 minutes"}`)
	rec, body := doJSON(t, h, "DELETE", "/schedule/lights", "")
	if rec.Code != http.StatusOK || body["job_id"] != "lights" {
		t.Fatalf("remove = %d %v", rec.Code, body)
	}

	rec, body = doJSON(t, h, "GET", "/schedule", "")
	if int(body["count"].(float64)) != 0 {
		t.Fatalf("count after remove = %v", body["count"])
	}
	_ = rec
}

func TestStatus(t *testing.T) {
	t.Parallel()

	srv, h := newTestServer(t)
	srv.startedAt = time.Now()
	rec, body := doJSON(t, h, "GET", "/system/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	sched := body["scheduler"].(map[string]any)
	if sched["running"] != true {
		t.Fatalf("scheduler snapshot = %v", sched)
	}
}

func TestHistoryInMemoryFallback(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t)
	rec, body := doJSON(t, h, "GET", "/system/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history = %d", rec.Code)
	}
	if int(body["count"].(float64)) != 0 {
		t.Fatalf("count = %v, want 0", body["count"])
	}
}
