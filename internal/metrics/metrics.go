// Package metrics exposes scheduler counters over Prometheus.
//
// It consumes the event bus rather than instrumenting the engine directly, so
// the engine stays free of metrics plumbing.
package metrics

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vesper/internal/eventbus"
	"vesper/internal/scheduler"
)

type Collector struct {
	registry *prometheus.Registry

	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
	activeJobs  prometheus.GaugeFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a collector on its own registry. jobCount feeds the active-jobs
// gauge (typically engine.Jobs length).
func New(jobCount func() int) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{registry: registry}

	c.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vesper",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Job fire outcomes by result",
		},
		[]string{"outcome"},
	)

	c.runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vesper",
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Command callback duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	c.activeJobs = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "vesper",
			Subsystem: "scheduler",
			Name:      "active_jobs",
			Help:      "Currently registered jobs",
		},
		func() float64 {
			if jobCount == nil {
				return 0
			}
			return float64(jobCount())
		},
	)

	registry.MustRegister(
		c.runsTotal,
		c.runDuration,
		c.activeJobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Start consumes job lifecycle events until Stop.
func (c *Collector) Start(bus eventbus.Bus) {
	if bus == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	events, unsub := bus.Subscribe(128)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				c.observe(e)
			}
		}
	}()
}

func (c *Collector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Collector) observe(e eventbus.Event) {
	outcome := ""
	switch e.Type {
	case scheduler.EventCompleted:
		outcome = "completed"
	case scheduler.EventFailed:
		outcome = "failed"
	case scheduler.EventSkipped:
		outcome = "skipped"
	case scheduler.EventDropped:
		outcome = "dropped"
	default:
		return
	}
	c.runsTotal.WithLabelValues(outcome).Inc()

	if ev, ok := e.Data.(scheduler.JobEvent); ok && ev.Duration > 0 {
		c.runDuration.Observe(ev.Duration.Seconds())
	}
}

// Handler serves the registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
