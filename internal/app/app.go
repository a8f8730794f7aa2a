// Package app wires configuration, logging, the scheduler engine and its
// observers into one process with hot-reloadable config.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vesper/internal/api"
	"vesper/internal/eventbus"
	"vesper/internal/history"
	"vesper/internal/metrics"
	"vesper/internal/notify"
	"vesper/internal/scheduler"
	logx "vesper/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	engine    *scheduler.Service
	store     *history.Store
	recorder  *history.Recorder
	collector *metrics.Collector
	apiSrv    *api.Server
	notifier  *notify.Telegram
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Logging service mapping
	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Notify: logx.NotifyConfig{
			Enabled:    cfg.Logging.Notify.Enabled,
			MinLevel:   cfg.Logging.Notify.MinLevel,
			RatePerSec: cfg.Logging.Notify.RatePerSec,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Engine mapping
	engCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	engine := scheduler.New(engCfg, logSvc.Logger().With(logx.String("comp", "scheduler")), bus)

	// Run-history persistence (optional)
	var store *history.Store
	var recorder *history.Recorder
	if hc, enabled, err := mapHistoryConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := history.Open(hc, logSvc.Logger().With(logx.String("comp", "history")))
		if err != nil {
			return nil, err
		}
		store = st
		recorder = history.NewRecorder(st, logSvc.Logger().With(logx.String("comp", "history")))
		log.Info("run history enabled", logx.String("path", hc.Path))
	}

	collector := metrics.New(func() int { return len(engine.Jobs()) })

	// HTTP control surface (optional)
	var apiSrv *api.Server
	if ac, enabled, err := mapAPIConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		apiSrv = api.New(ac, logSvc.Logger().With(logx.String("comp", "api")), engine)
		apiSrv.SetHistoryStore(store)
		apiSrv.SetMetricsHandler(collector.Handler())
	}

	// Telegram failure alerts (optional); also receives warn+ log lines.
	var notifier *notify.Telegram
	if nc, enabled, err := mapNotifyConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		n, err := notify.NewTelegram(nc, logSvc.Logger().With(logx.String("comp", "notify")))
		if err != nil {
			return nil, err
		}
		notifier = n
		logSvc.SetNotifier(n)
	}

	return &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		engine:    engine,
		store:     store,
		recorder:  recorder,
		collector: collector,
		apiSrv:    apiSrv,
		notifier:  notifier,
	}, nil
}

// Engine exposes the scheduler for callers embedding the app.
func (a *App) Engine() *scheduler.Service { return a.engine }

// SetCommandCallback installs the command processor the engine dispatches to.
func (a *App) SetCommandCallback(cb scheduler.Callback) {
	a.engine.SetCommandCallback(cb)
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(func(c context.Context, cfg *Config) error {
			if _, err := mapSchedulerConfig(cfg); err != nil {
				return err
			}
			if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
				if _, err := time.LoadLocation(tz); err != nil {
					return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
				}
			}
			if _, _, err := mapAPIConfig(cfg); err != nil {
				return err
			}
			if _, _, err := mapHistoryConfig(cfg); err != nil {
				return err
			}
			if _, _, err := mapNotifyConfig(cfg); err != nil {
				return err
			}
			return nil
		})
	}

	// Observers first so the engine's earliest fires are counted.
	a.collector.Start(a.bus)
	if a.recorder != nil {
		a.recorder.Start(a.bus)
	}
	if a.notifier != nil {
		a.notifier.Start(a.bus)
	}

	cfg := a.cfgm.Get()
	if cfg != nil && cfg.Scheduler.Enabled {
		a.engine.Start(a.sup.Context())
	}

	if a.apiSrv != nil {
		if err := a.apiSrv.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		// Track last applied config to generate a safe diff summary for logging.
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := SummarizeConfigChange(lastApplied, newCfg)
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Debug("config change summary", fields...)
				} else {
					a.log.Debug("config reload received, but no effective changes detected")
				}
				lastApplied = newCfg

				for _, s := range sections {
					if s == "api" || s == "history" || s == "notify" {
						a.log.Warn("config section changed; restart required for changes to take effect",
							logx.String("section", s))
					}
				}

				// apply logging updates
				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
					Notify: logx.NotifyConfig{
						Enabled:    newCfg.Logging.Notify.Enabled,
						MinLevel:   newCfg.Logging.Notify.MinLevel,
						RatePerSec: newCfg.Logging.Notify.RatePerSec,
					},
				})

				// apply scheduler updates (timezone live; pool sizes at next start)
				prevEnabled := a.engine.Running()
				engCfg, err := mapSchedulerConfig(newCfg)
				if err != nil {
					a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
				} else {
					a.engine.Apply(engCfg)

					if prevEnabled && !newCfg.Scheduler.Enabled {
						a.log.Info("scheduler disabled via config")
						stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
						a.engine.Stop(stopCtx)
						cancel()
					} else if !prevEnabled && newCfg.Scheduler.Enabled {
						a.log.Info("scheduler enabled via config")
						a.engine.Start(c)
					}
				}

				// Keep the final log line concise and human-friendly (details are in debug logs).
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				} else {
					a.log.Info("config reloaded (no changes)")
				}
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.String("err", err.Error()))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly. If it doesn't, log a leak signal.
			elapsed := time.Since(start)
			a.log.Warn(
				"stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.String("err", stepCtx.Err().Error()),
				logx.Duration("elapsed", elapsed),
			)
			// Leak logging: observe when/if the step eventually finishes.
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.String("err", err.Error()), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Stop intake first, then the engine, then its observers.
	step("api", 2*time.Second, func(c context.Context) error {
		if a.apiSrv != nil {
			return a.apiSrv.Stop(c)
		}
		return nil
	})
	step("scheduler", 2*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("notifier", 1*time.Second, func(c context.Context) error {
		if a.notifier != nil {
			a.notifier.Stop()
		}
		return nil
	})
	step("metrics", 1*time.Second, func(c context.Context) error { a.collector.Stop(); return nil })
	step("history", 1*time.Second, func(c context.Context) error {
		if a.recorder != nil {
			a.recorder.Stop()
		}
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	// Finally, wait for supervised goroutines (config watch/reload).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
