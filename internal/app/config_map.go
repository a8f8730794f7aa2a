package app

import (
	"fmt"
	"strings"
	"time"

	"vesper/internal/api"
	"vesper/internal/history"
	"vesper/internal/notify"
	"vesper/internal/scheduler"
)

func mapSchedulerConfig(cfg *Config) (scheduler.Config, error) {
	if cfg == nil {
		return scheduler.Config{}, nil
	}
	sc := cfg.Scheduler

	if sc.Workers < 0 {
		return scheduler.Config{}, fmt.Errorf("scheduler.workers must be >= 0")
	}
	if sc.QueueSize < 0 {
		return scheduler.Config{}, fmt.Errorf("scheduler.queue_size must be >= 0")
	}
	if sc.HistorySize < 0 {
		return scheduler.Config{}, fmt.Errorf("scheduler.history_size must be >= 0")
	}

	tick, err := parseDurationField("scheduler.tick_interval", sc.TickInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	defTimeout, err := parseDurationField("scheduler.default_timeout", sc.DefaultTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}

	return scheduler.Config{
		Enabled:        sc.Enabled,
		Timezone:       sc.Timezone,
		TickInterval:   tick,
		Workers:        sc.Workers,
		QueueSize:      sc.QueueSize,
		DefaultTimeout: defTimeout,
		HistorySize:    sc.HistorySize,
	}, nil
}

func mapAPIConfig(cfg *Config) (api.Config, bool, error) {
	if cfg == nil || !cfg.API.Enabled {
		return api.Config{}, false, nil
	}
	ac := cfg.API

	read, err := parseDurationField("api.read_timeout", ac.ReadTimeout)
	if err != nil {
		return api.Config{}, false, err
	}
	write, err := parseDurationField("api.write_timeout", ac.WriteTimeout)
	if err != nil {
		return api.Config{}, false, err
	}
	idle, err := parseDurationField("api.idle_timeout", ac.IdleTimeout)
	if err != nil {
		return api.Config{}, false, err
	}

	return api.Config{
		Addr:         strings.TrimSpace(ac.Addr),
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}, true, nil
}

func mapHistoryConfig(cfg *Config) (history.Config, bool, error) {
	if cfg == nil || cfg.History == nil || !cfg.History.Enabled {
		return history.Config{}, false, nil
	}
	hc := cfg.History
	if strings.TrimSpace(hc.Path) == "" {
		return history.Config{}, false, fmt.Errorf("history.path is required when history.enabled is true")
	}
	if hc.Retention < 0 {
		return history.Config{}, false, fmt.Errorf("history.retention must be >= 0")
	}
	busy, err := parseDurationOrDefault("history.busy_timeout", hc.BusyTimeout, 1*time.Second)
	if err != nil {
		return history.Config{}, false, err
	}
	return history.Config{
		Path:        strings.TrimSpace(hc.Path),
		BusyTimeout: busy,
		Retention:   hc.Retention,
	}, true, nil
}

func mapNotifyConfig(cfg *Config) (notify.Config, bool, error) {
	if cfg == nil || cfg.Notify == nil || !cfg.Notify.Enabled {
		return notify.Config{}, false, nil
	}
	nc := cfg.Notify
	if strings.TrimSpace(nc.Token) == "" {
		return notify.Config{}, false, fmt.Errorf("notify.token is required when notify.enabled is true")
	}
	if nc.ChatID == 0 {
		return notify.Config{}, false, fmt.Errorf("notify.chat_id is required when notify.enabled is true")
	}
	poll, err := parseDurationOrDefault("notify.poll_timeout", nc.PollTimeout, 10*time.Second)
	if err != nil {
		return notify.Config{}, false, err
	}
	return notify.Config{
		Token:       nc.Token,
		ChatID:      nc.ChatID,
		PollTimeout: poll,
	}, true, nil
}
