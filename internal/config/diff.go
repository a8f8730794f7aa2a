package config

import (
	"sort"
	"strings"

	logx "vesper/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.notify_enabled", newCfg.Logging.Notify.Enabled),
		)
	}

	// Scheduler
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
			logx.Int("scheduler.queue_size", newCfg.Scheduler.QueueSize),
			logx.String("scheduler.default_timeout", strings.TrimSpace(newCfg.Scheduler.DefaultTimeout)),
		)
	}

	// API
	if oldCfg.API != newCfg.API {
		changed = append(changed, "api")
		attrs = append(attrs,
			logx.Bool("api.enabled", newCfg.API.Enabled),
			logx.String("api.addr", strings.TrimSpace(newCfg.API.Addr)),
		)
	}

	// Notify (never log token). Nil means disabled.
	oN := derefNotify(oldCfg.Notify)
	nN := derefNotify(newCfg.Notify)
	if oN.Enabled != nN.Enabled ||
		oN.ChatID != nN.ChatID ||
		strings.TrimSpace(oN.PollTimeout) != strings.TrimSpace(nN.PollTimeout) ||
		(strings.TrimSpace(oN.Token) != "") != (strings.TrimSpace(nN.Token) != "") {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.Bool("notify.enabled", nN.Enabled),
			logx.Bool("notify.token_set", strings.TrimSpace(nN.Token) != ""),
			logx.Bool("notify.chat_set", nN.ChatID != 0),
		)
	}

	// History. Nil means disabled.
	oH := derefHistory(oldCfg.History)
	nH := derefHistory(newCfg.History)
	if oH != nH {
		changed = append(changed, "history")
		attrs = append(attrs,
			logx.Bool("history.enabled", nH.Enabled),
			logx.Bool("history.path_set", strings.TrimSpace(nH.Path) != ""),
			logx.Int("history.retention", nH.Retention),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefNotify(n *NotifyConfig) NotifyConfig {
	if n == nil {
		return NotifyConfig{}
	}
	return *n
}

func derefHistory(h *HistoryConfig) HistoryConfig {
	if h == nil {
		return HistoryConfig{}
	}
	return *h
}
