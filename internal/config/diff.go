package config

import (
	"sort"
	"strings"

	logx "dropwatch/pkg/logx"
)

// SummarizeChange returns the changed top-level sections plus structured
// attrs safe for logging (the Telegram token is never included).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		(strings.TrimSpace(oldCfg.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Telegram.Token) != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Catalog != newCfg.Catalog {
		changed = append(changed, "catalog")
		attrs = append(attrs,
			logx.String("catalog.base_url", strings.TrimSpace(newCfg.Catalog.BaseURL)),
			logx.String("catalog.timeout", strings.TrimSpace(newCfg.Catalog.Timeout)),
			logx.Int("catalog.retry_max", newCfg.Catalog.RetryMax),
		)
	}

	if oldCfg.Watcher != newCfg.Watcher {
		changed = append(changed, "watcher")
		attrs = append(attrs, logx.String("watcher.poll_interval", strings.TrimSpace(newCfg.Watcher.PollInterval)))
	}

	// Nil means runtime defaults; compare against them so omitting the
	// section is not itself a change.
	defN := NotifierConfig{RatePerSec: 3}
	oldN, newN := defN, defN
	if oldCfg.Notifier != nil {
		oldN = *oldCfg.Notifier
	}
	if newCfg.Notifier != nil {
		newN = *newCfg.Notifier
	}
	if oldN != newN {
		changed = append(changed, "notifier")
		attrs = append(attrs, logx.Int("notifier.rate_per_sec", newN.RatePerSec))
	}

	sort.Strings(changed)
	return changed, attrs
}
