package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"quotecore/internal/config"
	"quotecore/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("TTL (quote/intraday/daily/longterm/negative): %ds / %ds / %ds / %ds / %ds",
			cfg.TTL.Quote, cfg.TTL.Intraday, cfg.TTL.Daily, cfg.TTL.LongTerm, cfg.TTL.Negative),
		fmt.Sprintf("Query defaults: period=%s limit=%d", cfg.Query.DefaultPeriod, cfg.Query.DefaultLimit),
		fmt.Sprintf("Dispatch: retries=%d in-flight=%d timeout=%ds",
			cfg.Dispatch.MaxRetries, cfg.Dispatch.MaxInFlight, cfg.Dispatch.DefaultTimeout),
		fmt.Sprintf("Markets: US=%s HK=%s crypto=%s autocorrect=%s",
			onOff(cfg.Features.USStock), onOff(cfg.Features.HKStock),
			onOff(cfg.Features.Crypto), onOff(cfg.Features.AutoCorrect)),
		sectionLine("Market config", cfg.Market),
	}

	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func onOff(ok bool) string {
	if ok {
		return "on"
	}
	return "off"
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
