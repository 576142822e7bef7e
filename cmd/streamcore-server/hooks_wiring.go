package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alxayo/streamcast/internal/hooks"
)

// buildHookManager constructs the hook manager and registers every
// shell/webhook hook the -hook-script/-hook-webhook flags named, plus stdio
// output if requested.
func buildHookManager(cfg *cliConfig, log *slog.Logger) (*hooks.Manager, error) {
	mgr := hooks.NewManager(hooks.Config{
		Timeout:     cfg.hookTimeout.String(),
		Concurrency: cfg.hookConcurrency,
		StdioFormat: cfg.hookStdioFormat,
	}, log)

	if err := registerShellHooks(mgr, cfg.hookScripts, cfg.hookTimeout, log); err != nil {
		return nil, err
	}
	if err := registerWebhookHooks(mgr, cfg.hookWebhooks, cfg.hookTimeout, log); err != nil {
		return nil, err
	}
	return mgr, nil
}

func registerShellHooks(mgr *hooks.Manager, scripts []string, timeout time.Duration, log *slog.Logger) error {
	for i, script := range scripts {
		parts := strings.SplitN(script, "=", 2)
		eventType := hooks.EventType(parts[0])
		scriptPath := parts[1]

		hook := hooks.NewShellHook(fmt.Sprintf("shell_%d", i), scriptPath, timeout)
		if err := mgr.RegisterHook(eventType, hook); err != nil {
			return fmt.Errorf("register shell hook %s: %w", script, err)
		}
		log.Info("registered shell hook", "event_type", eventType, "script_path", scriptPath)
	}
	return nil
}

func registerWebhookHooks(mgr *hooks.Manager, webhooks []string, timeout time.Duration, log *slog.Logger) error {
	for i, webhook := range webhooks {
		parts := strings.SplitN(webhook, "=", 2)
		eventType := hooks.EventType(parts[0])
		url := parts[1]

		hook := hooks.NewWebhookHook(fmt.Sprintf("webhook_%d", i), url, timeout)
		if err := mgr.RegisterHook(eventType, hook); err != nil {
			return fmt.Errorf("register webhook hook %s: %w", webhook, err)
		}
		log.Info("registered webhook hook", "event_type", eventType, "webhook_url", url)
	}
	return nil
}
