package sync

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/coldvault/agent/internal/utils"
)

// RunDaemon validates the cron expression, runs one backup immediately,
// then fires SyncOnce on every subsequent cron tick until SIGINT/SIGTERM.
// A firing whose predecessor has not yet completed is skipped.
func (o *Orchestrator) RunDaemon(ctx context.Context, schedule string, opts Options) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return utils.NewValidationError(fmt.Sprintf("invalid cron expression %q: %v", schedule, err))
	}

	scheduler := cron.New()

	var mu sync.Mutex
	running := false

	opts.Daemon = true
	o.logger.Info("running initial backup before entering daemon mode")
	o.SyncOnce(ctx, opts)

	_, err := scheduler.AddFunc(schedule, func() {
		mu.Lock()
		if running {
			o.logger.Warn("skipping scheduled run: previous firing still in progress")
			mu.Unlock()
			return
		}
		running = true
		mu.Unlock()

		o.SyncOnce(ctx, opts)

		mu.Lock()
		running = false
		mu.Unlock()
	})
	if err != nil {
		return utils.NewValidationError(fmt.Sprintf("invalid cron expression %q: %v", schedule, err))
	}

	scheduler.Start()
	defer scheduler.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		o.logger.Info("received shutdown signal, stopping scheduler")
	case <-ctx.Done():
	}

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	return nil
}
