package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/sources/homepage"
)

// SeedReloader re-imports the Homepage bookmarks file into the engine,
// periodically and on manual trigger. Only URLs not yet present are added,
// so repeated runs are cheap and never duplicate records.
type SeedReloader struct {
	importer      *homepage.Importer
	target        homepage.Target
	logger        logger.Logger
	interval      time.Duration // <= 0 disables periodic runs
	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger chan struct{}
}

// NewSeedReloader creates a new seed reloader
func NewSeedReloader(
	importer *homepage.Importer,
	target homepage.Target,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *SeedReloader {
	return &SeedReloader{
		importer:      importer,
		target:        target,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start imports once, then keeps reloading in the background until Stop or
// ctx is done. A failed first import is returned, but the loop still runs so
// a fixed file is picked up by the next tick or trigger.
func (sr *SeedReloader) Start(ctx context.Context) error {
	initialErr := sr.Reload(ctx)

	var tick <-chan time.Time
	var ticker *time.Ticker
	if sr.interval > 0 {
		ticker = time.NewTicker(sr.interval)
		tick = ticker.C
	}

	go func() {
		if ticker != nil {
			defer ticker.Stop()
		}
		for {
			select {
			case <-tick:
				sr.reloadLogged(ctx)
			case <-sr.manualTrigger:
				sr.logger.Info("manual seed reload triggered")
				sr.reloadLogged(ctx)
			case <-sr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	if initialErr != nil {
		return fmt.Errorf("initial seed import failed: %w", initialErr)
	}
	return nil
}

// Stop stops the reloader. Safe to call more than once.
func (sr *SeedReloader) Stop() {
	sr.stopOnce.Do(func() { close(sr.stopCh) })
}

// Reload runs one import.
func (sr *SeedReloader) Reload(ctx context.Context) error {
	res, err := sr.importer.Import(ctx, sr.target)
	if err != nil {
		return err
	}
	sr.logger.Debug("seed reload done",
		logger.Int("added", res.Added),
		logger.Int("skipped", res.Skipped),
		logger.Int("deferred", res.Deferred),
		logger.Int("failed", res.Failed))
	return nil
}

func (sr *SeedReloader) reloadLogged(ctx context.Context) {
	if err := sr.Reload(ctx); err != nil {
		sr.logger.Error("failed to reload seed bookmarks", logger.Error(err))
	}
}
