package homepage

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/engine"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// Target is the part of the engine the importer drives.
type Target interface {
	State() engine.State
	Submit(ctx context.Context, d domain.Draft) error
}

// ImportResult summarizes one seed run. Deferred drafts were not attempted
// because another add was in flight; the next run picks them up.
type ImportResult struct {
	Added    int
	Skipped  int
	Deferred int
	Failed   int
}

// Importer submits Homepage bookmarks through the engine's add path, so
// imported records are normalized, validated and gated like typed ones.
type Importer struct {
	loader *Loader
	logger logger.Logger
}

// NewImporter creates an importer reading filePath.
func NewImporter(filePath string, log logger.Logger) *Importer {
	return &Importer{
		loader: NewLoader(filePath),
		logger: log,
	}
}

// Import loads the file and adds every bookmark whose normalized URL is not
// already in the target's collection.
func (imp *Importer) Import(ctx context.Context, target Target) (ImportResult, error) {
	config, err := imp.loader.Load()
	if err != nil {
		return ImportResult{}, err
	}
	return imp.ImportDrafts(ctx, target, MapDrafts(config))
}

// ImportDrafts adds drafts one at a time, skipping known URLs.
func (imp *Importer) ImportDrafts(ctx context.Context, target Target, drafts []domain.Draft) (ImportResult, error) {
	st := target.State()
	if st.Identity == "" {
		return ImportResult{}, fmt.Errorf("failed to import bookmarks: %w", domain.ErrNoIdentity)
	}

	// Events from a networked store may land after Add returns, so URLs
	// submitted during this run are tracked locally too.
	known := make(map[string]bool, len(st.Bookmarks)+len(drafts))
	for _, b := range st.Bookmarks {
		known[domain.NormalizeURL(b.URL)] = true
	}

	var res ImportResult
	for _, d := range drafts {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("failed to import bookmarks: %w", err)
		}

		u := domain.NormalizeURL(d.URL)
		if known[u] {
			res.Skipped++
			continue
		}
		known[u] = true

		err := target.Submit(ctx, d)
		switch {
		case err == nil:
			res.Added++
		case errors.Is(err, domain.ErrNoIdentity):
			return res, fmt.Errorf("failed to import bookmarks: %w", err)
		case errors.Is(err, domain.ErrAddInFlight):
			res.Deferred++
			imp.logger.Debug("seed bookmark deferred, another add is in flight",
				logger.String("url", d.URL))
		default:
			res.Failed++
			imp.logger.Warn("seed bookmark rejected",
				logger.String("title", d.Title),
				logger.String("url", d.URL),
				logger.Error(err))
		}
	}

	imp.logger.Info("seed import finished",
		logger.String("owner", st.Identity),
		logger.Int("added", res.Added),
		logger.Int("skipped", res.Skipped),
		logger.Int("deferred", res.Deferred),
		logger.Int("failed", res.Failed))

	return res, nil
}
