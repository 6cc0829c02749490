package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/mcfolio/internal/clients/alphavantage"
	"github.com/aristath/mcfolio/internal/modules/history"
)

// refreshTimeout bounds one full refresh pass. The per-request rate limiter
// (5/min) makes a large symbol set slow by design.
const refreshTimeout = 30 * time.Minute

// PriceRefreshJob re-fetches the monthly price series of every symbol already
// tracked in the history store, picking up newly closed months.
type PriceRefreshJob struct {
	store  *history.Store
	client alphavantage.ClientInterface
	log    zerolog.Logger
}

// NewPriceRefreshJob creates a price refresh job.
func NewPriceRefreshJob(store *history.Store, client alphavantage.ClientInterface, log zerolog.Logger) *PriceRefreshJob {
	return &PriceRefreshJob{
		store:  store,
		client: client,
		log:    log.With().Str("component", "price_refresh").Logger(),
	}
}

// Name returns the job name.
func (j *PriceRefreshJob) Name() string { return "price_refresh" }

// Run refreshes all tracked symbols. Individual symbol failures are logged
// and skipped; hitting the daily API budget aborts the pass.
func (j *PriceRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	symbols, err := j.store.Symbols()
	if err != nil {
		return fmt.Errorf("failed to list tracked symbols: %w", err)
	}
	if len(symbols) == 0 {
		j.log.Debug().Msg("No tracked symbols, nothing to refresh")
		return nil
	}

	refreshed := 0
	for _, symbol := range symbols {
		prices, err := j.client.GetMonthlyAdjustedPrices(ctx, symbol)
		if err != nil {
			var rateLimited alphavantage.ErrRateLimitExceeded
			if errors.As(err, &rateLimited) {
				j.log.Warn().
					Int("refreshed", refreshed).
					Time("resets_at", rateLimited.ResetsAt).
					Msg("Daily API budget exhausted, aborting refresh pass")
				return nil
			}
			j.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to refresh symbol")
			continue
		}

		if err := j.store.SyncMonthlyPrices(symbol, prices); err != nil {
			j.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to store refreshed prices")
			continue
		}
		refreshed++
	}

	j.log.Info().
		Int("refreshed", refreshed).
		Int("tracked", len(symbols)).
		Int("requests_remaining", j.client.GetRemainingRequests()).
		Msg("Price refresh completed")

	return nil
}

// CheckpointJob runs a WAL checkpoint on a database so the log file does not
// grow without bound between restarts.
type CheckpointJob struct {
	db  interface{ WALCheckpoint(mode string) error }
	log zerolog.Logger
}

// NewCheckpointJob creates a WAL checkpoint job.
func NewCheckpointJob(db interface{ WALCheckpoint(mode string) error }, log zerolog.Logger) *CheckpointJob {
	return &CheckpointJob{
		db:  db,
		log: log.With().Str("component", "wal_checkpoint").Logger(),
	}
}

// Name returns the job name.
func (j *CheckpointJob) Name() string { return "wal_checkpoint" }

// Run performs the checkpoint.
func (j *CheckpointJob) Run() error {
	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	return nil
}
