// Package history persists monthly adjusted price series in SQLite so that
// covariance estimation does not depend on the market data API being
// reachable (or having request budget left).
package history

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/mcfolio/internal/clients/alphavantage"
	"github.com/aristath/mcfolio/internal/database"
)

// Store provides access to cached monthly price data.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a price history store and ensures its schema exists.
func NewStore(db *sql.DB, log zerolog.Logger) (*Store, error) {
	s := &Store{
		db:  db,
		log: log.With().Str("component", "history").Logger(),
	}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS monthly_prices (
			symbol     TEXT NOT NULL,
			year_month TEXT NOT NULL,
			close      REAL NOT NULL,
			adj_close  REAL NOT NULL,
			synced_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			PRIMARY KEY (symbol, year_month)
		);
		CREATE INDEX IF NOT EXISTS idx_monthly_prices_symbol
			ON monthly_prices (symbol, year_month);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return nil
}

// MonthlyPrice is one cached month of adjusted close data.
type MonthlyPrice struct {
	YearMonth string  `json:"year_month"` // YYYY-MM
	Close     float64 `json:"close"`
	AdjClose  float64 `json:"adj_close"`
}

// SyncMonthlyPrices writes a fetched monthly series to the cache in a single
// transaction, replacing any overlapping months.
func (s *Store) SyncMonthlyPrices(symbol string, prices []alphavantage.MonthlyPrice) error {
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO monthly_prices (symbol, year_month, close, adj_close)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, p := range prices {
			if _, err := stmt.Exec(symbol, p.Month, p.Close, p.AdjustedClose); err != nil {
				return fmt.Errorf("failed to insert monthly price %s/%s: %w", symbol, p.Month, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("symbol", symbol).
		Int("count", len(prices)).
		Msg("Synced monthly prices")

	return nil
}

// GetMonthlyPrices fetches the cached monthly series for a symbol from the
// given year onward, oldest first.
func (s *Store) GetMonthlyPrices(symbol string, fromYear int) ([]MonthlyPrice, error) {
	rows, err := s.db.Query(`
		SELECT year_month, close, adj_close
		FROM monthly_prices
		WHERE symbol = ? AND year_month >= ?
		ORDER BY year_month ASC
	`, symbol, fmt.Sprintf("%04d-01", fromYear))
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly prices: %w", err)
	}
	defer rows.Close()

	var prices []MonthlyPrice
	for rows.Next() {
		var p MonthlyPrice
		if err := rows.Scan(&p.YearMonth, &p.Close, &p.AdjClose); err != nil {
			return nil, fmt.Errorf("failed to scan monthly price: %w", err)
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monthly prices: %w", err)
	}

	return prices, nil
}

// HasMonthlyData checks whether the cache holds any data for a symbol.
// Used to decide if an initial seed fetch is needed.
func (s *Store) HasMonthlyData(symbol string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM monthly_prices WHERE symbol = ?", symbol).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check monthly data: %w", err)
	}
	return count > 0, nil
}

// Symbols returns every symbol present in the cache.
func (s *Store) Symbols() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT symbol FROM monthly_prices ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	return symbols, nil
}

// AlignedSeries builds time-aligned adjusted close series for a set of
// symbols from the given year onward: only months present for every symbol
// are kept, so the covariance engine sees equal-length, co-dated series.
func (s *Store) AlignedSeries(symbols []string, fromYear int) (map[string][]float64, error) {
	if len(symbols) == 0 {
		return map[string][]float64{}, nil
	}

	bySymbol := make(map[string]map[string]float64, len(symbols))
	for _, sym := range symbols {
		prices, err := s.GetMonthlyPrices(sym, fromYear)
		if err != nil {
			return nil, err
		}
		if len(prices) == 0 {
			return nil, fmt.Errorf("no cached price history for %s", sym)
		}
		byMonth := make(map[string]float64, len(prices))
		for _, p := range prices {
			byMonth[p.YearMonth] = p.AdjClose
		}
		bySymbol[sym] = byMonth
	}

	// Intersect months across all symbols, keeping the first symbol's
	// chronological order.
	first, err := s.GetMonthlyPrices(symbols[0], fromYear)
	if err != nil {
		return nil, err
	}

	var months []string
	for _, p := range first {
		common := true
		for _, sym := range symbols[1:] {
			if _, ok := bySymbol[sym][p.YearMonth]; !ok {
				common = false
				break
			}
		}
		if common {
			months = append(months, p.YearMonth)
		}
	}

	series := make(map[string][]float64, len(symbols))
	for _, sym := range symbols {
		values := make([]float64, len(months))
		for i, m := range months {
			values[i] = bySymbol[sym][m]
		}
		series[sym] = values
	}

	s.log.Debug().
		Int("symbols", len(symbols)).
		Int("months", len(months)).
		Msg("Built aligned price series")

	return series, nil
}
