// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir            string // Base directory for databases and run output (always absolute)
	PortfolioFile      string // Path to the portfolio definitions JSON file
	AlphaVantageAPIKey string
	PriceStartYear     int    // Earliest year of price history used for covariance estimation
	RefreshSchedule    string // Cron expression for the price refresh job
	RiskFreeRate       float64
	LogLevel           string
	Port               int
	DevMode            bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("MCFOLIO_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	portfolioFile := getEnv("MCFOLIO_PORTFOLIO_FILE", "")
	if portfolioFile == "" {
		portfolioFile = filepath.Join(absDataDir, "portfolios.json")
	}

	cfg := &Config{
		DataDir:            absDataDir,
		PortfolioFile:      portfolioFile,
		AlphaVantageAPIKey: getEnv("ALPHAVANTAGE_API_KEY", ""),
		PriceStartYear:     getEnvAsInt("PRICE_START_YEAR", 2013),
		RefreshSchedule:    getEnv("REFRESH_SCHEDULE", "0 6 * * *"), // daily 06:00
		RiskFreeRate:       getEnvAsFloat("RISK_FREE_RATE", 0.02),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Port:               getEnvAsInt("PORT", 8001),
		DevMode:            getEnvAsBool("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.PriceStartYear < 1900 || c.PriceStartYear > 2100 {
		return fmt.Errorf("PRICE_START_YEAR out of range: %d", c.PriceStartYear)
	}
	if c.RiskFreeRate < -1 || c.RiskFreeRate > 1 {
		return fmt.Errorf("RISK_FREE_RATE out of range: %v", c.RiskFreeRate)
	}
	// Note: Alpha Vantage key optional; without it only pre-seeded price
	// history and explicit mu/sigma portfolios are usable.
	return nil
}

// RunsDir returns the directory where run reports are written.
func (c *Config) RunsDir() string {
	return filepath.Join(c.DataDir, "runs")
}

// HistoryDBPath returns the path of the price history database.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
