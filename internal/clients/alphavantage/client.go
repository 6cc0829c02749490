// Package alphavantage provides a rate-limited client for the Alpha Vantage
// market data API, used to fetch monthly adjusted price history.
//
// The free tier allows 25 requests per day and 5 per minute; the client
// enforces both limits itself and caches responses so that repeated
// covariance computations do not burn through the budget.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://www.alphavantage.co/query"

	// Free tier limits
	dailyRequestLimit = 25
	requestsPerMinute = 5
)

// ErrRateLimitExceeded indicates the daily request budget is spent.
type ErrRateLimitExceeded struct {
	ResetsAt time.Time
}

func (e ErrRateLimitExceeded) Error() string {
	return fmt.Sprintf("alpha vantage rate limit exceeded, resets at %s", e.ResetsAt.Format(time.RFC3339))
}

// ErrInvalidAPIKey indicates the API rejected the configured key.
type ErrInvalidAPIKey struct{}

func (e ErrInvalidAPIKey) Error() string {
	return "alpha vantage API key is invalid or missing"
}

// ErrSymbolNotFound indicates the API returned no data for a symbol.
type ErrSymbolNotFound struct {
	Symbol string
}

func (e ErrSymbolNotFound) Error() string {
	return fmt.Sprintf("no data for symbol %s", e.Symbol)
}

// MonthlyPrice is one month of adjusted close data.
type MonthlyPrice struct {
	Month         string  `json:"month"` // YYYY-MM
	Close         float64 `json:"close"`
	AdjustedClose float64 `json:"adjusted_close"`
}

// CacheTTL configures per-category cache lifetimes.
type CacheTTL struct {
	PriceData time.Duration
}

// DefaultCacheTTL returns the default cache lifetimes. Monthly series only
// gain a new data point once a month, so a long TTL is safe.
func DefaultCacheTTL() CacheTTL {
	return CacheTTL{
		PriceData: 24 * time.Hour,
	}
}

type cacheEntry struct {
	data      interface{}
	expiresAt time.Time
}

// ClientInterface is the surface consumed by the price history module.
type ClientInterface interface {
	GetMonthlyAdjustedPrices(ctx context.Context, symbol string) ([]MonthlyPrice, error)
	GetRemainingRequests() int
}

// Client is a rate-limited, caching Alpha Vantage API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger

	mu           sync.Mutex
	dailyCount   int
	dailyResetAt time.Time
	cache        map[string]cacheEntry
	cacheTTL     CacheTTL
}

// NewClient creates a new Alpha Vantage client.
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:      rate.NewLimiter(rate.Every(time.Minute/requestsPerMinute), 1),
		log:          log.With().Str("component", "alphavantage").Logger(),
		dailyResetAt: nextMidnightUTC(),
		cache:        make(map[string]cacheEntry),
		cacheTTL:     DefaultCacheTTL(),
	}
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// SetCacheTTL overrides the default cache lifetimes.
func (c *Client) SetCacheTTL(ttl CacheTTL) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheTTL = ttl
}

// GetRemainingRequests returns how many requests are left in today's budget.
func (c *Client) GetRemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rolloverLocked()
	return dailyRequestLimit - c.dailyCount
}

// ResetDailyCounter resets the daily request counter. Called by the
// scheduler at midnight UTC.
func (c *Client) ResetDailyCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dailyCount = 0
	c.dailyResetAt = nextMidnightUTC()
	c.log.Info().Msg("Daily request counter reset")
}

// checkRateLimit consumes one request from the daily budget.
func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rolloverLocked()

	if c.dailyCount >= dailyRequestLimit {
		return ErrRateLimitExceeded{ResetsAt: c.dailyResetAt}
	}
	c.dailyCount++
	return nil
}

// rolloverLocked resets the counter when the reset time has passed.
// Caller must hold c.mu.
func (c *Client) rolloverLocked() {
	if time.Now().UTC().After(c.dailyResetAt) {
		c.dailyCount = 0
		c.dailyResetAt = nextMidnightUTC()
	}
}

// GetMonthlyAdjustedPrices fetches the full monthly adjusted time series for
// a symbol, sorted oldest first.
func (c *Client) GetMonthlyAdjustedPrices(ctx context.Context, symbol string) ([]MonthlyPrice, error) {
	params := map[string]string{"symbol": symbol}
	key := buildCacheKey("TIME_SERIES_MONTHLY_ADJUSTED", params)

	if cached, ok := c.getFromCache(key); ok {
		if prices, ok := cached.([]MonthlyPrice); ok {
			c.log.Debug().Str("symbol", symbol).Msg("Monthly prices served from cache")
			return prices, nil
		}
	}

	body, err := c.request(ctx, "TIME_SERIES_MONTHLY_ADJUSTED", params)
	if err != nil {
		return nil, err
	}

	prices, err := parseMonthlyAdjusted(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse monthly series for %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return nil, ErrSymbolNotFound{Symbol: symbol}
	}

	c.setCache(key, prices, c.cacheTTL.PriceData)

	c.log.Info().
		Str("symbol", symbol).
		Int("months", len(prices)).
		Msg("Fetched monthly adjusted prices")

	return prices, nil
}

// request performs a rate-limited GET against the API and checks the body
// for the error shapes Alpha Vantage hides inside 200 responses.
func (c *Client) request(ctx context.Context, function string, params map[string]string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrInvalidAPIKey{}
	}
	if err := c.checkRateLimit(); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	q := url.Values{}
	q.Set("function", function)
	q.Set("apikey", c.apiKey)
	for k, v := range params {
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from alpha vantage", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if err := c.checkAPIError(body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkAPIError detects error payloads delivered with a 200 status.
func (c *Client) checkAPIError(body []byte) error {
	s := string(body)

	// The API wraps throttling notices in "Note", "Information", or a plain
	// text thank-you message.
	if strings.Contains(s, "Thank you for using Alpha Vantage") {
		return ErrRateLimitExceeded{ResetsAt: nextMidnightUTC()}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil // not JSON, let the parser deal with it
	}
	if _, ok := envelope["Note"]; ok {
		return ErrRateLimitExceeded{ResetsAt: nextMidnightUTC()}
	}
	if _, ok := envelope["Information"]; ok {
		return ErrRateLimitExceeded{ResetsAt: nextMidnightUTC()}
	}
	if msg, ok := envelope["Error Message"]; ok {
		return fmt.Errorf("alpha vantage error: %s", string(msg))
	}

	return nil
}

// Cache

func (c *Client) setCache(key string, data interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{data: data, expiresAt: time.Now().Add(ttl)}
}

func (c *Client) getFromCache(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.cache, key)
		return nil, false
	}
	return entry.data, true
}

// ClearCache drops all cached responses.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cacheEntry)
}

// buildCacheKey builds a deterministic cache key from the function name and
// parameters, excluding the API key.
func buildCacheKey(function string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "apikey" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(function)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString(":")
		b.WriteString(params[k])
	}
	return b.String()
}

// Parsing

// parseMonthlyAdjusted parses a TIME_SERIES_MONTHLY_ADJUSTED response into
// monthly prices sorted oldest first.
func parseMonthlyAdjusted(body []byte) ([]MonthlyPrice, error) {
	var payload struct {
		Series map[string]struct {
			Close         string `json:"4. close"`
			AdjustedClose string `json:"5. adjusted close"`
		} `json:"Monthly Adjusted Time Series"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	prices := make([]MonthlyPrice, 0, len(payload.Series))
	for date, v := range payload.Series {
		// Keys are YYYY-MM-DD (last trading day of the month).
		if len(date) < 7 {
			continue
		}
		prices = append(prices, MonthlyPrice{
			Month:         date[:7],
			Close:         parseFloat64(v.Close),
			AdjustedClose: parseFloat64(v.AdjustedClose),
		})
	}

	sort.Slice(prices, func(i, j int) bool { return prices[i].Month < prices[j].Month })
	return prices, nil
}

// parseFloat64 parses the API's loose numeric strings. Placeholder values
// ("None", "-", ".") and trailing percent signs are tolerated.
func parseFloat64(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" || s == "None" || s == "null" || s == "-" || s == "." {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func nextMidnightUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}
