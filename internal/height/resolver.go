// Package height maps calendar days to block height ranges through a block
// explorer's getblocknobytime endpoint.
package height

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"defiFetch/internal/retry"
)

const (
	// DefaultKeyedInterval spaces queries when an API key is configured.
	DefaultKeyedInterval = 250 * time.Millisecond
	// DefaultAnonymousInterval spaces queries for keyless access.
	DefaultAnonymousInterval = 5 * time.Second

	defaultAttempts = 3
)

// Range is an inclusive block height range.
type Range struct {
	Start uint64
	End   uint64
}

// Config configures a Resolver.
type Config struct {
	// BaseURL is the explorer API endpoint, e.g. https://api.etherscan.io/api.
	BaseURL string
	APIKey  string
	// Location defines local midnight. Nil means UTC.
	Location *time.Location
	// Interval is the minimum spacing between queries. Zero picks a default
	// based on whether APIKey is set.
	Interval   time.Duration
	Attempts   int
	RetryDelay time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// APIError is an explorer response whose status field is not "1".
type APIError struct {
	Status  string
	Message string
	Result  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("explorer status %s: %s %s", e.Status, e.Message, e.Result)
}

// StatusError is a non-200 explorer response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("explorer http %d: %s", e.StatusCode, e.Body)
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// Resolver resolves and memoizes day height ranges for one chain.
type Resolver struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	mu   sync.Mutex
	memo map[string]Range
}

func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("explorer url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid explorer url: %w", err)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultAnonymousInterval
		if cfg.APIKey != "" {
			cfg.Interval = DefaultKeyedInterval
		}
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resolver{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		logger:  logger,
		memo:    make(map[string]Range),
	}, nil
}

// Resolve returns the first block at or after local midnight of day and the
// last block at or before the end of that day. Results are memoized per day.
func (r *Resolver) Resolve(ctx context.Context, day time.Time) (Range, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, r.cfg.Location)
	key := start.Format(time.DateOnly)

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.memo[key]; ok {
		return cached, nil
	}

	end := start.AddDate(0, 0, 1).Add(-time.Second)
	startHeight, err := r.BlockByTime(ctx, start.Unix(), "after")
	if err != nil {
		return Range{}, fmt.Errorf("resolve start of %s: %w", key, err)
	}
	endHeight, err := r.BlockByTime(ctx, end.Unix(), "before")
	if err != nil {
		return Range{}, fmt.Errorf("resolve end of %s: %w", key, err)
	}

	result := Range{Start: startHeight, End: endHeight}
	r.memo[key] = result
	r.logger.Info("day heights resolved",
		zap.String("day", key),
		zap.Uint64("start", result.Start),
		zap.Uint64("end", result.End),
	)
	return result, nil
}

// BlockByTime queries the block closest to timestamp; closest is "before" or "after".
func (r *Resolver) BlockByTime(ctx context.Context, timestamp int64, closest string) (uint64, error) {
	params := url.Values{
		"module":    {"block"},
		"action":    {"getblocknobytime"},
		"timestamp": {strconv.FormatInt(timestamp, 10)},
		"closest":   {closest},
	}
	if r.cfg.APIKey != "" {
		params.Set("apikey", r.cfg.APIKey)
	}
	fullURL := r.cfg.BaseURL
	if strings.Contains(fullURL, "?") {
		fullURL += "&" + params.Encode()
	} else {
		fullURL += "?" + params.Encode()
	}

	var height uint64
	err := retry.Do(ctx, retry.Policy{
		Attempts:  r.cfg.Attempts,
		BaseDelay: r.cfg.RetryDelay,
		OnError: func(attempt int, err error) {
			r.logger.Warn("explorer query failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int64("timestamp", timestamp),
				zap.String("closest", closest),
				zap.Error(err),
			)
		},
	}, func(ctx context.Context) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		var err error
		height, err = r.query(ctx, fullURL)
		return err
	})
	return height, err
}

func (r *Resolver) query(ctx context.Context, fullURL string) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return 0, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("explorer request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read explorer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded explorerResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return 0, fmt.Errorf("decode explorer response: %w", err)
	}
	result := strings.Trim(string(decoded.Result), `"`)
	if decoded.Status != "1" {
		return 0, &APIError{Status: decoded.Status, Message: decoded.Message, Result: result}
	}

	height, err := strconv.ParseUint(result, 10, 64)
	if err != nil {
		return 0, &APIError{Status: decoded.Status, Message: "non-integer result", Result: result}
	}
	return height, nil
}
