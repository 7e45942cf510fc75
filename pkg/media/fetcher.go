package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrTooLarge is returned when a payload exceeds the fetcher's size cap.
var ErrTooLarge = errors.New("media payload too large")

// Source fetches media bytes by URL.
type Source interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherConfig configures an HTTP media fetcher.
type FetcherConfig struct {
	// Username and Password are sent as basic auth when set (the provider's
	// account sid and auth token).
	Username string
	Password string

	// MaxBytes caps a single payload. Defaults to 16 MiB.
	MaxBytes int64

	// Timeout bounds a single download. Defaults to 30s.
	Timeout time.Duration
}

// Fetcher downloads media over HTTP.
type Fetcher struct {
	cfg    FetcherConfig
	client *http.Client
}

// NewFetcher creates an HTTP media fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Fetch downloads url, following redirects.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building media request: %w", err)
	}
	if f.cfg.Username != "" {
		req.SetBasicAuth(f.cfg.Username, f.cfg.Password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching media: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading media: %w", err)
	}
	if int64(len(data)) > f.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.cfg.MaxBytes)
	}
	return data, nil
}
