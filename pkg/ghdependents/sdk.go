// Package ghdependents lists the repositories that depend on a GitHub
// repository, as shown on its "Used by" network page.
//
// Example usage:
//
//	deps, err := ghdependents.GetDependents(ctx, "dotnet", "roslyn", "", 3)
//	if err != nil {
//	    return err
//	}
//	for d, err := range deps {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(d.FullName(), d.Stars)
//	}
//
// Pages are fetched one at a time as the sequence is consumed. A Client
// can be reused across traversals:
//
//	client, err := ghdependents.New(
//	    ghdependents.WithTimeout(10*time.Second),
//	    ghdependents.WithBrowser(),
//	)
//	defer client.Close()
package ghdependents

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/IshaanNene/ghdependents/internal/config"
	"github.com/IshaanNene/ghdependents/internal/dependents"
	"github.com/IshaanNene/ghdependents/internal/fetcher"
	"github.com/IshaanNene/ghdependents/internal/observability"
	"github.com/IshaanNene/ghdependents/internal/types"
)

// Dependent is one repository from a dependents listing.
type Dependent = types.Dependent

// Errors reported by a traversal. Use errors.Is and errors.As to match them.
var (
	ErrInvalidPageBudget = types.ErrInvalidPageBudget
	ErrInvalidURL        = types.ErrInvalidURL
	ErrContainerNotFound = types.ErrContainerNotFound
	ErrUnexpectedMarkup  = types.ErrUnexpectedMarkup
	ErrEmptyResponse     = types.ErrEmptyResponse
)

type (
	// FetchError reports a page that could not be retrieved.
	FetchError = types.FetchError

	// StructuralError reports a page whose markup is not a dependents listing.
	StructuralError = types.StructuralError
)

// PageSize is the number of dependents GitHub renders per listing page.
const PageSize = dependents.PageSize

// Fetcher retrieves listing pages. Supply one with WithFetcher to replace
// the built-in HTTP or browser fetchers.
type Fetcher = fetcher.Fetcher

// Client runs dependents traversals.
type Client struct {
	cfg     *config.Config
	fetcher fetcher.Fetcher
	scraper *dependents.Scraper
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithFetcher replaces the fetcher built from configuration.
func WithFetcher(f Fetcher) Option {
	return func(c *Client) { c.fetcher = f }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHost points the client at a GitHub Enterprise host.
func WithHost(host string) Option {
	return func(c *Client) { c.cfg.Scraper.Host = host }
}

// WithUserAgent sets a fixed User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.cfg.Fetcher.UserAgents = []string{ua} }
}

// WithTimeout sets the per-page request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.cfg.Fetcher.RequestTimeout = d }
}

// WithBrowser fetches pages through a headless browser instead of HTTP.
func WithBrowser() Option {
	return func(c *Client) { c.cfg.Fetcher.Type = "browser" }
}

// New creates a Client with the given options.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		cfg:    config.DefaultConfig(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := config.Validate(c.cfg); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	if c.fetcher == nil {
		f, err := fetcher.New(c.cfg, c.logger)
		if err != nil {
			return nil, fmt.Errorf("create fetcher: %w", err)
		}
		c.fetcher = f
	}

	c.scraper = dependents.NewScraper(c.fetcher, c.logger,
		dependents.WithMetrics(observability.NewMetrics(c.logger)))
	return c, nil
}

// GetDependents returns the dependents of owner/repository, optionally
// scoped to packageID, visiting at most pages listing pages. pages must be
// at least 1; it is checked before anything is fetched.
func (c *Client) GetDependents(ctx context.Context, owner, repository, packageID string, pages int) (iter.Seq2[*Dependent, error], error) {
	if strings.TrimSpace(owner) == "" || strings.TrimSpace(repository) == "" {
		return nil, fmt.Errorf("%w: owner and repository are required", ErrInvalidURL)
	}
	u := dependents.DependentsURL(c.cfg.Scraper.Host, owner, repository, packageID)
	return c.scraper.Stream(ctx, u, pages)
}

// Stats returns the counters accumulated by this client's traversals.
func (c *Client) Stats() map[string]int64 {
	return c.scraper.Metrics().Snapshot()
}

// Close releases the fetcher.
func (c *Client) Close() error {
	return c.fetcher.Close()
}

// GetDependents runs a single traversal with a default HTTP client. The
// client is closed once the sequence has been consumed or abandoned.
func GetDependents(ctx context.Context, owner, repository, packageID string, pages int) (iter.Seq2[*Dependent, error], error) {
	c, err := New()
	if err != nil {
		return nil, err
	}

	seq, err := c.GetDependents(ctx, owner, repository, packageID, pages)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	return func(yield func(*Dependent, error) bool) {
		defer c.Close()
		seq(yield)
	}, nil
}
