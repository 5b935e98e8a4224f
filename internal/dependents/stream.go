package dependents

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/url"

	"github.com/IshaanNene/ghdependents/internal/config"
	"github.com/IshaanNene/ghdependents/internal/fetcher"
	"github.com/IshaanNene/ghdependents/internal/observability"
	"github.com/IshaanNene/ghdependents/internal/types"
)

// DependentsURL returns the listing URL for owner/repository on host,
// scoped to packageID when it is not empty. packageID is used verbatim
// since GitHub hands it out already escaped.
func DependentsURL(host, owner, repository, packageID string) string {
	u := fmt.Sprintf("https://%s/%s/%s/network/dependents",
		host, url.PathEscape(owner), url.PathEscape(repository))
	if packageID != "" {
		u += "?package_id=" + packageID
	}
	return u
}

// Scraper walks dependents listings through a Fetcher. A Scraper holds no
// traversal state, so one instance can serve concurrent traversals.
type Scraper struct {
	fetcher fetcher.Fetcher
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithMetrics records traversal counters into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Scraper) { s.metrics = m }
}

// NewScraper creates a Scraper that fetches pages with f.
func NewScraper(f fetcher.Fetcher, logger *slog.Logger, opts ...Option) *Scraper {
	s := &Scraper{
		fetcher: f,
		logger:  logger.With("component", "dependents"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observability.NewMetrics(logger)
	}
	return s
}

// Metrics returns the counters the Scraper records into.
func (s *Scraper) Metrics() *observability.Metrics {
	return s.metrics
}

// Stream returns the dependents reachable from startURL, visiting at most
// pages pages. Arguments are validated before anything is fetched. Each pull
// of the sequence fetches at most one page; the sequence ends after the first
// error it yields. Breaking out of the loop abandons the traversal.
func (s *Scraper) Stream(ctx context.Context, startURL string, pages int) (iter.Seq2[*types.Dependent, error], error) {
	if pages < 1 {
		return nil, fmt.Errorf("%w: got %d", types.ErrInvalidPageBudget, pages)
	}
	if err := config.ValidateURL(startURL); err != nil {
		return nil, fmt.Errorf("%w %q: %v", types.ErrInvalidURL, startURL, err)
	}

	return func(yield func(*types.Dependent, error) bool) {
		s.metrics.TraversalsStarted.Add(1)
		st := newPageState(startURL, pages)
		total := 0

		for {
			if err := ctx.Err(); err != nil {
				s.metrics.TraversalsFailed.Add(1)
				yield(nil, err)
				return
			}

			resp, res, err := s.fetchPage(ctx, st)
			if err != nil {
				s.metrics.TraversalsFailed.Add(1)
				yield(nil, err)
				return
			}

			for _, d := range res.dependents {
				if !yield(d, nil) {
					s.logger.Debug("traversal abandoned", "url", st.url, "page", st.visited+1)
					return
				}
			}
			total += len(res.dependents)

			doc, err := resp.Document()
			if err != nil {
				s.metrics.TraversalsFailed.Add(1)
				yield(nil, fmt.Errorf("page %d (%s): parse document: %w", st.visited+1, st.url, err))
				return
			}

			next := planNext(doc, res.box, st, s.logger)
			if next.stop {
				s.metrics.TraversalsFinished.Add(1)
				s.logger.Info("traversal complete",
					"start", startURL,
					"pages", st.visited+1,
					"dependents", total,
					"reason", next.reason,
				)
				return
			}
			st.advance(next.url)
		}
	}, nil
}

// Collect drains Stream into a slice.
func (s *Scraper) Collect(ctx context.Context, startURL string, pages int) ([]*types.Dependent, error) {
	seq, err := s.Stream(ctx, startURL, pages)
	if err != nil {
		return nil, err
	}

	var out []*types.Dependent
	for d, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, d)
	}
	return out, nil
}

// fetchPage fetches the page at st.url and extracts its rows.
func (s *Scraper) fetchPage(ctx context.Context, st *pageState) (*types.Response, *pageResult, error) {
	page := st.visited + 1

	req, err := types.NewRequest(st.url)
	if err != nil {
		return nil, nil, fmt.Errorf("page %d (%s): %w", page, st.url, err)
	}
	req.Page = st.visited

	resp, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		s.metrics.FetchErrors.Add(1)
		return nil, nil, fmt.Errorf("page %d (%s): %w", page, st.url, err)
	}
	s.metrics.PagesFetched.Add(1)
	s.metrics.BytesDownloaded.Add(int64(len(resp.Body)))

	root, err := resp.Node()
	if err != nil {
		return nil, nil, fmt.Errorf("page %d (%s): parse document: %w", page, st.url, err)
	}

	res, err := extractPage(root)
	if err != nil {
		var se *types.StructuralError
		if errors.As(err, &se) {
			se.URL = st.url
			se.Page = page
			s.metrics.StructuralErrors.Add(1)
		}
		return nil, nil, err
	}

	s.metrics.DependentsExtracted.Add(int64(len(res.dependents)))
	s.metrics.RowsDiscarded.Add(int64(res.discarded))

	s.logger.Debug("page extracted",
		"url", st.url,
		"page", page,
		"rows", res.rows,
		"dependents", len(res.dependents),
		"discarded", res.discarded,
	)

	return resp, res, nil
}
