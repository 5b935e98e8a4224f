package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/ghdependents/internal/config"
	"github.com/IshaanNene/ghdependents/internal/types"
)

// HTTPFetcher implements Fetcher using net/http.
type HTTPFetcher struct {
	client     *http.Client
	cfg        *config.FetcherConfig
	logger     *slog.Logger
	userAgents []string
	uaIndex    atomic.Int64
}

// NewHTTPFetcher creates a new HTTP fetcher.
func NewHTTPFetcher(cfg *config.FetcherConfig, logger *slog.Logger) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &HTTPFetcher{
		client: &http.Client{
			Transport:     newTransport(cfg),
			Jar:           jar,
			Timeout:       cfg.RequestTimeout,
			CheckRedirect: redirectPolicy(cfg),
		},
		cfg:        cfg,
		logger:     logger.With("component", "http_fetcher"),
		userAgents: cfg.UserAgents,
	}, nil
}

// newTransport leaves decoding to decodeBody so that br is handled too.
func newTransport(cfg *config.FetcherConfig) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.TLSInsecure},
		DisableCompression:  true,
	}
}

func redirectPolicy(cfg *config.FetcherConfig) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		switch {
		case !cfg.FollowRedirects:
			return http.ErrUseLastResponse
		case len(via) >= cfg.MaxRedirects:
			return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
		}
		return nil
	}
}

// Fetch retrieves one listing page. Any status outside 2xx is reported as a
// *types.FetchError carrying the status code and the start of the body.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	target := req.URLString()
	fail := func(status int, err error) (*types.Response, error) {
		return nil, &types.FetchError{URL: target, StatusCode: status, Err: err}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := f.newHTTPRequest(ctx, req)
	if err != nil {
		return fail(0, err)
	}

	start := time.Now()
	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		return fail(0, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		if ra := httpResp.Header.Get("Retry-After"); ra != "" {
			f.logger.Warn("server asked to back off", "url", target, "status", httpResp.StatusCode, "retry_after", ra)
		}
		return fail(httpResp.StatusCode, fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	body, err := f.decodeBody(httpResp)
	if err != nil {
		return fail(httpResp.StatusCode, err)
	}
	if len(body) == 0 {
		return fail(httpResp.StatusCode, types.ErrEmptyResponse)
	}
	duration := time.Since(start)

	f.logger.Debug("fetch complete",
		"url", target,
		"page", req.Page+1,
		"status", httpResp.StatusCode,
		"size", len(body),
		"duration", duration,
	)

	return types.NewResponse(req, httpResp, body, duration), nil
}

func (f *HTTPFetcher) newHTTPRequest(ctx context.Context, req *types.Request) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URLString(), nil)
	if err != nil {
		return nil, err
	}

	h := httpReq.Header
	h.Set("User-Agent", f.nextUserAgent())
	h.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	for key, values := range req.Headers {
		for _, v := range values {
			h.Set(key, v)
		}
	}
	return httpReq, nil
}

// decodeBody reads the decoded body, failing once it grows past MaxBodySize.
func (f *HTTPFetcher) decodeBody(resp *http.Response) ([]byte, error) {
	reader, err := decompressReader(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode %s body: %w", resp.Header.Get("Content-Encoding"), err)
	}
	defer reader.Close()

	limit := f.cfg.MaxBodySize
	if limit <= 0 {
		return io.ReadAll(reader)
	}
	body, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return body, nil
}

// Close releases idle connections.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// Type returns the fetcher type identifier.
func (f *HTTPFetcher) Type() string {
	return "http"
}

// nextUserAgent rotates through the configured User-Agents.
func (f *HTTPFetcher) nextUserAgent() string {
	if len(f.userAgents) == 0 {
		return "ghdependents/" + config.Version
	}
	idx := f.uaIndex.Add(1) % int64(len(f.userAgents))
	return f.userAgents[idx]
}

// decompressReader wraps r with the decoder for a Content-Encoding value.
// Closing the result releases the decoder, not r.
func decompressReader(encoding string, r io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		return gzip.NewReader(r)
	case "deflate":
		return flate.NewReader(r), nil
	case "br":
		return io.NopCloser(brotli.NewReader(r)), nil
	default:
		return io.NopCloser(r), nil
	}
}
