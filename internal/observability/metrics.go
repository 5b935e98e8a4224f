package observability

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
)

// Metrics tracks operational counters for dependents traversals.
type Metrics struct {
	// Traversal metrics
	TraversalsStarted  atomic.Int64
	TraversalsFinished atomic.Int64
	TraversalsFailed   atomic.Int64

	// Page metrics
	PagesFetched     atomic.Int64
	FetchErrors      atomic.Int64
	StructuralErrors atomic.Int64
	BytesDownloaded  atomic.Int64

	// Row metrics
	DependentsExtracted atomic.Int64
	RowsDiscarded       atomic.Int64
	DependentsFiltered  atomic.Int64
	DependentsStored    atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"ghdependents_traversals_started_total", "Total traversals started", m.TraversalsStarted.Load()},
		{"ghdependents_traversals_finished_total", "Total traversals finished successfully", m.TraversalsFinished.Load()},
		{"ghdependents_traversals_failed_total", "Total traversals aborted by an error", m.TraversalsFailed.Load()},
		{"ghdependents_pages_fetched_total", "Total listing pages fetched", m.PagesFetched.Load()},
		{"ghdependents_fetch_errors_total", "Total failed page fetches", m.FetchErrors.Load()},
		{"ghdependents_structural_errors_total", "Total pages with unexpected markup", m.StructuralErrors.Load()},
		{"ghdependents_bytes_downloaded_total", "Total bytes downloaded", m.BytesDownloaded.Load()},
		{"ghdependents_dependents_extracted_total", "Total dependents extracted", m.DependentsExtracted.Load()},
		{"ghdependents_rows_discarded_total", "Total listing rows without a dependent", m.RowsDiscarded.Load()},
		{"ghdependents_dependents_filtered_total", "Total dependents dropped by the pipeline", m.DependentsFiltered.Load()},
		{"ghdependents_dependents_stored_total", "Total dependents written to storage", m.DependentsStored.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer starts the metrics HTTP server in the background.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := http.Serve(ln, mux); err != nil {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"traversals_started":   m.TraversalsStarted.Load(),
		"traversals_finished":  m.TraversalsFinished.Load(),
		"traversals_failed":    m.TraversalsFailed.Load(),
		"pages_fetched":        m.PagesFetched.Load(),
		"fetch_errors":         m.FetchErrors.Load(),
		"structural_errors":    m.StructuralErrors.Load(),
		"bytes_downloaded":     m.BytesDownloaded.Load(),
		"dependents_extracted": m.DependentsExtracted.Load(),
		"rows_discarded":       m.RowsDiscarded.Load(),
		"dependents_filtered":  m.DependentsFiltered.Load(),
		"dependents_stored":    m.DependentsStored.Load(),
	}
}
