package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/IshaanNene/ghdependents/internal/config"
	"github.com/IshaanNene/ghdependents/internal/types"
)

func listing(owner string, n int, next string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="repository-content"><div class="gutter-condensed gutter-lg d-flex">` +
		`<div class="flex-shrink-0 col-9"><div id="dependents"><div class="Box">`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<div class="Box-row d-flex flex-items-center">`+
			`<span><a href="/%[1]s">%[1]s</a> / <a href="/%[1]s/r%[2]d">r%[2]d</a></span>`+
			`<div class="d-flex flex-auto flex-justify-end"><span>%[2]d</span><span>1</span></div></div>`, owner, i)
	}
	b.WriteString(`</div>`)
	if next != "" {
		fmt.Fprintf(&b, `<div class="paginate-container"><div class="BtnGroup"><a class="btn" href="%s">Next</a></div></div>`, next)
	}
	b.WriteString(`</div></div></div></div></body></html>`)
	return b.String()
}

// newSite serves a two page listing for octo/cat over TLS.
func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/octo/cat/network/dependents", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("dependents_after") == "" {
			fmt.Fprint(w, listing("first", 30, "/octo/cat/network/dependents?dependents_after=x"))
			return
		}
		fmt.Fprint(w, listing("second", 3, ""))
	})
	srv := httptest.NewTLSServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ghdependents.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestListWritesJSONL(t *testing.T) {
	srv := newSite(t)
	outDir := t.TempDir()
	cfgPath := writeConfig(t, "fetcher:\n  tls_insecure: true\nlogging:\n  level: error\n")

	out, err := run(t, "list", "octo", "cat",
		"-c", cfgPath,
		"--host", strings.TrimPrefix(srv.URL, "https://"),
		"--pages", "5",
		"-f", "jsonl",
		"-o", outDir,
	)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "33 stored") {
		t.Errorf("expected summary with 33 stored, got %q", out)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "dependents.jsonl"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 33 {
		t.Fatalf("expected 33 lines, got %d", len(lines))
	}
	var last types.Dependent
	if err := json.Unmarshal([]byte(lines[32]), &last); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if last.FullName() != "second/r2" || last.Stars != 2 || last.Forks != 1 {
		t.Errorf("unexpected last dependent %+v", last)
	}
}

func TestListStdoutRespectsPageBudget(t *testing.T) {
	srv := newSite(t)
	cfgPath := writeConfig(t, "fetcher:\n  tls_insecure: true\nlogging:\n  level: error\n")

	out, err := run(t, "list", "octo", "cat",
		"-c", cfgPath,
		"--host", strings.TrimPrefix(srv.URL, "https://"),
		"-f", "stdout",
	)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if n := strings.Count(out, "\n"); n != 30 {
		t.Errorf("expected 30 records from a single page, got %d", n)
	}
}

func TestListWritesSeveralFormats(t *testing.T) {
	srv := newSite(t)
	outDir := t.TempDir()
	cfgPath := writeConfig(t, "fetcher:\n  tls_insecure: true\nlogging:\n  level: error\n")

	out, err := run(t, "list", "octo", "cat",
		"-c", cfgPath,
		"--host", strings.TrimPrefix(srv.URL, "https://"),
		"-f", "stdout,csv",
		"-o", outDir,
	)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if n := strings.Count(out, "\n"); n != 30 {
		t.Errorf("expected 30 records on stdout, got %d", n)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "dependents.csv"))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 31 {
		t.Errorf("expected header plus 30 csv rows, got %d lines", n)
	}
}

func TestListFiltersByStars(t *testing.T) {
	srv := newSite(t)
	cfgPath := writeConfig(t, "fetcher:\n  tls_insecure: true\nlogging:\n  level: error\n")

	out, err := run(t, "list", "octo", "cat",
		"-c", cfgPath,
		"--host", strings.TrimPrefix(srv.URL, "https://"),
		"--min-stars", "25",
		"-f", "stdout",
	)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// Stars equal the row index on the first page, so rows 25..29 survive.
	if n := strings.Count(out, "\n"); n != 5 {
		t.Errorf("expected 5 records, got %d: %q", n, out)
	}
}

func TestListRejectsZeroPages(t *testing.T) {
	if _, err := run(t, "list", "octo", "cat", "--pages", "0", "-f", "stdout"); err == nil {
		t.Fatal("expected error for zero pages")
	}
}

func TestListRequiresTwoArgs(t *testing.T) {
	if _, err := run(t, "list", "octo"); err == nil {
		t.Fatal("expected error for missing repository")
	}
}

func TestListReportsFetchError(t *testing.T) {
	srv := newSite(t)
	cfgPath := writeConfig(t, "fetcher:\n  tls_insecure: true\nlogging:\n  level: error\n")

	_, err := run(t, "list", "octo", "missing",
		"-c", cfgPath,
		"--host", strings.TrimPrefix(srv.URL, "https://"),
		"-f", "stdout",
	)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 fetch error, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if out != "ghdependents "+config.Version+"\n" {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestConfigCommand(t *testing.T) {
	cfgPath := writeConfig(t, "scraper:\n  host: ghe.example.com\n  pages: 7\n")
	out, err := run(t, "config", "-c", cfgPath)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if !strings.Contains(out, "ghe.example.com") || !strings.Contains(out, "Pages:             7") {
		t.Errorf("unexpected config output %q", out)
	}
}

func TestApplyCLIOverrides(t *testing.T) {
	f := &flags{}
	cmd := listCmd(f)
	if err := cmd.ParseFlags([]string{"--pages", "4", "-f", "CSV", "--fetcher", "Browser", "--package-id", "abc",
		"--min-stars", "3", "--exclude-owner", "bots,ci", "--no-dedup"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg := config.DefaultConfig()
	applyCLIOverrides(cmd, f, cfg)

	if cfg.Scraper.Pages != 4 || cfg.Scraper.PackageID != "abc" {
		t.Errorf("scraper overrides not applied: %+v", cfg.Scraper)
	}
	if cfg.Storage.Type != "csv" || cfg.Fetcher.Type != "browser" {
		t.Errorf("expected csv/browser, got %s/%s", cfg.Storage.Type, cfg.Fetcher.Type)
	}
	if cfg.Pipeline.MinStars != 3 || len(cfg.Pipeline.ExcludeOwners) != 2 || cfg.Pipeline.Dedup {
		t.Errorf("pipeline overrides not applied: %+v", cfg.Pipeline)
	}
	if cfg.Scraper.Host != "github.com" {
		t.Errorf("unset host should keep default, got %q", cfg.Scraper.Host)
	}
}
