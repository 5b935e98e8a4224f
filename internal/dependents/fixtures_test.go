package dependents

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/antchfx/htmlquery"
	xhtml "golang.org/x/net/html"

	"github.com/IshaanNene/ghdependents/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// row renders one listing entry the way GitHub does.
func row(owner, repo, stars, forks string) string {
	return fmt.Sprintf(`
<div class="Box-row d-flex flex-items-center" data-test-id="dg-repo-pkg-dependent">
  <img class="avatar mr-2 avatar-user" src="https://avatars.githubusercontent.com/u/9141961?s=40&amp;v=4" width="20" height="20" alt="@%[1]s">
  <span class="f5 color-fg-muted" data-repository-hovercards-enabled="">
    <a data-hovercard-type="organization" href="/%[1]s">%[1]s</a> /
    <a class="text-bold" data-hovercard-type="repository" href="/%[1]s/%[2]s">%[2]s</a>
  </span>
  <div class="d-flex flex-auto flex-justify-end">
    <span class="color-fg-muted text-bold pl-3">
      <svg aria-hidden="true" height="16" viewBox="0 0 16 16" class="octicon octicon-star"><path d="M8 .25"></path></svg>
      %[3]s
    </span>
    <span class="color-fg-muted text-bold pl-3">
      <svg aria-hidden="true" height="16" viewBox="0 0 16 16" class="octicon octicon-repo-forked"><path d="M5 5.372"></path></svg>
      %[4]s
    </span>
  </div>
</div>`, owner, repo, stars, forks)
}

// rows renders n well-formed rows named <prefix>-<i>.
func rows(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = row(prefix, fmt.Sprintf("repo-%d", i), fmt.Sprintf("%d", i*1000), fmt.Sprintf("%d", i))
	}
	return out
}

// listingPage renders a dependents page. An empty header omits the count label.
func listingPage(header string, entries []string, pager string) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><title>Network Dependents</title></head><body>
<main><div class="repository-content ">
<div class="gutter-condensed gutter-lg d-flex">
<div class="flex-shrink-0 col-9">
<div id="dependents">
<div class="Box">`)
	if header != "" {
		b.WriteString(`
<div class="Box-header clearfix">
  <div class="table-list-filters flex-auto d-flex min-width-0">
    <div class="flex-auto">
      <a class="btn-link selected" href="?dependent_type=REPOSITORY">
        <svg class="octicon octicon-code-square"><path d="M0"></path></svg>
        ` + header + `
      </a>
      <a class="btn-link" href="?dependent_type=PACKAGE">12 Packages</a>
    </div>
  </div>
</div>`)
	}
	for _, e := range entries {
		b.WriteString(e)
	}
	b.WriteString("\n</div>\n")
	b.WriteString(pager)
	b.WriteString(`
</div></div></div></div></main></body></html>`)
	return b.String()
}

// nextPager renders a pagination group whose Next is a link to href.
func nextPager(href string) string {
	return `<div class="paginate-container"><div class="BtnGroup" data-test-selector="pagination">` +
		`<button class="btn btn-outline BtnGroup-item" disabled="disabled">Previous</button>` +
		`<a rel="nofollow" class="btn btn-outline BtnGroup-item" href="` + html.EscapeString(href) + `">Next</a>` +
		`</div></div>`
}

// lastPager renders the pagination group of the final page.
func lastPager(prev string) string {
	return `<div class="paginate-container"><div class="BtnGroup" data-test-selector="pagination">` +
		`<a rel="nofollow" class="btn btn-outline BtnGroup-item" href="` + html.EscapeString(prev) + `">Previous</a>` +
		`<button class="btn btn-outline BtnGroup-item" disabled="disabled">Next</button>` +
		`</div></div>`
}

func parse(t *testing.T, s string) *xhtml.Node {
	t.Helper()
	root, err := htmlquery.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return root
}

// fakeFetcher serves canned pages by URL and records every call.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages, errs: make(map[string]error)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	u := req.URLString()

	f.mu.Lock()
	f.calls = append(f.calls, u)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &types.FetchError{URL: u, Err: err}
	}
	if err, ok := f.errs[u]; ok {
		return nil, err
	}
	body, ok := f.pages[u]
	if !ok {
		return nil, &types.FetchError{URL: u, StatusCode: 404, Err: errors.New("HTTP 404: not found")}
	}
	return types.NewBrowserResponse(req, 200, []byte(body), u, 0), nil
}

func (f *fakeFetcher) Close() error { return nil }

func (f *fakeFetcher) Type() string { return "fake" }

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
