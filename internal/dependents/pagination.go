package dependents

import (
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// PageSize is the number of dependents GitHub lists per page. It is a property
// of the site, not derived from the document, and breaks if GitHub changes it.
const PageSize = 30

const (
	// countLabelPath selects the "N Repositories" filter link in the box header.
	countLabelPath = "./div[contains(@class,'Box-header')]//a[contains(@class,'btn-link') and contains(@class,'selected')]"

	paginationSelector = "div.paginate-container div.BtnGroup"
	nextLabel          = "Next"
)

var countLabelExpr = xpath.MustCompile(countLabelPath)

// pageState is the cursor of a single traversal.
type pageState struct {
	url       string
	visited   int // zero-based index of the current page
	requested int
	available int
	inferred  bool
}

func newPageState(startURL string, requested int) *pageState {
	return &pageState{
		url:       startURL,
		requested: requested,
		available: requested,
	}
}

// limit is the number of pages the traversal may visit.
func (s *pageState) limit() int {
	return min(s.requested, s.available)
}

func (s *pageState) advance(next string) {
	s.url = next
	s.visited++
}

// nextAction is the pagination decision for the current page.
type nextAction struct {
	stop   bool
	url    string
	reason string
}

func stopAction(reason string) nextAction {
	return nextAction{stop: true, reason: reason}
}

// planNext decides whether the traversal continues past the current page.
func planNext(doc *goquery.Document, box *html.Node, st *pageState, logger *slog.Logger) nextAction {
	if st.requested != 1 && !st.inferred {
		inferAvailable(box, st, logger)
	}

	if st.visited+1 >= st.limit() {
		return stopAction("page budget reached")
	}

	group := doc.Find(paginationSelector).First()
	if group.Length() == 0 {
		return stopAction("no pagination")
	}

	// The last page renders Next as a disabled <button> instead of a link.
	lastPage := false
	group.ChildrenFiltered("button").EachWithBreak(func(_ int, b *goquery.Selection) bool {
		if strings.EqualFold(strings.TrimSpace(b.Text()), nextLabel) {
			lastPage = true
			return false
		}
		return true
	})
	if lastPage {
		return stopAction("last page")
	}

	var href string
	group.ChildrenFiltered("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.EqualFold(strings.TrimSpace(a.Text()), nextLabel) {
			href, _ = a.Attr("href")
			return false
		}
		return true
	})
	href = strings.TrimSpace(href)
	if href == "" {
		return stopAction("no next link")
	}

	next, err := resolveURL(pageBase(doc, st), href)
	if err != nil {
		logger.Warn("unusable next link", "href", href, "error", err)
		return stopAction("no next link")
	}

	return nextAction{url: next}
}

// inferAvailable refines st.available from the box header count label.
// When the label is missing or unparsable nothing changes and the traversal
// relies on the Next link alone.
func inferAvailable(box *html.Node, st *pageState, logger *slog.Logger) {
	label := htmlquery.QuerySelector(box, countLabelExpr)
	if label == nil {
		logger.Debug("count label not found", "url", st.url)
		return
	}

	raw := html.UnescapeString(htmlquery.InnerText(label))
	count, err := strconv.Atoi(strings.Map(keepDigits, raw))
	if err != nil {
		logger.Warn("count label unparsable", "url", st.url, "label", strings.TrimSpace(raw))
		return
	}

	st.available = min(count/PageSize, st.requested)
	st.inferred = true
	logger.Debug("available pages inferred", "count", count, "available", st.available, "requested", st.requested)
}

func keepDigits(r rune) rune {
	if unicode.IsDigit(r) {
		return r
	}
	return -1
}

// pageBase is the URL relative links on the page resolve against: the
// address the page was finally served from, after redirects.
func pageBase(doc *goquery.Document, st *pageState) string {
	if doc.Url != nil && doc.Url.Host != "" {
		return doc.Url.String()
	}
	return st.url
}

func resolveURL(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(ref).String(), nil
}
