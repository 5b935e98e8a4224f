package dependents

import (
	"net/url"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

const baseURL = "https://github.com/dotnet/roslyn/network/dependents?package_id=UGFja2FnZS0xNTY3NTE0NTM%3D"

// plan runs planNext against a rendered page with the given state.
func plan(t *testing.T, page string, st *pageState) nextAction {
	t.Helper()
	root := parse(t, page)
	res, err := extractPage(root)
	if err != nil {
		t.Fatalf("extract page: %v", err)
	}
	return planNext(goquery.NewDocumentFromNode(root), res.box, st, testLogger)
}

func TestPlanNextFollowsNextLink(t *testing.T) {
	next := "https://github.com/dotnet/roslyn/network/dependents?dependents_after=MTk3&package_id=UGFja2FnZS0xNTY3NTE0NTM%3D"
	page := listingPage("", rows("o", 30), nextPager(next))

	got := plan(t, page, newPageState(baseURL, 3))
	if got.stop {
		t.Fatalf("expected continue, got stop (%s)", got.reason)
	}
	if got.url != next {
		t.Errorf("expected next url %q, got %q", next, got.url)
	}
}

func TestPlanNextResolvesRelativeLink(t *testing.T) {
	page := listingPage("", rows("o", 1), nextPager("/dotnet/roslyn/network/dependents?dependents_after=abc"))

	got := plan(t, page, newPageState(baseURL, 2))
	want := "https://github.com/dotnet/roslyn/network/dependents?dependents_after=abc"
	if got.stop || got.url != want {
		t.Errorf("expected continue to %q, got %+v", want, got)
	}
}

func TestPlanNextResolvesAgainstFinalURL(t *testing.T) {
	root := parse(t, listingPage("", rows("o", 1), nextPager("dependents?dependents_after=abc")))
	res, err := extractPage(root)
	if err != nil {
		t.Fatalf("extract page: %v", err)
	}

	doc := goquery.NewDocumentFromNode(root)
	doc.Url, _ = url.Parse("https://github.com/dotnet/roslyn-moved/network/dependents")

	got := planNext(doc, res.box, newPageState(baseURL, 2), testLogger)
	want := "https://github.com/dotnet/roslyn-moved/network/dependents?dependents_after=abc"
	if got.stop || got.url != want {
		t.Errorf("expected continue to %q, got %+v", want, got)
	}
}

func TestPlanNextStops(t *testing.T) {
	tests := []struct {
		name   string
		page   string
		st     *pageState
		reason string
	}{
		{
			name:   "single page budget",
			page:   listingPage("900 Repositories", rows("o", 30), nextPager("/next")),
			st:     newPageState(baseURL, 1),
			reason: "page budget reached",
		},
		{
			name: "budget exhausted on later page",
			page: listingPage("", rows("o", 30), nextPager("/next")),
			st: &pageState{
				url: baseURL, visited: 2, requested: 3, available: 3,
			},
			reason: "page budget reached",
		},
		{
			name:   "no pagination group",
			page:   listingPage("", rows("o", 3), ""),
			st:     newPageState(baseURL, 5),
			reason: "no pagination",
		},
		{
			name:   "next rendered as disabled button",
			page:   listingPage("", rows("o", 3), lastPager("/prev")),
			st:     newPageState(baseURL, 5),
			reason: "last page",
		},
		{
			name: "no next link",
			page: listingPage("", rows("o", 3),
				`<div class="paginate-container"><div class="BtnGroup"><a class="btn" href="/prev">Previous</a></div></div>`),
			st:     newPageState(baseURL, 5),
			reason: "no next link",
		},
		{
			name: "next link without href",
			page: listingPage("", rows("o", 3),
				`<div class="paginate-container"><div class="BtnGroup"><a class="btn">Next</a></div></div>`),
			st:     newPageState(baseURL, 5),
			reason: "no next link",
		},
		{
			name:   "count label yields fewer pages than requested",
			page:   listingPage("45 Repositories", rows("o", 30), nextPager("/next")),
			st:     newPageState(baseURL, 5),
			reason: "page budget reached",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := plan(t, tt.page, tt.st)
			if !got.stop {
				t.Fatalf("expected stop, got continue to %q", got.url)
			}
			if got.reason != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, got.reason)
			}
		})
	}
}

func TestPlanNextMatchesNextCaseInsensitively(t *testing.T) {
	page := listingPage("", rows("o", 1),
		`<div class="paginate-container"><div class="BtnGroup">`+
			`<a class="btn" href="/prev">Previous</a><a class="btn" href="/page2"> NEXT </a></div></div>`)

	got := plan(t, page, newPageState(baseURL, 2))
	if got.stop || got.url != "https://github.com/page2" {
		t.Errorf("expected continue to /page2, got %+v", got)
	}
}

func TestInferAvailablePages(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		requested int
		available int
		inferred  bool
	}{
		{"62 repositories", "62 Repositories", 2, 2, true},
		{"capped at requested", "1,234,567 Repositories", 10, 10, true},
		{"floor division", "89 Repositories", 10, 2, true},
		{"fewer than a page", "29 Repositories", 3, 0, true},
		{"entity decoded", "1&#44;500 Repositories", 100, 50, true},
		{"no digits", "Repositories", 4, 4, false},
		{"missing label", "", 4, 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := parse(t, listingPage(tt.header, nil, ""))
			res, err := extractPage(root)
			if err != nil {
				t.Fatalf("extract page: %v", err)
			}

			st := newPageState(baseURL, tt.requested)
			inferAvailable(res.box, st, testLogger)

			if st.available != tt.available {
				t.Errorf("expected %d available pages, got %d", tt.available, st.available)
			}
			if st.inferred != tt.inferred {
				t.Errorf("expected inferred=%v, got %v", tt.inferred, st.inferred)
			}
		})
	}
}

func TestPlanNextSkipsInferenceForSinglePage(t *testing.T) {
	st := newPageState(baseURL, 1)
	plan(t, listingPage("900 Repositories", nil, ""), st)
	if st.inferred {
		t.Error("count label should not be read when one page is requested")
	}
}
