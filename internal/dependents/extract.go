// Package dependents extracts the dependents listing of a GitHub repository
// from its /network/dependents pages and follows its pagination.
package dependents

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/IshaanNene/ghdependents/internal/types"
)

// Row layout of a dependents listing entry:
//
//	<div class="Box-row d-flex flex-items-center">
//	  <img src="avatar">
//	  <span><a>owner</a> / <a>repository</a></span>
//	  <div class="d-flex flex-auto flex-justify-end">
//	    <span>stars</span><span>forks</span>
//	  </div>
//	</div>
//
// GitHub carries no semantic markers on these nodes, so meaning is positional:
// the first link is the owner and the second the repository, the first label
// is stars and the second forks.
const (
	avatarPath  = "./img"
	namePath    = "./span"
	nameLinks   = "./a"
	detailsPath = "./div[normalize-space(@class)='d-flex flex-auto flex-justify-end']/span"
)

var (
	avatarExpr  = xpath.MustCompile(avatarPath)
	nameExpr    = xpath.MustCompile(namePath)
	linksExpr   = xpath.MustCompile(nameLinks)
	detailsExpr = xpath.MustCompile(detailsPath)
)

// extractDependent builds a Dependent from one row node. It returns (nil, nil)
// when the row carries no owner/repository links, which is how non-record
// rows look. Any other link count is a *types.StructuralError.
func extractDependent(row *html.Node) (*types.Dependent, error) {
	var owner, repository string

	var links []*html.Node
	if span := htmlquery.QuerySelector(row, nameExpr); span != nil {
		links = htmlquery.QuerySelectorAll(span, linksExpr)
	}
	switch len(links) {
	case 0:
		return nil, nil
	case 2:
		owner = decodeText(links[0])
		repository = decodeText(links[1])
	default:
		return nil, &types.StructuralError{
			Path:   namePath + "/" + strings.TrimPrefix(nameLinks, "./"),
			Reason: fmt.Sprintf("span contains %d link nodes instead of 2", len(links)),
			Err:    types.ErrUnexpectedMarkup,
		}
	}

	var avatar string
	if img := htmlquery.QuerySelector(row, avatarExpr); img != nil {
		avatar = strings.TrimSpace(htmlquery.SelectAttr(img, "src"))
	}

	// Older markup omits the details block; counts then stay 0.
	var stars, forks int
	if labels := htmlquery.QuerySelectorAll(row, detailsExpr); len(labels) == 2 {
		stars = parseCount(decodeText(labels[0]))
		forks = parseCount(decodeText(labels[1]))
	}

	return &types.Dependent{
		AvatarURL:  avatar,
		Owner:      owner,
		Repository: repository,
		Stars:      stars,
		Forks:      forks,
	}, nil
}

// decodeText returns the entity-decoded, trimmed inner text of n.
func decodeText(n *html.Node) string {
	return strings.TrimSpace(html.UnescapeString(htmlquery.InnerText(n)))
}

// parseCount parses a label such as "\n  1,234 \n" into 1234.
// Unparsable or negative values yield 0.
func parseCount(s string) int {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == ',' {
			return -1
		}
		return r
	}, s)
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
