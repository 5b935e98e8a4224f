package dependents

import (
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/IshaanNene/ghdependents/internal/types"
)

// boxPath walks content area → layout wrapper → column → dependents section → box.
// Class matching is exact (after whitespace normalization) because GitHub's
// markup is the only contract available.
const (
	boxPath = "//div[normalize-space(@class)='repository-content']" +
		"/div[normalize-space(@class)='gutter-condensed gutter-lg d-flex']" +
		"/div[normalize-space(@class)='flex-shrink-0 col-9']" +
		"/div[@id='dependents']" +
		"/div[normalize-space(@class)='Box']"
	rowPath = "./div[normalize-space(@class)='Box-row d-flex flex-items-center']"
)

var (
	boxExpr = xpath.MustCompile(boxPath)
	rowExpr = xpath.MustCompile(rowPath)
)

// pageResult is what one listing page yielded.
type pageResult struct {
	box        *html.Node
	dependents []*types.Dependent
	rows       int
	discarded  int
}

// ExtractPage returns the dependents listed in a parsed dependents page,
// in document order. A page without rows yields an empty slice.
func ExtractPage(root *html.Node) ([]*types.Dependent, error) {
	res, err := extractPage(root)
	if err != nil {
		return nil, err
	}
	return res.dependents, nil
}

func extractPage(root *html.Node) (*pageResult, error) {
	box := htmlquery.QuerySelector(root, boxExpr)
	if box == nil {
		return nil, &types.StructuralError{
			Path:   boxPath,
			Reason: "unable to find Box node",
			Err:    types.ErrContainerNotFound,
		}
	}

	rows := htmlquery.QuerySelectorAll(box, rowExpr)
	res := &pageResult{
		box:        box,
		dependents: make([]*types.Dependent, 0, len(rows)),
		rows:       len(rows),
	}

	for _, row := range rows {
		d, err := extractDependent(row)
		if err != nil {
			return nil, err
		}
		if d == nil {
			res.discarded++
			continue
		}
		res.dependents = append(res.dependents, d)
	}

	return res, nil
}
