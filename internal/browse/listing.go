// Package browse implements directory navigation: listing order,
// pagination, page-scoped index resolution, and the controller that ties
// sessions, the listing cache, and the remote client together.
package browse

import (
	"errors"
	"sort"
	"strings"

	"github.com/olbridge/olbridge/internal/models"
	"github.com/olbridge/olbridge/internal/session"
)

// ErrIndexOutOfRange is returned when a numeric reference does not address
// an entry on the current page.
var ErrIndexOutOfRange = errors.New("index not on the current page")

// ErrNoListing is returned when a numeric reference is used before anything
// has been listed.
var ErrNoListing = errors.New("nothing listed yet")

// SortEntries orders a listing for display: directories before files, then
// case-insensitive by name, ties broken by raw path so the order is stable
// across renders.
func SortEntries(entries []models.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return a.Path < b.Path
	})
}

// Page is one rendered page of a view. Number and Pages are 1-based for
// display; Entries holds only the entries on this page, addressed 1..len.
type Page struct {
	Source  string
	Entries []models.Entry
	Number  int
	Pages   int
	Total   int
}

// PageCount returns how many pages a view of total entries spans. An empty
// view still has one (empty) page.
func PageCount(total, pageSize int) int {
	if total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}

// ClampPage bounds a 0-based page index to the view. Requests past either
// edge stick to the edge; there is no wraparound.
func ClampPage(page, total, pageSize int) int {
	last := PageCount(total, pageSize) - 1
	if page < 0 {
		return 0
	}
	if page > last {
		return last
	}
	return page
}

// RenderPage materializes the current page of a view.
func RenderPage(v *session.View) *Page {
	page := ClampPage(v.Page, len(v.Entries), v.PageSize)
	start := page * v.PageSize
	end := start + v.PageSize
	if start > len(v.Entries) {
		start = len(v.Entries)
	}
	if end > len(v.Entries) {
		end = len(v.Entries)
	}
	return &Page{
		Source:  v.Source,
		Entries: v.Entries[start:end],
		Number:  page + 1,
		Pages:   PageCount(len(v.Entries), v.PageSize),
		Total:   len(v.Entries),
	}
}

// ResolveIndex maps a 1-based display index to the entry it addresses on
// the view's current page. Indices never reach across pages: "3" always
// means the third entry currently visible.
func ResolveIndex(v *session.View, index int) (models.Entry, error) {
	if v == nil {
		return models.Entry{}, ErrNoListing
	}
	page := ClampPage(v.Page, len(v.Entries), v.PageSize)
	start := page * v.PageSize
	end := start + v.PageSize
	if end > len(v.Entries) {
		end = len(v.Entries)
	}
	if index < 1 || start+index-1 >= end {
		return models.Entry{}, ErrIndexOutOfRange
	}
	return v.Entries[start+index-1], nil
}
