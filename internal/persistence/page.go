// Package persistence contains helpers shared by repository implementations.
package persistence

import (
	"net/url"
	"strconv"
)

// Page carries offset pagination parameters for collection listings.
type Page struct {
	Limit  int
	Offset int
}

// DefaultLimit bounds listings when the caller does not specify one.
const DefaultLimit = 100

// MaxLimit caps the page size a caller may request.
const MaxLimit = 1000

// PageFromQuery parses limit/offset query parameters, applying defaults and
// clamping out-of-range values.
func PageFromQuery(values url.Values) Page {
	page := Page{Limit: DefaultLimit}
	if raw := values.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page.Limit = parsed
		}
	}
	if page.Limit > MaxLimit {
		page.Limit = MaxLimit
	}
	if raw := values.Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			page.Offset = parsed
		}
	}
	return page
}

// Slice applies the page to an in-memory collection length, returning the
// bounded [start, end) window.
func (p Page) Slice(total int) (int, int) {
	start := p.Offset
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return start, end
}
