package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPerPage = 100
	maxPerPage     = 200
)

// parsePagination reads "page" and "per_page" query parameters from the
// request. Missing or invalid values fall back to defaults (page=1,
// per_page=defaultPerPage); per_page is capped at maxPerPage.
func parsePagination(r *http.Request) (page, perPage int) {
	q := r.URL.Query()

	page = 1
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}

	perPage = defaultPerPage
	if v := q.Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			perPage = n
		}
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	return page, perPage
}

// paginateSlice returns (start, end) indices for slicing a collection of
// totalCount items. Pages past the end yield start == end (empty page).
func paginateSlice(totalCount, page, perPage int) (start, end int) {
	start = (page - 1) * perPage
	if start > totalCount {
		start = totalCount
	}
	end = start + perPage
	if end > totalCount {
		end = totalCount
	}
	return start, end
}

// writePaginationHeaders exposes the page window on the response so list
// clients can iterate without a meta envelope in every body.
func writePaginationHeaders(w http.ResponseWriter, totalCount, page, perPage int) {
	w.Header().Set("X-Total-Count", strconv.Itoa(totalCount))
	w.Header().Set("X-Page", strconv.Itoa(page))
	w.Header().Set("X-Per-Page", strconv.Itoa(perPage))
}
