package common

import (
	"net/http"
	"strconv"
)

// MaxPerPage caps list page sizes.
const MaxPerPage = 100

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalItems int `json:"totalItems"`
}

// Offset returns the row offset for the current page.
func (p Pagination) Offset() int { return (p.Page - 1) * p.PerPage }

// ParsePagination extracts page and limit query parameters.
func ParsePagination(r *http.Request, defaultPerPage int) Pagination {
	p := Pagination{Page: 1, PerPage: defaultPerPage}
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		p.PerPage = v
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}
