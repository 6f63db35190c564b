package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

type Params struct {
	Page  int
	Limit int
}

type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// FromRequest reads page and limit from the query string. Unparseable or non-positive values
// fall back to the defaults and limit is capped at MaxLimit.
func FromRequest(r *http.Request) Params {
	p := Params{Page: DefaultPage, Limit: DefaultLimit}

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if n, err := strconv.Atoi(pageStr); err == nil && n > 0 {
			p.Page = n
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			p.Limit = n
		}
	}

	return p.Normalize()
}

func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

func (p Params) Meta(total int64) Meta {
	pages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return Meta{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: pages,
	}
}
