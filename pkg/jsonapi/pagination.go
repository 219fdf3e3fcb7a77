package jsonapi

import (
	"net/url"
	"strconv"
)

// MaxPageSize caps page[size].
const MaxPageSize = 200

// Pagination holds pagination information for generating links and metadata.
type Pagination struct {
	Total   int    // Total number of items
	Page    int    // Current page number (1-based)
	PerPage int    // Items per page
	BaseURL string // Base URL for generating links
}

// NewPagination creates a new Pagination instance.
func NewPagination(total, page, perPage int, baseURL string) *Pagination {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	return &Pagination{
		Total:   total,
		Page:    page,
		PerPage: perPage,
		BaseURL: baseURL,
	}
}

// TotalPages returns the total number of pages, at least one.
func (p *Pagination) TotalPages() int {
	pages := (p.Total + p.PerPage - 1) / p.PerPage
	if pages < 1 {
		pages = 1
	}
	return pages
}

// Window returns the [start, end) bounds of the current page within the
// full item list, clamped to Total.
func (p *Pagination) Window() (start, end int) {
	start = (p.Page - 1) * p.PerPage
	if start > p.Total {
		start = p.Total
	}
	end = start + p.PerPage
	if end > p.Total {
		end = p.Total
	}
	return start, end
}

// Links generates pagination links.
func (p *Pagination) Links() *Links {
	totalPages := p.TotalPages()

	links := &Links{
		Self:  p.buildURL(p.Page),
		First: p.buildURL(1),
		Last:  p.buildURL(totalPages),
	}
	if p.Page > 1 {
		links.Prev = p.buildURL(p.Page - 1)
	}
	if p.Page < totalPages {
		links.Next = p.buildURL(p.Page + 1)
	}
	return links
}

func (p *Pagination) buildURL(page int) string {
	if p.BaseURL == "" {
		return ""
	}

	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return p.BaseURL
	}

	q := u.Query()
	q.Set("page[number]", strconv.Itoa(page))
	q.Set("page[size]", strconv.Itoa(p.PerPage))
	u.RawQuery = q.Encode()

	return u.String()
}

// Meta returns pagination metadata.
func (p *Pagination) Meta() Meta {
	return Meta{
		"total":    p.Total,
		"page":     p.Page,
		"per_page": p.PerPage,
		"pages":    p.TotalPages(),
	}
}

// ParsePaginationParams extracts page[number] and page[size] from a query.
// Invalid values fall back to the defaults.
func ParsePaginationParams(query url.Values, defaultPerPage int) (page, perPage int) {
	page, perPage = 1, defaultPerPage

	if n, err := strconv.Atoi(query.Get("page[number]")); err == nil && n > 0 {
		page = n
	}
	if n, err := strconv.Atoi(query.Get("page[size]")); err == nil && n > 0 {
		perPage = n
	}
	if perPage > MaxPageSize {
		perPage = MaxPageSize
	}
	return page, perPage
}
