package shared

// Page size bounds applied to every listing.
const (
	DefaultPerPage = 50
	MaxPerPage     = 500
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination clamps page and perPage into range. Total is filled in later
// with WithTotal once the query has run.
func NewPagination(page, perPage int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if page <= 0 {
		page = 1
	}
	return Pagination{Page: page, PerPage: perPage}
}

// Offset is the number of rows to skip for the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// WithTotal returns p with the total and page count set.
func (p Pagination) WithTotal(total int) Pagination {
	p.Total = total
	p.TotalPages = 0
	if total > 0 {
		p.TotalPages = (total + p.PerPage - 1) / p.PerPage
	}
	return p
}
