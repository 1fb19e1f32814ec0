package domain

// PaginationParams carries page/limit values from the HTTP layer to list views.
// Page is 1-indexed. Limit is capped at 100 by NewPaginationParams.
type PaginationParams struct {
	Page  int
	Limit int
}

// NewPaginationParams builds a PaginationParams from optional query params.
// Nil pointers fall back to page=1, limit=20.
func NewPaginationParams(page, limit *int) PaginationParams {
	p := PaginationParams{Page: 1, Limit: 20}
	if page != nil && *page >= 1 {
		p.Page = *page
	}
	if limit != nil && *limit >= 1 {
		p.Limit = min(*limit, 100)
	}
	return p
}

// Offset returns the zero-based index of the first item on the page.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Paginate returns the page of items selected by p and the total count.
// The returned page is never nil.
func Paginate[E any](items []E, p PaginationParams) ([]E, int) {
	total := len(items)
	from := min(p.Offset(), total)
	to := min(from+p.Limit, total)
	page := make([]E, to-from)
	copy(page, items[from:to])
	return page, total
}
