package core

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest describes one page of a cursor-paginated listing.
// Cursor is the id of the last item of the previous page; nil starts from the beginning.
type PageRequest struct {
	Cursor   *int64
	PageSize int
	Search   string
	Filters  map[string]string
}

func (r PageRequest) Validate() error {
	if r.PageSize < 1 {
		return InvalidArgument("page size must be at least 1")
	}
	if r.PageSize > MaxPageSize {
		return InvalidArgument("page size must be at most %d", MaxPageSize)
	}
	if r.Cursor != nil && *r.Cursor < 0 {
		return InvalidArgument("invalid cursor")
	}
	return nil
}

// Limit is the number of rows to fetch: one more than the page size, so the
// presence of a following page is known without a second query.
func (r PageRequest) Limit() int {
	return r.PageSize + 1
}

type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor *int64 `json:"nextCursor"`
	TotalCount int64  `json:"totalCount"`
}

// NewPage trims rows fetched with PageRequest.Limit to pageSize. When the extra
// row was present, NextCursor is the id of the last returned item.
func NewPage[T any](rows []T, pageSize int, total int64, id func(T) int64) Page[T] {
	p := Page[T]{Items: rows, TotalCount: total}
	if len(rows) > pageSize {
		p.Items = rows[:pageSize]
		next := id(p.Items[len(p.Items)-1])
		p.NextCursor = &next
	}
	if p.Items == nil {
		p.Items = []T{}
	}
	return p
}

// MapPage converts the items of a page, keeping cursor and count.
func MapPage[T, U any](p Page[T], f func(T) U) Page[U] {
	out := Page[U]{Items: make([]U, len(p.Items)), NextCursor: p.NextCursor, TotalCount: p.TotalCount}
	for i, item := range p.Items {
		out.Items[i] = f(item)
	}
	return out
}
