package constant

// Pagination defaults for the available-books query.
const (
	// DefaultPage is the first page number.
	DefaultPage = 1
	// DefaultPageSize is the number of books returned per page.
	DefaultPageSize = 5
	// MinPage is the smallest accepted page number.
	MinPage = 1
	// MinPageSize is the smallest accepted page size.
	MinPageSize = 1
)
