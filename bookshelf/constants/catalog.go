package constant

// Book document field names.
const (
	FieldID            = "_id"
	FieldTitle         = "title"
	FieldAuthor        = "author"
	FieldGenre         = "genre"
	FieldPrice         = "price"
	FieldInStock       = "inStock"
	FieldPublishedYear = "publishedYear"
)

// Query defaults.
const (
	// DefaultPublishedAfter is the exclusive lower bound on publishedYear for available books.
	DefaultPublishedAfter = 2010
	// DefaultExplainTitle is the title used by the plan diagnostic lookup.
	DefaultExplainTitle = "Some Book Title"
	// DefaultCollection is the collection name used when none is configured.
	DefaultCollection = "books"
)

// ExplainVerbosityExecutionStats asks the engine for the winning plan plus
// execution counters and timing.
const ExplainVerbosityExecutionStats = "executionStats"
