package catalog

import (
	"github.com/shopspring/decimal"
)

// BookSummary is the projection returned by FindAvailable.
type BookSummary struct {
	Title  string  `bson:"title" json:"title"`
	Author string  `bson:"author" json:"author"`
	Price  float64 `bson:"price" json:"price"`
}

// GenrePrice is one row of the average price report. Genre is empty for
// books that have no genre.
type GenrePrice struct {
	Genre        string  `bson:"genre" json:"genre"`
	AveragePrice float64 `bson:"averagePrice" json:"averagePrice"`
}

// RoundedAverage returns AveragePrice rounded half away from zero to places
// decimal places.
func (g GenrePrice) RoundedAverage(places int32) decimal.Decimal {
	return decimal.NewFromFloat(g.AveragePrice).Round(places)
}

// AuthorBookCount is the top author report row.
type AuthorBookCount struct {
	Author    string `bson:"author" json:"author"`
	BookCount int64  `bson:"bookCount" json:"bookCount"`
}

// DecadeCount is one row of the books per decade report.
type DecadeCount struct {
	Decade int64 `bson:"decade" json:"decade"`
	Count  int64 `bson:"count" json:"count"`
}

// Report bundles the three aggregation reports. TopAuthor is nil when the
// collection is empty.
type Report struct {
	AveragePriceByGenre []GenrePrice     `json:"averagePriceByGenre"`
	TopAuthor           *AuthorBookCount `json:"topAuthor"`
	BooksByDecade       []DecadeCount    `json:"booksByDecade"`
}

// IndexOutcome records what happened to one index during EnsureIndexes.
type IndexOutcome struct {
	Name    string `json:"name"`
	Created bool   `json:"created"`
	Existed bool   `json:"existed"`
}

// Diagnostic is the result of ProvisionAndExplain.
type Diagnostic struct {
	Indexes []IndexOutcome  `json:"indexes"`
	Explain *ExecutionStats `json:"explain"`
}
