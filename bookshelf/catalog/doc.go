// Package catalog is the query façade over a books collection.
//
// It builds the filter, projection, sort, aggregation pipelines and index
// descriptors for a fixed set of read operations and hands them to an injected
// Collection for execution. The package keeps no state between calls; the
// database engine does all planning and execution.
//
// Operations:
//
//   - FindAvailable: paginated in-stock books published after a threshold year,
//     projected to title, author and price and sorted by price.
//   - AveragePriceByGenre, TopAuthor, BooksByDecade: aggregation reports.
//     Reports runs all three, optionally in parallel.
//   - EnsureIndexes and ExplainTitleLookup: idempotent index provisioning and a
//     query plan diagnostic. ProvisionAndExplain runs both in order.
//
// Errors are *Error values whose Kind can be matched with errors.Is against
// ErrInvalidPagination, ErrIndexConflict, ErrIndexCreation and ErrQueryExecution.
package catalog
