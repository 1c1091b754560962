// Package store reads thumbnail-bearing records in pages.
//
// RecordStore is the only view of the database the pipeline has. Mongo is
// the production implementation; Memory serves tests and small fixtures.
package store

import (
	"context"

	"thumbfetch/internal/models"
	"thumbfetch/internal/modules/filter"
)

// CollectionName is the collection holding records.
const CollectionName = "records"

// RecordStore counts and pages through records matching a filter.
// Implementations must be safe for concurrent use.
type RecordStore interface {
	// Count returns the number of records matching f.
	Count(ctx context.Context, f filter.Filter) (int64, error)

	// FindPage returns at most limit records matching f after skipping the
	// first skip of them. Records carry only their id and thumbnail. An
	// empty page means there are no more records.
	FindPage(ctx context.Context, f filter.Filter, limit, skip int64) ([]models.Record, error)

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
