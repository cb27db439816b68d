// Package source defines the contract between the engine and the systems
// that provide data to scans. A data source exposes a schema and a fixed set
// of partitions; each partition streams immutable record batches.
package source

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/schema"
)

// Stats are estimated statistics of a source used for planning decisions.
// Estimates, not guarantees.
type Stats struct {
	// Rows is the estimated total row count across all partitions.
	Rows int64
	// Bytes is the estimated total byte size across all partitions.
	Bytes int64
}

// Pushdowns carries scan-time hints derived from the query. Sources may use
// them to skip work, but the scan operator enforces them either way: columns
// are projected, the predicate is applied, and the limit is respected even
// when the source ignores the hints entirely.
type Pushdowns struct {
	// Columns restricts the produced columns. Nil means all columns.
	Columns []string
	// Predicate is a row filter over source columns. Nil means no filter.
	Predicate expr.Expr
	// Limit caps the number of rows produced per partition. Zero means no
	// limit; plans with an actual zero-row limit never reach a scan.
	Limit int64
}

// DataSource provides partitioned record batches to scan nodes.
type DataSource interface {
	// Name identifies the source in plan output.
	Name() string

	// Schema returns the schema of the produced batches.
	Schema() *schema.Schema

	// Partitions returns the number of independently scannable partitions.
	// It is at least 1.
	Partitions() int

	// Stats returns estimated source statistics when the source knows them.
	Stats() (Stats, bool)

	// Open starts reading one partition.
	Open(ctx context.Context, partition int, pushdowns Pushdowns) (Reader, error)
}

// Reader streams the record batches of a single partition. Each returned
// batch is a new reference owned by the caller; the caller releases it when
// done.
type Reader interface {
	// Read returns the next batch, or io.EOF after the final batch.
	Read(ctx context.Context) (arrow.Record, error)

	// Close releases resources held by the reader. Close is idempotent.
	Close()
}
