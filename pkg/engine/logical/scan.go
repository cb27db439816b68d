package logical

import (
	"fmt"
	"strings"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/schema"
	"github.com/floedb/floe/pkg/engine/source"
)

// Compile-time check to ensure Scan implements Plan.
var _ Plan = (*Scan)(nil)

// Scan is the leaf node reading batches from a data source. Scans accumulate
// pushdowns during optimization: a column projection, a predicate, and a
// per-partition row limit that sources may use to skip work and that the
// scan operator enforces.
type Scan struct {
	src        source.DataSource
	projection []string
	predicate  expr.Expr
	limit      int64
	schema     *schema.Schema
}

// NewScan creates a scan of the given source. An empty projection keeps all
// source columns.
func NewScan(src source.DataSource, projection []string) (*Scan, error) {
	s := &Scan{src: src, projection: projection}
	if err := s.derive(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scan) derive() error {
	sourceSchema := s.src.Schema()
	if len(s.projection) == 0 {
		s.schema = sourceSchema
		return nil
	}
	projected, err := sourceSchema.Select(s.projection)
	if err != nil {
		return planErr("Scan", "source %q: %s", s.src.Name(), err)
	}
	s.schema = projected
	return nil
}

// Source returns the scanned data source.
func (s *Scan) Source() source.DataSource { return s.src }

// Projection returns the projected column names, nil when all columns are
// kept.
func (s *Scan) Projection() []string { return s.projection }

// Predicate returns the pushed-down predicate, nil when absent.
func (s *Scan) Predicate() expr.Expr { return s.predicate }

// Limit returns the pushed-down per-partition row limit, zero when absent.
func (s *Scan) Limit() int64 { return s.limit }

// Pushdowns returns the scan-time hints handed to the source.
func (s *Scan) Pushdowns() source.Pushdowns {
	return source.Pushdowns{
		Columns:   s.projection,
		Predicate: s.predicate,
		Limit:     s.limit,
	}
}

// WithProjection returns a copy of the scan restricted to the given columns.
func (s *Scan) WithProjection(columns []string) (*Scan, error) {
	clone := *s
	clone.projection = columns
	if err := clone.derive(); err != nil {
		return nil, err
	}
	return &clone, nil
}

// WithPredicate returns a copy of the scan with an additional pushed-down
// predicate. Subsequent predicates are combined with AND.
func (s *Scan) WithPredicate(predicate expr.Expr) (*Scan, error) {
	if _, err := predicate.ToField(s.schema); err != nil {
		return nil, planErr("Scan", "pushed predicate: %s", err)
	}
	clone := *s
	if clone.predicate != nil {
		clone.predicate = expr.And(clone.predicate, predicate)
	} else {
		clone.predicate = predicate
	}
	return &clone, nil
}

// WithLimit returns a copy of the scan with a per-partition row limit. A
// smaller existing limit wins.
func (s *Scan) WithLimit(limit int64) *Scan {
	clone := *s
	if clone.limit == 0 || limit < clone.limit {
		clone.limit = limit
	}
	return &clone
}

func (*Scan) isPlan() {}

func (s *Scan) Schema() *schema.Schema { return s.schema }

func (s *Scan) Children() []Plan { return nil }

func (s *Scan) WithChildren(children []Plan) (Plan, error) {
	if err := expectChildren("Scan", 0, len(children)); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scan) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scan source=%s", s.src.Name())
	if len(s.projection) > 0 {
		fmt.Fprintf(&sb, " projection=(%s)", strings.Join(s.projection, ", "))
	}
	if s.predicate != nil {
		fmt.Fprintf(&sb, " predicate=%s", s.predicate)
	}
	if s.limit > 0 {
		fmt.Fprintf(&sb, " limit=%d", s.limit)
	}
	return sb.String()
}
