package logical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/schema"
)

// Compile-time check to ensure Limit implements Plan.
var _ Plan = (*Limit)(nil)

// Limit skips the first Skip rows of its input and passes through at most
// Fetch rows after that. A Fetch of zero passes through no rows.
type Limit struct {
	input Plan
	skip  uint64
	fetch uint64
}

// NewLimit creates a limit over input.
func NewLimit(input Plan, skip, fetch uint64) (*Limit, error) {
	return &Limit{input: input, skip: skip, fetch: fetch}, nil
}

// Skip returns the number of leading rows dropped before any row is emitted.
func (l *Limit) Skip() uint64 { return l.skip }

// Fetch returns the maximum number of rows emitted.
func (l *Limit) Fetch() uint64 { return l.fetch }

// Input returns the limited plan.
func (l *Limit) Input() Plan { return l.input }

func (*Limit) isPlan() {}

func (l *Limit) Schema() *schema.Schema { return l.input.Schema() }

func (l *Limit) Children() []Plan { return []Plan{l.input} }

func (l *Limit) WithChildren(children []Plan) (Plan, error) {
	if err := expectChildren("Limit", 1, len(children)); err != nil {
		return nil, err
	}
	return NewLimit(children[0], l.skip, l.fetch)
}

func (l *Limit) String() string {
	if l.skip > 0 {
		return fmt.Sprintf("Limit skip=%d fetch=%d", l.skip, l.fetch)
	}
	return fmt.Sprintf("Limit fetch=%d", l.fetch)
}
