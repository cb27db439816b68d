package logical

import (
	"github.com/floedb/floe/pkg/engine/schema"
)

// Compile-time check to ensure Empty implements Plan.
var _ Plan = (*Empty)(nil)

// Empty is a leaf producing no rows. The optimizer substitutes it for
// subtrees proven to yield nothing, such as filters with an always-false
// predicate.
type Empty struct {
	schema *schema.Schema
}

// NewEmpty creates an empty relation with the given schema.
func NewEmpty(s *schema.Schema) *Empty {
	return &Empty{schema: s}
}

func (*Empty) isPlan() {}

func (e *Empty) Schema() *schema.Schema { return e.schema }

func (e *Empty) Children() []Plan { return nil }

func (e *Empty) WithChildren(children []Plan) (Plan, error) {
	if err := expectChildren("Empty", 0, len(children)); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Empty) String() string { return "Empty" }
