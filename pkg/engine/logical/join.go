package logical

import (
	"fmt"
	"slices"
	"strings"

	"github.com/floedb/floe/pkg/engine/schema"
	"github.com/floedb/floe/pkg/engine/types"
)

// JoinType denotes the kind of join to perform.
type JoinType int

// Recognized values of [JoinType].
const (
	// JoinTypeInvalid indicates an invalid join type.
	JoinTypeInvalid JoinType = iota

	JoinTypeInner // Keep rows with matches on both sides.
	JoinTypeLeft  // Keep all left rows, right columns NULL without a match.
)

var joinTypeStrings = map[JoinType]string{
	JoinTypeInvalid: "invalid",

	JoinTypeInner: "INNER",
	JoinTypeLeft:  "LEFT",
}

// String returns the string representation of the JoinType.
func (t JoinType) String() string {
	if s, ok := joinTypeStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("JoinType(%d)", t)
}

// Compile-time check to ensure Join implements Plan.
var _ Plan = (*Join)(nil)

// Join matches rows of two inputs on equality of their key columns. The
// output schema is the left columns followed by the right columns; a right
// key column with the same name as its left counterpart is merged into the
// left one. Other column name collisions are rejected.
type Join struct {
	left, right     Plan
	how             JoinType
	leftOn, rightOn []string
	schema          *schema.Schema
}

// NewJoin creates an equi-join of left and right.
func NewJoin(left, right Plan, how JoinType, leftOn, rightOn []string) (*Join, error) {
	if how != JoinTypeInner && how != JoinTypeLeft {
		return nil, planErr("Join", "unsupported join type %s", how)
	}
	if len(leftOn) == 0 || len(leftOn) != len(rightOn) {
		return nil, planErr("Join", "needs matching key lists, got %d left and %d right", len(leftOn), len(rightOn))
	}

	for i := range leftOn {
		lcol, _, ok := left.Schema().Lookup(leftOn[i])
		if !ok {
			return nil, planErr("Join", "left key %q not found in %s", leftOn[i], left.Schema())
		}
		rcol, _, ok := right.Schema().Lookup(rightOn[i])
		if !ok {
			return nil, planErr("Join", "right key %q not found in %s", rightOn[i], right.Schema())
		}
		if _, err := types.Promote(lcol.Type, rcol.Type); err != nil {
			return nil, planErr("Join", "keys %q and %q: %s", leftOn[i], rightOn[i], err)
		}
	}

	columns := slices.Clone(left.Schema().Columns)
	for _, rcol := range right.Schema().Columns {
		if idx := slices.Index(rightOn, rcol.Name); idx >= 0 && leftOn[idx] == rcol.Name {
			continue
		}
		if how == JoinTypeLeft {
			rcol.Nullable = true
		}
		columns = append(columns, rcol)
	}
	derived, err := schema.New(columns...)
	if err != nil {
		return nil, planErr("Join", "%s", err)
	}

	return &Join{left: left, right: right, how: how, leftOn: leftOn, rightOn: rightOn, schema: derived}, nil
}

// Type returns the join type.
func (j *Join) Type() JoinType { return j.how }

// LeftOn returns the left key column names.
func (j *Join) LeftOn() []string { return j.leftOn }

// RightOn returns the right key column names.
func (j *Join) RightOn() []string { return j.rightOn }

// Left returns the left input.
func (j *Join) Left() Plan { return j.left }

// Right returns the right input.
func (j *Join) Right() Plan { return j.right }

func (*Join) isPlan() {}

func (j *Join) Schema() *schema.Schema { return j.schema }

func (j *Join) Children() []Plan { return []Plan{j.left, j.right} }

func (j *Join) WithChildren(children []Plan) (Plan, error) {
	if err := expectChildren("Join", 2, len(children)); err != nil {
		return nil, err
	}
	return NewJoin(children[0], children[1], j.how, j.leftOn, j.rightOn)
}

func (j *Join) String() string {
	return fmt.Sprintf("Join type=%s leftOn=(%s) rightOn=(%s)", j.how, strings.Join(j.leftOn, ", "), strings.Join(j.rightOn, ", "))
}
