package expr

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/floedb/floe/pkg/engine/internal/treenode"
	"github.com/floedb/floe/pkg/engine/types"
)

// Equal reports whether two expressions are structurally identical.
func Equal(a, b Expr) bool {
	switch a := a.(type) {
	case *ColumnExpr:
		b, ok := b.(*ColumnExpr)
		return ok && a.Name == b.Name
	case *LiteralExpr:
		b, ok := b.(*LiteralExpr)
		return ok && a.Value.Equal(b.Value)
	case *UnaryExpr:
		b, ok := b.(*UnaryExpr)
		return ok && a.Op == b.Op && Equal(a.Value, b.Value)
	case *BinaryExpr:
		b, ok := b.(*BinaryExpr)
		return ok && a.Op == b.Op && Equal(a.Left, b.Left) && Equal(a.Right, b.Right)
	case *FuncExpr:
		b, ok := b.(*FuncExpr)
		if !ok || a.Name != b.Name || len(a.Args) != len(b.Args) {
			return false
		}
		for i := range a.Args {
			if !Equal(a.Args[i], b.Args[i]) {
				return false
			}
		}
		return true
	case *AggExpr:
		b, ok := b.(*AggExpr)
		if !ok || a.Op != b.Op {
			return false
		}
		if a.Value == nil || b.Value == nil {
			return a.Value == nil && b.Value == nil
		}
		return Equal(a.Value, b.Value)
	case *CastExpr:
		b, ok := b.(*CastExpr)
		return ok && a.To.Equal(b.To) && Equal(a.Value, b.Value)
	case *AliasExpr:
		b, ok := b.(*AliasExpr)
		return ok && a.Name == b.Name && Equal(a.Value, b.Value)
	default:
		return false
	}
}

// Hash returns a structural hash of the expression, consistent with [Equal].
func Hash(e Expr) uint64 {
	digest := xxhash.New()
	writeExpr(digest, e)
	return digest.Sum64()
}

var separator = []byte{0}

func writeExpr(digest *xxhash.Digest, e Expr) {
	switch e := e.(type) {
	case *ColumnExpr:
		_, _ = digest.WriteString("col")
		_, _ = digest.Write(separator)
		_, _ = digest.WriteString(e.Name)
	case *LiteralExpr:
		_, _ = digest.WriteString("lit")
		_, _ = digest.Write(separator)
		_, _ = digest.WriteString(e.Value.DataType().String())
		_, _ = digest.Write(separator)
		_, _ = digest.WriteString(e.Value.String())
	case *UnaryExpr:
		fmt.Fprintf(digest, "unary/%d", e.Op)
	case *BinaryExpr:
		fmt.Fprintf(digest, "binary/%d", e.Op)
	case *FuncExpr:
		_, _ = digest.WriteString("func")
		_, _ = digest.Write(separator)
		_, _ = digest.WriteString(e.Name)
	case *AggExpr:
		fmt.Fprintf(digest, "agg/%d/%t", e.Op, e.Value == nil)
	case *CastExpr:
		_, _ = digest.WriteString("cast")
		_, _ = digest.Write(separator)
		_, _ = digest.WriteString(e.To.String())
	case *AliasExpr:
		_, _ = digest.WriteString("alias")
		_, _ = digest.Write(separator)
		_, _ = digest.WriteString(e.Name)
	}
	for _, child := range e.Children() {
		_, _ = digest.Write(separator)
		writeExpr(digest, child)
	}
}

// Columns returns the names of all columns referenced by the expression, in
// first-appearance order without duplicates.
func Columns(exprs ...Expr) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, e := range exprs {
		if e == nil {
			continue
		}
		_ = treenode.Walk(e, func(node Expr) (treenode.Recursion, error) {
			if col, ok := node.(*ColumnExpr); ok {
				if _, dup := seen[col.Name]; !dup {
					seen[col.Name] = struct{}{}
					names = append(names, col.Name)
				}
			}
			return treenode.Continue, nil
		})
	}
	return names
}

// Substitute replaces column references by name with replacement
// expressions. References without a replacement are kept.
func Substitute(e Expr, replacements map[string]Expr) (Expr, error) {
	result, err := treenode.TransformUp(e, func(node Expr) (treenode.Transformed[Expr], error) {
		if col, ok := node.(*ColumnExpr); ok {
			if replacement, ok := replacements[col.Name]; ok {
				return treenode.Yes(replacement), nil
			}
		}
		return treenode.No(node), nil
	})
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

// HasAggregations reports whether the expression contains an aggregate call.
func HasAggregations(e Expr) bool {
	var found bool
	_ = treenode.Walk(e, func(node Expr) (treenode.Recursion, error) {
		if _, ok := node.(*AggExpr); ok {
			found = true
			return treenode.Stop, nil
		}
		return treenode.Continue, nil
	})
	return found
}

// IsLiteral returns the literal value of a constant expression.
func IsLiteral(e Expr) (types.Literal, bool) {
	if lit, ok := e.(*LiteralExpr); ok {
		return lit.Value, true
	}
	return types.Literal{}, false
}

// SplitConjunction splits nested AND expressions into their conjuncts, in
// left-to-right order. Non-AND expressions yield themselves.
func SplitConjunction(e Expr) []Expr {
	if bin, ok := e.(*BinaryExpr); ok && bin.Op == types.BinaryOpAnd {
		return append(SplitConjunction(bin.Left), SplitConjunction(bin.Right)...)
	}
	return []Expr{e}
}

// Conjoin combines predicates into a single left-deep AND expression. It
// returns nil for an empty slice.
func Conjoin(predicates []Expr) Expr {
	if len(predicates) == 0 {
		return nil
	}
	combined := predicates[0]
	for _, p := range predicates[1:] {
		combined = And(combined, p)
	}
	return combined
}
