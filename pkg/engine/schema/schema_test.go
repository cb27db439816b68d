package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/floedb/floe/pkg/engine/types"
)

func TestNew(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s, err := New(
			Column{Name: "a", Type: types.Int64},
			Column{Name: "b", Type: types.String, Nullable: true},
		)
		require.NoError(t, err)
		require.Equal(t, 2, s.Len())
		require.Equal(t, []string{"a", "b"}, s.ColumnNames())
	})

	t.Run("duplicate name", func(t *testing.T) {
		_, err := New(
			Column{Name: "a", Type: types.Int64},
			Column{Name: "a", Type: types.String},
		)
		require.ErrorContains(t, err, `duplicate column name "a"`)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := New(Column{Type: types.Int64})
		require.Error(t, err)
	})
}

func TestLookupAndSelect(t *testing.T) {
	s, err := New(
		Column{Name: "a", Type: types.Int64},
		Column{Name: "b", Type: types.String},
		Column{Name: "c", Type: types.Float64},
	)
	require.NoError(t, err)

	col, idx, ok := s.Lookup("b")
	require.True(t, ok)
	require.Equal(t, 1, idx)
	require.True(t, col.Type.Equal(types.String))

	_, _, ok = s.Lookup("missing")
	require.False(t, ok)

	sub, err := s.Select([]string{"c", "a"})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a"}, sub.ColumnNames())

	_, err = s.Select([]string{"missing"})
	require.ErrorContains(t, err, `unknown column "missing"`)
}

func TestEqual(t *testing.T) {
	a, err := New(Column{Name: "a", Type: types.Int64}, Column{Name: "b", Type: types.String})
	require.NoError(t, err)
	b, err := New(Column{Name: "a", Type: types.Int64}, Column{Name: "b", Type: types.String, Nullable: true})
	require.NoError(t, err)
	c, err := New(Column{Name: "b", Type: types.String}, Column{Name: "a", Type: types.Int64})
	require.NoError(t, err)

	require.True(t, Equal(a, b), "nullability is ignored")
	require.False(t, Equal(a, c), "order matters")
	require.True(t, Equal(nil, nil))
	require.False(t, Equal(a, nil))
}

func TestArrowRoundTrip(t *testing.T) {
	s, err := New(
		Column{Name: "ts", Type: types.Timestamp},
		Column{Name: "msg", Type: types.String, Nullable: true},
		Column{Name: "tags", Type: types.ListOf(types.String), Nullable: true},
	)
	require.NoError(t, err)

	back, err := FromArrow(s.ArrowSchema())
	require.NoError(t, err)
	require.True(t, Equal(s, back))
	require.Equal(t, "(ts timestamp, msg string, tags list<string>)", back.String())
}
