package executor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/cespare/xxhash/v2"
)

// hashValues digests a tuple of Go values. Values are tagged by type so
// that, for example, int64(1) and "1" digest differently, and a zero byte
// separates the tuple elements. NULL digests as its own tag, so NULL keys
// group together.
func hashValues(digest *xxhash.Digest, values []any) uint64 {
	digest.Reset()
	var buf [8]byte
	for _, value := range values {
		switch v := value.(type) {
		case nil:
			_, _ = digest.Write([]byte{0})
		case bool:
			b := byte(0)
			if v {
				b = 1
			}
			_, _ = digest.Write([]byte{1, b})
		case int64:
			binary.BigEndian.PutUint64(buf[:], uint64(v))
			_, _ = digest.Write([]byte{2})
			_, _ = digest.Write(buf[:])
		case float64:
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
			_, _ = digest.Write([]byte{3})
			_, _ = digest.Write(buf[:])
		case string:
			_, _ = digest.Write([]byte{4})
			_, _ = digest.WriteString(v)
		case arrow.Timestamp:
			binary.BigEndian.PutUint64(buf[:], uint64(v))
			_, _ = digest.Write([]byte{5})
			_, _ = digest.Write(buf[:])
		default:
			panic(fmt.Sprintf("unsupported key type %T", value))
		}
		_, _ = digest.Write([]byte{0})
	}
	return digest.Sum64()
}

// hashArrayValue digests the value at row of an array directly, using the
// same tagging as [hashValues]. Unlike it, list values are supported and
// digest element by element.
func hashArrayValue(digest *xxhash.Digest, arr arrow.Array, row int) {
	if arr.IsNull(row) {
		_, _ = digest.Write([]byte{0})
		return
	}
	var buf [8]byte
	switch a := arr.(type) {
	case *array.Boolean:
		b := byte(0)
		if a.Value(row) {
			b = 1
		}
		_, _ = digest.Write([]byte{1, b})
	case *array.Int64:
		binary.BigEndian.PutUint64(buf[:], uint64(a.Value(row)))
		_, _ = digest.Write([]byte{2})
		_, _ = digest.Write(buf[:])
	case *array.Float64:
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(a.Value(row)))
		_, _ = digest.Write([]byte{3})
		_, _ = digest.Write(buf[:])
	case *array.String:
		_, _ = digest.Write([]byte{4})
		_, _ = digest.WriteString(a.Value(row))
	case *array.Timestamp:
		binary.BigEndian.PutUint64(buf[:], uint64(a.Value(row)))
		_, _ = digest.Write([]byte{5})
		_, _ = digest.Write(buf[:])
	case *array.List:
		_, _ = digest.Write([]byte{6})
		values := a.ListValues()
		start, end := a.ValueOffsets(row)
		for i := start; i < end; i++ {
			hashArrayValue(digest, values, int(i))
		}
		_, _ = digest.Write([]byte{7})
	default:
		panic(fmt.Sprintf("unsupported array type %T", arr))
	}
}
