package source

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/floedb/floe/pkg/engine/schema"
)

// MemorySource serves record batches held in memory. It backs embedded use
// and tests. The source does not take ownership of the batches; they must
// stay valid for the lifetime of the source.
type MemorySource struct {
	name       string
	schema     *schema.Schema
	partitions [][]arrow.Record
	stats      *Stats
}

var _ DataSource = (*MemorySource)(nil)

// NewMemorySource builds a source over pre-partitioned batches. Every batch
// must match the given schema.
func NewMemorySource(name string, s *schema.Schema, partitions [][]arrow.Record) (*MemorySource, error) {
	if len(partitions) == 0 {
		return nil, fmt.Errorf("memory source %q needs at least one partition", name)
	}
	arrowSchema := s.ArrowSchema()
	for i, batches := range partitions {
		for _, batch := range batches {
			if !batch.Schema().Equal(arrowSchema) {
				return nil, fmt.Errorf("memory source %q: partition %d batch schema %s does not match %s", name, i, batch.Schema(), arrowSchema)
			}
		}
	}
	return &MemorySource{name: name, schema: s, partitions: partitions}, nil
}

// WithStats attaches estimated statistics to the source.
func (s *MemorySource) WithStats(stats Stats) *MemorySource {
	s.stats = &stats
	return s
}

func (s *MemorySource) Name() string           { return s.name }
func (s *MemorySource) Schema() *schema.Schema { return s.schema }
func (s *MemorySource) Partitions() int        { return len(s.partitions) }

func (s *MemorySource) Stats() (Stats, bool) {
	if s.stats == nil {
		return Stats{}, false
	}
	return *s.stats, true
}

func (s *MemorySource) Open(_ context.Context, partition int, _ Pushdowns) (Reader, error) {
	if partition < 0 || partition >= len(s.partitions) {
		return nil, fmt.Errorf("memory source %q has no partition %d", s.name, partition)
	}
	return &memReader{batches: s.partitions[partition]}, nil
}

type memReader struct {
	batches []arrow.Record
	next    int
}

func (r *memReader) Read(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.next >= len(r.batches) {
		return nil, io.EOF
	}
	batch := r.batches[r.next]
	r.next++
	batch.Retain()
	return batch, nil
}

func (r *memReader) Close() { r.next = len(r.batches) }
