// Package arrowfeed encodes per-second series as Apache Arrow IPC streams
// for downstream viewers and parity tooling.
package arrowfeed

import (
	"bytes"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/timegrid"
)

// Column pairs a name with one per-second series sharing the grid.
type Column struct {
	Name   string
	Series *timegrid.SecondSeries
}

// Encoder builds Arrow record batches from second series.
type Encoder struct {
	pool memory.Allocator
}

func NewEncoder() *Encoder {
	return &Encoder{pool: memory.NewGoAllocator()}
}

// Write streams one record batch of (ts, columns...) to w in Arrow IPC
// format. All columns must share the same grid length.
func (e *Encoder) Write(w io.Writer, cols []Column) error {
	if len(cols) == 0 {
		return fmt.Errorf("no columns to encode")
	}
	n := cols[0].Series.Len()
	for _, c := range cols {
		if c.Series.Len() != n {
			return fmt.Errorf("column %s length %d != %d", c.Name, c.Series.Len(), n)
		}
	}

	fields := make([]arrow.Field, 0, len(cols)+1)
	fields = append(fields, arrow.Field{Name: "ts", Type: arrow.PrimitiveTypes.Int64})
	for _, c := range cols {
		fields = append(fields, arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Float64})
	}
	schema := arrow.NewSchema(fields, nil)

	tsBuilder := array.NewInt64Builder(e.pool)
	tsBuilder.AppendValues(cols[0].Series.Ts, nil)
	arrays := []arrow.Array{tsBuilder.NewInt64Array()}

	for _, c := range cols {
		b := array.NewFloat64Builder(e.pool)
		b.AppendValues(c.Series.Val, nil)
		arrays = append(arrays, b.NewFloat64Array())
	}

	record := array.NewRecord(schema, arrays, int64(n))
	defer record.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(schema))
	defer writer.Close()

	if err := writer.Write(record); err != nil {
		return fmt.Errorf("write arrow record: %w", err)
	}
	return nil
}

// Encode returns the IPC bytes for one batch.
func (e *Encoder) Encode(cols []Column) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, cols); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
