package sink

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/wegman-software/georender-go/internal/record"
)

var parquetSchema = arrow.NewSchema([]arrow.Field{
	{Name: "osm_id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "osm_type", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "kind", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
	{Name: "record", Type: arrow.BinaryTypes.Binary, Nullable: false},
}, nil)

// ParquetWriter writes one record per row, zstd-compressed
type ParquetWriter struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
}

// NewParquetWriter creates a Parquet file at path
func NewParquetWriter(path string, batchSize int) (*ParquetWriter, error) {
	if batchSize <= 0 {
		batchSize = 100000
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(parquetSchema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	return &ParquetWriter{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, parquetSchema),
		batchSize: batchSize,
	}, nil
}

// Write appends a row, flushing a row group every batchSize rows
func (w *ParquetWriter) Write(e Entry) error {
	w.builder.Field(0).(*array.Int64Builder).Append(e.OsmID)
	w.builder.Field(1).(*array.StringBuilder).Append(e.OsmType)
	w.builder.Field(2).(*array.Int32Builder).Append(int32(e.Kind))
	w.builder.Field(3).(*array.BinaryBuilder).Append(e.Data)

	w.count++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

func (w *ParquetWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Close closes the writer
func (w *ParquetWriter) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		w.writer.Close()
		w.file.Close()
		return err
	}
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return err
	}
	// the parquet writer may already have closed the file
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// ReadParquet calls fn for every row of a file written by ParquetWriter
func ReadParquet(ctx context.Context, path string, fn func(Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pf.Close()

	arrowReader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return fmt.Errorf("failed to create arrow reader: %w", err)
	}

	tbl, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return fmt.Errorf("failed to read table: %w", err)
	}
	defer tbl.Release()

	if tbl.NumCols() != int64(len(parquetSchema.Fields())) {
		return fmt.Errorf("parquet file %s has %d columns, want %d", path, tbl.NumCols(), len(parquetSchema.Fields()))
	}

	idCol := tbl.Column(0).Data()
	typeCol := tbl.Column(1).Data()
	kindCol := tbl.Column(2).Data()
	recCol := tbl.Column(3).Data()

	for c := 0; c < len(idCol.Chunks()); c++ {
		ids := idCol.Chunk(c).(*array.Int64)
		types := typeCol.Chunk(c).(*array.String)
		kinds := kindCol.Chunk(c).(*array.Int32)
		recs := recCol.Chunk(c).(*array.Binary)

		for i := 0; i < ids.Len(); i++ {
			e := Entry{
				OsmID:   ids.Value(i),
				OsmType: types.Value(i),
				Kind:    record.Kind(kinds.Value(i)),
				Data:    append([]byte(nil), recs.Value(i)...),
			}
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return nil
}
