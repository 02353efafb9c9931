// Package sink stores encoded records.
//
// Records carry no length of their own, so every sink delimits them: frame
// files prefix each record with its varint length, Parquet and PostgreSQL
// keep one record per row.
package sink

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wegman-software/georender-go/internal/record"
)

// Entry is one encoded record with the OSM element it came from
type Entry struct {
	OsmID   int64
	OsmType string // "N", "W" or "R"
	Kind    record.Kind
	Data    []byte
}

// Writer accepts entries; implementations are not safe for concurrent use
type Writer interface {
	Write(e Entry) error
	Close() error
}

// Format selects a sink implementation
type Format string

const (
	FormatFrames   Format = "frames"
	FormatParquet  Format = "parquet"
	FormatPostgres Format = "postgres"
)

// ParseFormat parses a sink format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatFrames, FormatParquet, FormatPostgres:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want frames, parquet or postgres)", s)
}

// Compression of a frame stream
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// ParseCompression parses a compression name; "" means none
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(s)); c {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd:
		return c, nil
	}
	return "", fmt.Errorf("unknown compression %q (want none or zstd)", s)
}

// ErrFrameTooLarge is returned for frames above MaxFrameSize
var ErrFrameTooLarge = errors.New("sink: frame too large")

// MaxFrameSize bounds a single record in a frame stream
const MaxFrameSize = 64 << 20

// Counter wraps a Writer and counts entries per kind
type Counter struct {
	Writer
	Counts map[record.Kind]int64
	Bytes  int64
}

// NewCounter wraps w
func NewCounter(w Writer) *Counter {
	return &Counter{Writer: w, Counts: make(map[record.Kind]int64)}
}

// Write forwards e and counts it on success
func (c *Counter) Write(e Entry) error {
	if err := c.Writer.Write(e); err != nil {
		return err
	}
	c.Counts[e.Kind]++
	c.Bytes += int64(len(e.Data))
	return nil
}
