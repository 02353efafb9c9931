package sink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/wegman-software/georender-go/internal/varint"
)

// FrameWriter writes records as varint(len) followed by the record bytes
type FrameWriter struct {
	bw     *bufio.Writer
	zw     *zstd.Encoder
	file   io.Closer
	header [varint.MaxLen]byte
}

// NewFrameWriter writes frames to w, optionally through zstd
func NewFrameWriter(w io.Writer, c Compression) (*FrameWriter, error) {
	fw := &FrameWriter{}
	if c == CompressionZstd {
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		fw.zw = zw
		w = zw
	}
	fw.bw = bufio.NewWriterSize(w, 1<<20)
	return fw, nil
}

// CreateFrameFile creates path; a ".zst" suffix turns on zstd
func CreateFrameFile(path string, c Compression) (*FrameWriter, error) {
	if strings.HasSuffix(path, ".zst") {
		c = CompressionZstd
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame file: %w", err)
	}
	fw, err := NewFrameWriter(f, c)
	if err != nil {
		f.Close()
		return nil, err
	}
	fw.file = f
	return fw, nil
}

// Write writes e.Data as one frame
func (w *FrameWriter) Write(e Entry) error {
	return w.WriteRecord(e.Data)
}

// WriteRecord writes one frame
func (w *FrameWriter) WriteRecord(rec []byte) error {
	if len(rec) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(rec))
	}
	n := varint.EncodeAt(uint64(len(rec)), w.header[:], 0)
	if _, err := w.bw.Write(w.header[:n]); err != nil {
		return err
	}
	_, err := w.bw.Write(rec)
	return err
}

// Close flushes buffered frames and closes the file if the writer owns one
func (w *FrameWriter) Close() error {
	err := w.bw.Flush()
	if w.zw != nil {
		if cerr := w.zw.Close(); err == nil {
			err = cerr
		}
	}
	if w.file != nil {
		if cerr := w.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// FrameReader reads records written by FrameWriter
type FrameReader struct {
	br   *bufio.Reader
	zr   *zstd.Decoder
	file io.Closer
}

// NewFrameReader reads frames from r, optionally through zstd
func NewFrameReader(r io.Reader, c Compression) (*FrameReader, error) {
	fr := &FrameReader{}
	if c == CompressionZstd {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		fr.zr = zr
		r = zr
	}
	fr.br = bufio.NewReaderSize(r, 1<<20)
	return fr, nil
}

// OpenFrameFile opens path; a ".zst" suffix turns on zstd
func OpenFrameFile(path string, c Compression) (*FrameReader, error) {
	if strings.HasSuffix(path, ".zst") {
		c = CompressionZstd
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame file: %w", err)
	}
	fr, err := NewFrameReader(f, c)
	if err != nil {
		f.Close()
		return nil, err
	}
	fr.file = f
	return fr, nil
}

// Next returns the next record
// io.EOF marks a clean end of stream; a stream cut inside a frame
// gives io.ErrUnexpectedEOF.
func (r *FrameReader) Next() ([]byte, error) {
	n, err := varint.Read(r.br)
	if err != nil {
		return nil, err
	}
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	rec := make([]byte, n)
	if _, err := io.ReadFull(r.br, rec); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return rec, nil
}

// Close releases the decoder and file
func (r *FrameReader) Close() error {
	if r.zr != nil {
		r.zr.Close()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
