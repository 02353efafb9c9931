package sink

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulmach/orb"

	"github.com/wegman-software/georender-go/internal/point"
	"github.com/wegman-software/georender-go/internal/record"
)

func testEntries() []Entry {
	big := bytes.Repeat([]byte{0xab}, 300)
	return []Entry{
		{OsmID: 1, OsmType: "N", Kind: record.KindNode, Data: []byte{1, 2, 3}},
		{OsmID: 2, OsmType: "W", Kind: record.KindLine, Data: big},
		{OsmID: 3, OsmType: "R", Kind: record.KindArea, Data: []byte{}},
		{OsmID: 234941233, OsmType: "W", Kind: record.KindArea, Data: []byte{3, 0xae, 0x01}},
	}
}

func TestFrameRoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewFrameWriter(&buf, c)
			require.NoError(t, err)
			for _, e := range testEntries() {
				require.NoError(t, w.Write(e))
			}
			require.NoError(t, w.Close())

			r, err := NewFrameReader(&buf, c)
			require.NoError(t, err)
			defer r.Close()
			for _, e := range testEntries() {
				got, err := r.Next()
				require.NoError(t, err)
				assert.Equal(t, e.Data, got)
			}
			_, err = r.Next()
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestFrameLayout(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewFrameWriter(&buf, CompressionNone)
	require.NoError(t, err)
	require.NoError(t, w.WriteRecord([]byte{0xaa, 0xbb}))
	require.NoError(t, w.WriteRecord(make([]byte, 200)))
	require.NoError(t, w.Close())

	out := buf.Bytes()
	assert.Equal(t, []byte{0x02, 0xaa, 0xbb, 0xc8, 0x01}, out[:5])
	assert.Len(t, out, 3+2+200)
}

func TestFrameTruncated(t *testing.T) {
	r, err := NewFrameReader(bytes.NewReader([]byte{0x05, 1, 2}), CompressionNone)
	require.NoError(t, err)
	_, err = r.Next()
	assert.Equal(t, io.ErrUnexpectedEOF, err)

	r, err = NewFrameReader(bytes.NewReader([]byte{0x80}), CompressionNone)
	require.NoError(t, err)
	_, err = r.Next()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestFrameTooLarge(t *testing.T) {
	r, err := NewFrameReader(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x0f}), CompressionNone)
	require.NoError(t, err)
	_, err = r.Next()
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	w, err := NewFrameWriter(io.Discard, CompressionNone)
	require.NoError(t, err)
	assert.ErrorIs(t, w.WriteRecord(make([]byte, MaxFrameSize+1)), ErrFrameTooLarge)
}

func TestFrameFileZstdSuffix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.grb.zst")

	w, err := CreateFrameFile(path, CompressionNone)
	require.NoError(t, err)
	require.NotNil(t, w.zw, "zst suffix should turn on compression")
	for _, e := range testEntries() {
		require.NoError(t, w.Write(e))
	}
	require.NoError(t, w.Close())

	r, err := OpenFrameFile(path, CompressionNone)
	require.NoError(t, err)
	defer r.Close()

	n := 0
	for {
		_, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, len(testEntries()), n)
}

func TestParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.parquet")

	w, err := NewParquetWriter(path, 2)
	require.NoError(t, err)
	for _, e := range testEntries() {
		require.NoError(t, w.Write(e))
	}
	require.NoError(t, w.Close())

	var got []Entry
	err = ReadParquet(context.Background(), path, func(e Entry) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, len(testEntries()))
	for i, want := range testEntries() {
		assert.Equal(t, want.OsmID, got[i].OsmID)
		assert.Equal(t, want.OsmType, got[i].OsmType)
		assert.Equal(t, want.Kind, got[i].Kind)
		assert.True(t, bytes.Equal(want.Data, got[i].Data), "entry %d data", i)
	}
}

func TestCounter(t *testing.T) {
	w, err := NewFrameWriter(io.Discard, CompressionNone)
	require.NoError(t, err)
	c := NewCounter(w)
	for _, e := range testEntries() {
		require.NoError(t, c.Write(e))
	}
	require.NoError(t, c.Close())

	assert.Equal(t, int64(2), c.Counts[record.KindArea])
	assert.Equal(t, int64(1), c.Counts[record.KindNode])
	assert.Equal(t, int64(3+300+0+3), c.Bytes)
}

func TestParse(t *testing.T) {
	f, err := ParseFormat("Parquet")
	require.NoError(t, err)
	assert.Equal(t, FormatParquet, f)
	_, err = ParseFormat("csv")
	assert.Error(t, err)

	c, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, c)
	c, err = ParseCompression("zstd")
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, c)
	_, err = ParseCompression("lz4")
	assert.Error(t, err)
}

func TestRowSource(t *testing.T) {
	rows := make(chan []any, 2)
	rows <- []any{int64(1), "W", int16(2), []byte{1}}
	close(rows)

	src := &rowSource{rows: rows}
	require.True(t, src.Next())
	vals, err := src.Values()
	require.NoError(t, err)
	assert.Equal(t, int64(1), vals[0])
	assert.False(t, src.Next())
	assert.NoError(t, src.Err())
}

func TestReadFile(t *testing.T) {
	enc := record.NewEncoder(point.Float32)
	entries := []Entry{
		{OsmID: 11, OsmType: "N", Kind: record.KindNode, Data: enc.Node(11, 1, []byte{0}, orb.Point{1, 2})},
		{OsmID: 12, OsmType: "W", Kind: record.KindLine, Data: enc.Line(12, 2, []byte{0}, []orb.Point{{0, 0}, {1, 1}})},
		{OsmID: 13, OsmType: "R", Kind: record.KindArea, Data: enc.Area(13, 3, []byte{0}, orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 0}})},
	}
	dir := t.TempDir()

	framesPath := filepath.Join(dir, "records.grb.zst")
	fw, err := CreateFrameFile(framesPath, CompressionNone)
	require.NoError(t, err)
	pw, err := NewParquetWriter(filepath.Join(dir, "records.parquet"), 0)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, fw.Write(e))
		require.NoError(t, pw.Write(e))
	}
	require.NoError(t, fw.Close())
	require.NoError(t, pw.Close())

	var frames []Entry
	require.NoError(t, ReadFile(context.Background(), framesPath, CompressionNone, func(e Entry) error {
		frames = append(frames, e)
		return nil
	}))
	require.Len(t, frames, 3)
	assert.Equal(t, []string{"N", "W", "W"}, []string{frames[0].OsmType, frames[1].OsmType, frames[2].OsmType})
	for i, e := range entries {
		assert.Equal(t, e.OsmID, frames[i].OsmID)
		assert.Equal(t, e.Kind, frames[i].Kind)
		assert.Equal(t, e.Data, frames[i].Data)
	}

	var rows []Entry
	require.NoError(t, ReadFile(context.Background(), filepath.Join(dir, "records.parquet"), CompressionNone, func(e Entry) error {
		rows = append(rows, e)
		return nil
	}))
	require.Len(t, rows, 3)
	assert.Equal(t, "R", rows[2].OsmType)

	stop := io.ErrShortBuffer
	err = ReadFile(context.Background(), framesPath, CompressionNone, func(Entry) error { return stop })
	assert.ErrorIs(t, err, stop)
}
