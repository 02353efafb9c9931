package nodeindex

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/paulmach/orb"

	"github.com/wegman-software/georender-go/internal/point"
)

const (
	// Each node entry: lon (int32) + lat (int32) = 8 bytes, fixed-point 1e7
	entrySize = 8
	// DefaultMaxNodeID covers current planet node ids with headroom
	DefaultMaxNodeID = 16_000_000_000
)

// MmapIndex is a memory-mapped node coordinate index
// Node coordinates are stored at offset = nodeID * 8, giving O(1) lookup.
// A stored (0, 0) is indistinguishable from an unset slot and reads as
// missing.
//
// Positions are kept as 1e7 fixed-point integers, so Get returns them
// rounded to 1e-7 degrees. Float32 records built from this index can
// differ in the low bits from records built with the in-memory MapIndex,
// which keeps the parsed float64 values. Fixed records are identical.
type MmapIndex struct {
	file   *os.File
	data   mmap.MMap
	size   int64
	maxID  int64
	writer bool
}

// NewMmapIndex creates a flat nodes file for ids below maxID
// The file is sparse, so disk usage only grows with the nodes written.
func NewMmapIndex(path string, maxID int64) (*MmapIndex, error) {
	if maxID <= 0 {
		maxID = DefaultMaxNodeID
	}
	size := maxID * entrySize

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create flat nodes file: %w", err)
	}

	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to truncate flat nodes file: %w", err)
	}

	data, err := mmap.MapRegion(f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap flat nodes file: %w", err)
	}

	return &MmapIndex{
		file:   f,
		data:   data,
		size:   size,
		maxID:  maxID,
		writer: true,
	}, nil
}

// OpenMmapIndex maps an existing flat nodes file read-only
func OpenMmapIndex(path string) (*MmapIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open flat nodes file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat flat nodes file: %w", err)
	}
	size := info.Size()
	if size == 0 || size%entrySize != 0 {
		f.Close()
		return nil, fmt.Errorf("flat nodes file %s has invalid size %d", path, size)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap flat nodes file: %w", err)
	}

	return &MmapIndex{
		file:  f,
		data:  data,
		size:  size,
		maxID: size / entrySize,
	}, nil
}

// Put stores a node's position; ids outside the file are ignored
func (m *MmapIndex) Put(id int64, p orb.Point) {
	if !m.writer || id < 0 || id >= m.maxID {
		return
	}
	off := id * entrySize
	binary.LittleEndian.PutUint32(m.data[off:], uint32(point.ScaleCoord(p[0])))
	binary.LittleEndian.PutUint32(m.data[off+4:], uint32(point.ScaleCoord(p[1])))
}

// Get retrieves a node's position
func (m *MmapIndex) Get(id int64) (orb.Point, bool) {
	if id < 0 || id >= m.maxID {
		return orb.Point{}, false
	}
	off := id * entrySize
	if off+entrySize > m.size {
		return orb.Point{}, false
	}

	lon := int32(binary.LittleEndian.Uint32(m.data[off:]))
	lat := int32(binary.LittleEndian.Uint32(m.data[off+4:]))
	if lon == 0 && lat == 0 {
		return orb.Point{}, false
	}
	return orb.Point{point.UnscaleCoord(lon), point.UnscaleCoord(lat)}, true
}

// Sync flushes written pages to disk
func (m *MmapIndex) Sync() error {
	if !m.writer {
		return nil
	}
	return m.data.Flush()
}

// Close unmaps and closes the file
func (m *MmapIndex) Close() error {
	if err := m.data.Unmap(); err != nil {
		m.file.Close()
		return err
	}
	return m.file.Close()
}
