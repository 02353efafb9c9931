package record

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/wegman-software/georender-go/internal/point"
	"github.com/wegman-software/georender-go/internal/varint"
)

// Record is the decoded form of one wire record
type Record struct {
	Kind      Kind
	Class     uint64
	ID        uint64
	Positions []orb.Point
	Cells     []int // triangle vertex indices, areas only
	Label     []byte
}

// Decoder parses records written with a given point format
type Decoder struct {
	Points point.Format
}

// Decode parses a complete record; buf must hold exactly one record
func (d Decoder) Decode(buf []byte) (*Record, error) {
	r := &Record{}
	off, err := r.readHeader(buf)
	if err != nil {
		return nil, err
	}

	switch r.Kind {
	case KindNode:
		if len(buf)-off < 2*point.Size {
			return nil, fmt.Errorf("%w: node position", ErrTruncated)
		}
		r.Positions = []orb.Point{d.readPoint(buf[off:])}
		off += 2 * point.Size
	case KindLine, KindArea:
		if r.Positions, off, err = d.readPositions(buf, off); err != nil {
			return nil, err
		}
	}

	if r.Kind == KindArea {
		var n uint64
		if n, off, err = readUvarint(buf, off, "cell count"); err != nil {
			return nil, err
		}
		if n > uint64(len(buf)-off) {
			return nil, fmt.Errorf("%w: %d cells in %d bytes", ErrTruncated, n, len(buf)-off)
		}
		r.Cells = make([]int, n)
		for i := range r.Cells {
			var c uint64
			if c, off, err = readUvarint(buf, off, "cell"); err != nil {
				return nil, err
			}
			r.Cells[i] = int(c)
		}
	}

	r.Label = buf[off:]
	return r, nil
}

// Decode parses a float32-point record
func Decode(buf []byte) (*Record, error) {
	return Decoder{Points: point.Float32}.Decode(buf)
}

func (d Decoder) readPositions(buf []byte, off int) ([]orb.Point, int, error) {
	n, off, err := readUvarint(buf, off, "position count")
	if err != nil {
		return nil, off, err
	}
	if n > uint64(len(buf)-off)/(2*point.Size) {
		return nil, off, fmt.Errorf("%w: %d positions in %d bytes", ErrTruncated, n, len(buf)-off)
	}
	positions := make([]orb.Point, n)
	for i := range positions {
		positions[i] = d.readPoint(buf[off:])
		off += 2 * point.Size
	}
	return positions, off, nil
}

// Header parses the kind, class and id that start every record
func Header(buf []byte) (kind Kind, class, id uint64, err error) {
	var r Record
	if _, err := r.readHeader(buf); err != nil {
		return 0, 0, 0, err
	}
	return r.Kind, r.Class, r.ID, nil
}

func (r *Record) readHeader(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, ErrTruncated
	}
	r.Kind = Kind(buf[0])
	switch r.Kind {
	case KindNode, KindLine, KindArea:
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownKind, buf[0])
	}

	off := 1
	var err error
	if r.Class, off, err = readUvarint(buf, off, "class"); err != nil {
		return 0, err
	}
	if r.ID, off, err = readUvarint(buf, off, "id"); err != nil {
		return 0, err
	}
	return off, nil
}

func (d Decoder) readPoint(buf []byte) orb.Point {
	return orb.Point{d.Points.Decode(buf), d.Points.Decode(buf[point.Size:])}
}

func readUvarint(buf []byte, off int, field string) (uint64, int, error) {
	v, n := varint.Decode(buf[off:])
	if n <= 0 {
		return 0, off, fmt.Errorf("%w: %s at offset %d", ErrTruncated, field, off)
	}
	return v, off + n, nil
}

// Geometry returns the record's positions as an orb geometry
// Nodes become points and lines line strings. Areas are split back into
// their rings; a ring starting inside the polygon before it is a hole of
// that polygon. One polygon is returned as orb.Polygon, several as
// orb.MultiPolygon.
func (r *Record) Geometry() orb.Geometry {
	switch r.Kind {
	case KindNode:
		if len(r.Positions) == 0 {
			return nil
		}
		return r.Positions[0]
	case KindLine:
		return orb.LineString(r.Positions)
	case KindArea:
		var mp orb.MultiPolygon
		for _, ring := range r.Rings() {
			last := len(mp) - 1
			if last >= 0 && planar.RingContains(mp[last][0], ring[0]) {
				mp[last] = append(mp[last], ring)
				continue
			}
			mp = append(mp, orb.Polygon{ring})
		}
		if len(mp) == 1 {
			return mp[0]
		}
		return mp
	}
	return nil
}

// Rings splits area positions into the rings they were written from
// A ring ends at the first position repeating its start after at least
// three others; a trailing run that never closes is returned as is.
func (r *Record) Rings() []orb.Ring {
	p := r.Positions
	var rings []orb.Ring
	start := 0
	for i := 1; i < len(p); i++ {
		if i-start >= 3 && p[i] == p[start] {
			rings = append(rings, orb.Ring(p[start:i+1]))
			start = i + 1
			i = start
		}
	}
	if start < len(p) {
		rings = append(rings, orb.Ring(p[start:]))
	}
	return rings
}

// Triangles returns the area's triangles as closed three-point rings
func (r *Record) Triangles() []orb.Ring {
	tris := make([]orb.Ring, 0, len(r.Cells)/3)
	for i := 0; i+2 < len(r.Cells); i += 3 {
		a, b, c := r.Cells[i], r.Cells[i+1], r.Cells[i+2]
		if !r.hasPosition(a) || !r.hasPosition(b) || !r.hasPosition(c) {
			continue
		}
		p := r.Positions
		tris = append(tris, orb.Ring{p[a], p[b], p[c], p[a]})
	}
	return tris
}

func (r *Record) hasPosition(i int) bool {
	return i >= 0 && i < len(r.Positions)
}
