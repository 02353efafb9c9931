// Package record builds and parses georender wire records.
//
// A record is self-contained but unframed:
//
//	kind(1) class(varint) id(varint) geometry... label(rest)
//
// The label has no length prefix and runs to the end of the record, so any
// file or transport carrying records must delimit them itself (see the sink
// package for the length-prefixed frame format).
package record

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/wegman-software/georender-go/internal/earcut"
	"github.com/wegman-software/georender-go/internal/label"
	"github.com/wegman-software/georender-go/internal/point"
	"github.com/wegman-software/georender-go/internal/varint"
)

// Kind is the leading tag byte of a record
type Kind byte

// Record kind tags. Area = 3 is fixed by existing readers; Node and Line
// follow the same ordering and are kept here so they can be corrected in
// one place.
const (
	KindNone Kind = 0
	KindNode Kind = 1
	KindLine Kind = 2
	KindArea Kind = 3
)

var kindNames = map[Kind]string{
	KindNone: "none",
	KindNode: "node",
	KindLine: "line",
	KindArea: "area",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", byte(k))
}

var (
	// ErrTruncated is returned when a record ends inside a field
	ErrTruncated = errors.New("record: truncated")
	// ErrUnknownKind is returned for an unrecognised leading tag byte
	ErrUnknownKind = errors.New("record: unknown kind")
)

// TriangulateFunc turns a ring plus holes into flat vertex index triples
type TriangulateFunc func(ring orb.Ring, holes []orb.Ring) []int

// Encoder builds records. The zero value writes float32 points and
// triangulates with earcut.
type Encoder struct {
	Points      point.Format
	Triangulate TriangulateFunc
}

// NewEncoder creates an encoder for the given point format
func NewEncoder(points point.Format) *Encoder {
	return &Encoder{Points: points, Triangulate: earcut.Triangulate}
}

func (e *Encoder) triangulate(ring orb.Ring, holes []orb.Ring) []int {
	if e.Triangulate == nil {
		return earcut.Triangulate(ring, holes)
	}
	return e.Triangulate(ring, holes)
}

// Node encodes a point feature
func (e *Encoder) Node(id, class uint64, lbl []byte, p orb.Point) []byte {
	size := headerSize(class, id) + 2*point.Size + len(lbl)
	buf := make([]byte, size)

	off := writeHeader(buf, KindNode, class, id)
	off += e.Points.EncodeAt(p[0], buf, off)
	off += e.Points.EncodeAt(p[1], buf, off)
	off += label.EncodeAt(lbl, buf, off)

	checkSize(KindNode, off, size)
	return buf
}

// Line encodes an open polyline, positions kept in input order
func (e *Encoder) Line(id, class uint64, lbl []byte, positions []orb.Point) []byte {
	size := headerSize(class, id) + positionsSize(len(positions)) + len(lbl)
	buf := make([]byte, size)

	off := writeHeader(buf, KindLine, class, id)
	off += e.writePositions(buf, off, positions)
	off += label.EncodeAt(lbl, buf, off)

	checkSize(KindLine, off, size)
	return buf
}

// Area encodes a filled ring
// Only the single ring is triangulated; no holes are passed.
func (e *Encoder) Area(id, class uint64, lbl []byte, ring orb.Ring) []byte {
	cells := e.triangulate(ring, nil)
	return e.area(id, class, lbl, []orb.Point(ring), cells)
}

// AreaWithHoles encodes a polygon whose first ring is the outer boundary
// Positions are the outer ring followed by each hole; triangle indices
// address that concatenated list, so the layout is identical to Area.
func (e *Encoder) AreaWithHoles(id, class uint64, lbl []byte, poly orb.Polygon) []byte {
	if len(poly) == 0 {
		return e.area(id, class, lbl, nil, []int{})
	}
	return e.MultiArea(id, class, lbl, orb.MultiPolygon{poly})
}

// MultiArea encodes several polygons as one area record
// Each polygon is triangulated on its own and its indices are shifted by
// the number of positions written before it.
func (e *Encoder) MultiArea(id, class uint64, lbl []byte, mp orb.MultiPolygon) []byte {
	n := 0
	for _, poly := range mp {
		for _, r := range poly {
			n += len(r)
		}
	}
	positions := make([]orb.Point, 0, n)
	cells := []int{}
	for _, poly := range mp {
		if len(poly) == 0 {
			continue
		}
		base := len(positions)
		for _, r := range poly {
			positions = append(positions, r...)
		}
		for _, c := range e.triangulate(poly[0], poly[1:]) {
			cells = append(cells, base+c)
		}
	}
	return e.area(id, class, lbl, positions, cells)
}

func (e *Encoder) area(id, class uint64, lbl []byte, positions []orb.Point, cells []int) []byte {
	cellsSize := varint.Length(uint64(len(cells)))
	for _, c := range cells {
		cellsSize += varint.Length(uint64(c))
	}
	size := headerSize(class, id) + positionsSize(len(positions)) + cellsSize + len(lbl)
	buf := make([]byte, size)

	off := writeHeader(buf, KindArea, class, id)
	off += e.writePositions(buf, off, positions)
	off += varint.EncodeAt(uint64(len(cells)), buf, off)
	for _, c := range cells {
		off += varint.EncodeAt(uint64(c), buf, off)
	}
	off += label.EncodeAt(lbl, buf, off)

	checkSize(KindArea, off, size)
	return buf
}

func (e *Encoder) writePositions(buf []byte, off int, positions []orb.Point) int {
	start := off
	off += varint.EncodeAt(uint64(len(positions)), buf, off)
	for _, p := range positions {
		off += e.Points.EncodeAt(p[0], buf, off)
		off += e.Points.EncodeAt(p[1], buf, off)
	}
	return off - start
}

func headerSize(class, id uint64) int {
	return 1 + varint.Length(class) + varint.Length(id)
}

func positionsSize(n int) int {
	return varint.Length(uint64(n)) + n*2*point.Size
}

func writeHeader(buf []byte, kind Kind, class, id uint64) int {
	buf[0] = byte(kind)
	off := 1
	off += varint.EncodeAt(class, buf, off)
	off += varint.EncodeAt(id, buf, off)
	return off
}

// checkSize enforces that every byte of the pre-sized buffer was written
func checkSize(kind Kind, written, size int) {
	if written != size {
		panic(fmt.Sprintf("record: %s wrote %d bytes into a %d byte buffer", kind, written, size))
	}
}
