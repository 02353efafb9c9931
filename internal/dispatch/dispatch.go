// Package dispatch turns a node or way into a wire record.
//
// The dispatcher resolves a way's node refs to positions, classifies its
// tags and picks the record kind: areas for closed area-tagged chains,
// lines for anything else with at least two positions, nothing otherwise.
package dispatch

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/georender-go/internal/areatag"
	"github.com/wegman-software/georender-go/internal/label"
	"github.com/wegman-software/georender-go/internal/nodeindex"
	"github.com/wegman-software/georender-go/internal/record"
)

// AreaFunc decides whether a way is a filled area
type AreaFunc func(tags osm.Tags, refs []int64) bool

// Dispatcher holds the collaborators used to encode one entity at a time
// A Dispatcher has no mutable state of its own and may be shared by
// goroutines as long as its Classifier is safe for concurrent use.
type Dispatcher struct {
	Encoder    *record.Encoder
	Classifier label.Classifier
	IsArea     AreaFunc
	Log        *zap.Logger
}

// New creates a dispatcher with the default area rules
func New(enc *record.Encoder, classifier label.Classifier, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		Encoder:    enc,
		Classifier: classifier,
		IsArea:     areatag.IsArea,
		Log:        log,
	}
}

// Way encodes a way
// Refs with no known position are skipped with a warning. The returned
// slice is empty (and the kind KindNone) when there is nothing to draw.
func (d *Dispatcher) Way(id uint64, tags osm.Tags, refs []int64, lookup nodeindex.Lookup) ([]byte, record.Kind) {
	positions := d.Resolve(id, refs, lookup)

	class, lbl := d.Classifier.Classify(tags)
	if d.IsArea(tags, refs) {
		return d.Encoder.Area(id, class, lbl, orb.Ring(positions)), record.KindArea
	}
	if len(positions) >= 2 {
		return d.Encoder.Line(id, class, lbl, positions), record.KindLine
	}
	return []byte{}, record.KindNone
}

// Node encodes a point feature
func (d *Dispatcher) Node(id uint64, tags osm.Tags, p orb.Point) []byte {
	class, lbl := d.Classifier.Classify(tags)
	return d.Encoder.Node(id, class, lbl, p)
}

// Area encodes an assembled polygon, outer ring first
func (d *Dispatcher) Area(id uint64, tags osm.Tags, poly orb.Polygon) []byte {
	class, lbl := d.Classifier.Classify(tags)
	return d.Encoder.AreaWithHoles(id, class, lbl, poly)
}

// MultiArea encodes the polygons assembled from a relation as one record
func (d *Dispatcher) MultiArea(id uint64, tags osm.Tags, mp orb.MultiPolygon) []byte {
	class, lbl := d.Classifier.Classify(tags)
	return d.Encoder.MultiArea(id, class, lbl, mp)
}

// Resolve looks up every ref, dropping the ones the index does not know
func (d *Dispatcher) Resolve(wayID uint64, refs []int64, lookup nodeindex.Lookup) []orb.Point {
	positions := make([]orb.Point, 0, len(refs))
	for _, ref := range refs {
		p, ok := lookup.Get(ref)
		if !ok {
			d.Log.Warn("Missing node position",
				zap.Uint64("way_id", wayID),
				zap.Int64("node_id", ref))
			continue
		}
		positions = append(positions, p)
	}
	return positions
}
