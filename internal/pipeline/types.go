package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/wegman-software/georender-go/internal/record"
)

// Stats summarises one encode run
type Stats struct {
	Nodes     int64 // nodes read into the node index
	Ways      int64
	Relations int64 // multipolygon and boundary relations collected

	Points        int64 // node records written
	Lines         int64
	Areas         int64 // way area records written
	RelationAreas int64

	Filtered      int64 // dropped by a style filter
	OutsideBBox   int64
	Empty         int64 // nothing drawable after resolving positions
	MissingChains int64 // relation member ways absent from the input
	Deleted       int64 // deletions in a change file

	BytesRead int64
	Duration  time.Duration
}

// Records returns the total number of records written
func (s *Stats) Records() int64 {
	return s.Points + s.Lines + s.Areas + s.RelationAreas
}

// counters is the live, concurrently updated form of Stats
type counters struct {
	nodes, ways, relations           atomic.Int64
	points, lines, areas, relAreas   atomic.Int64
	filtered, outside, empty, absent atomic.Int64
	deleted                          atomic.Int64
}

func (c *counters) written(kind record.Kind, relation bool) {
	switch {
	case relation:
		c.relAreas.Add(1)
	case kind == record.KindNode:
		c.points.Add(1)
	case kind == record.KindLine:
		c.lines.Add(1)
	case kind == record.KindArea:
		c.areas.Add(1)
	}
}

func (c *counters) snapshot() Stats {
	return Stats{
		Nodes:         c.nodes.Load(),
		Ways:          c.ways.Load(),
		Relations:     c.relations.Load(),
		Points:        c.points.Load(),
		Lines:         c.lines.Load(),
		Areas:         c.areas.Load(),
		RelationAreas: c.relAreas.Load(),
		Filtered:      c.filtered.Load(),
		OutsideBBox:   c.outside.Load(),
		Empty:         c.empty.Load(),
		MissingChains: c.absent.Load(),
		Deleted:       c.deleted.Load(),
	}
}
