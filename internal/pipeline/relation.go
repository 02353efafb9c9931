package pipeline

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/osm"

	"github.com/wegman-software/georender-go/internal/member"
)

// isAreaRelation reports whether a relation describes filled polygons
func isAreaRelation(rel *osm.Relation) bool {
	switch rel.Tags.Find("type") {
	case "multipolygon", "boundary":
		return true
	}
	return false
}

// memberWays lists the way ids a relation refers to
func memberWays(rel *osm.Relation) []int64 {
	var ids []int64
	for _, m := range rel.Members {
		if m.Type == osm.TypeWay {
			ids = append(ids, m.Ref)
		}
	}
	return ids
}

// assemble builds the polygons of an area relation from its member chains
// Open rings and rings that lose their closure when positions are resolved
// are dropped. Each inner ring goes to the first outer ring containing its
// first vertex; inners with no such outer are dropped.
func assemble(rel *osm.Relation, chains member.Chains, resolve func(refs []int64) []orb.Point) orb.MultiPolygon {
	members := member.Drain(member.FromOSM(rel.Members), chains)
	rings := member.Flatten(member.Sort(members, chains), chains)

	var polys orb.MultiPolygon
	var inners []orb.Ring
	for _, r := range rings {
		if !r.Closed() {
			continue
		}
		ring := orb.Ring(resolve(r.Refs))
		if len(ring) < 4 || !ring.Closed() {
			continue
		}
		if r.Role == member.RoleInner {
			inners = append(inners, ring)
		} else {
			polys = append(polys, orb.Polygon{ring})
		}
	}

	for _, inner := range inners {
		for i := range polys {
			if planar.RingContains(polys[i][0], inner[0]) {
				polys[i] = append(polys[i], inner)
				break
			}
		}
	}
	return polys
}
