package osc

import "github.com/paulmach/osm"

// Action is the section of a change file an element appears in
type Action string

const (
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// Change is one element of a change file. Exactly one of Node, Way and
// Relation is set.
type Change struct {
	Action   Action
	Node     *osm.Node
	Way      *osm.Way
	Relation *osm.Relation
}

// Type returns the OSM type of the changed element
func (c Change) Type() osm.Type {
	switch {
	case c.Node != nil:
		return osm.TypeNode
	case c.Way != nil:
		return osm.TypeWay
	case c.Relation != nil:
		return osm.TypeRelation
	}
	return ""
}

// ObjectID returns the id of the changed element
func (c Change) ObjectID() osm.ObjectID {
	switch {
	case c.Node != nil:
		return c.Node.ObjectID()
	case c.Way != nil:
		return c.Way.ObjectID()
	case c.Relation != nil:
		return c.Relation.ObjectID()
	}
	return 0
}

// Deleted reports whether the element was removed
func (c Change) Deleted() bool {
	return c.Action == ActionDelete
}

// Stats counts parsed changes by action and type
type Stats struct {
	NodesCreated      int64
	NodesModified     int64
	NodesDeleted      int64
	WaysCreated       int64
	WaysModified      int64
	WaysDeleted       int64
	RelationsCreated  int64
	RelationsModified int64
	RelationsDeleted  int64
}

// Total returns total number of changes
func (s *Stats) Total() int64 {
	return s.NodesCreated + s.NodesModified + s.NodesDeleted +
		s.WaysCreated + s.WaysModified + s.WaysDeleted +
		s.RelationsCreated + s.RelationsModified + s.RelationsDeleted
}

func (s *Stats) add(c Change) {
	var counts [3]*int64
	switch c.Type() {
	case osm.TypeNode:
		counts = [3]*int64{&s.NodesCreated, &s.NodesModified, &s.NodesDeleted}
	case osm.TypeWay:
		counts = [3]*int64{&s.WaysCreated, &s.WaysModified, &s.WaysDeleted}
	case osm.TypeRelation:
		counts = [3]*int64{&s.RelationsCreated, &s.RelationsModified, &s.RelationsDeleted}
	default:
		return
	}
	switch c.Action {
	case ActionCreate:
		*counts[0]++
	case ActionModify:
		*counts[1]++
	case ActionDelete:
		*counts[2]++
	}
}
