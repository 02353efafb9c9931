// Package nodeindex resolves node ids to positions.
//
// An index is filled once (pass 1 of the pipeline) and then only read, so
// implementations need no locking for concurrent Get calls after the last Put.
package nodeindex

import (
	"github.com/paulmach/orb"
)

// Lookup resolves a node id to its position
type Lookup interface {
	Get(id int64) (orb.Point, bool)
}

// Index is a Lookup that can also be filled
type Index interface {
	Lookup
	Put(id int64, p orb.Point)
	Close() error
}

// MapIndex keeps positions in memory; suited to extracts and tests
type MapIndex struct {
	nodes map[int64]orb.Point
}

// NewMapIndex creates an empty in-memory index
func NewMapIndex() *MapIndex {
	return &MapIndex{nodes: make(map[int64]orb.Point)}
}

// Put stores a node's position
func (m *MapIndex) Put(id int64, p orb.Point) {
	m.nodes[id] = p
}

// Get retrieves a node's position
func (m *MapIndex) Get(id int64) (orb.Point, bool) {
	p, ok := m.nodes[id]
	return p, ok
}

// Len returns the number of stored nodes
func (m *MapIndex) Len() int {
	return len(m.nodes)
}

// Close releases the map
func (m *MapIndex) Close() error {
	m.nodes = nil
	return nil
}
