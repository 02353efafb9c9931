package nodeindex

import "github.com/paulmach/orb"

// Overlay layers node positions from a change file over a base lookup.
// Nodes put into the overlay shadow the base; deleted nodes resolve to
// nothing even when the base still has them.
type Overlay struct {
	base    Lookup
	nodes   map[int64]orb.Point
	deleted map[int64]struct{}
}

// NewOverlay creates an overlay over base, which may be nil
func NewOverlay(base Lookup) *Overlay {
	return &Overlay{
		base:    base,
		nodes:   make(map[int64]orb.Point),
		deleted: make(map[int64]struct{}),
	}
}

// Put stores a changed node's position
func (o *Overlay) Put(id int64, p orb.Point) {
	delete(o.deleted, id)
	o.nodes[id] = p
}

// Delete marks a node as removed
func (o *Overlay) Delete(id int64) {
	delete(o.nodes, id)
	o.deleted[id] = struct{}{}
}

// Get retrieves a node's position from the overlay, then the base
func (o *Overlay) Get(id int64) (orb.Point, bool) {
	if p, ok := o.nodes[id]; ok {
		return p, true
	}
	if _, ok := o.deleted[id]; ok || o.base == nil {
		return orb.Point{}, false
	}
	return o.base.Get(id)
}

// Len returns the number of nodes held by the overlay itself
func (o *Overlay) Len() int {
	return len(o.nodes)
}

// Close releases the overlay. The base is left open.
func (o *Overlay) Close() error {
	o.nodes = nil
	o.deleted = nil
	return nil
}
