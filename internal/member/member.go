// Package member orders the boundary ways of a multipolygon relation.
//
// Sort is a greedy stitcher: starting from the first member it repeatedly
// jumps to an unvisited member sharing an endpoint, recording on each
// member whether its node chain has to be walked backwards. It never
// inserts ring separators; Flatten finds ring boundaries afterwards by
// checking endpoint continuity, member role and ring closure.
package member

import (
	"fmt"

	"github.com/paulmach/osm"
)

// Role of a relation member
type Role int

const (
	RoleUnused Role = iota
	RoleOuter
	RoleInner
)

func (r Role) String() string {
	switch r {
	case RoleOuter:
		return "outer"
	case RoleInner:
		return "inner"
	}
	return "unused"
}

// Type of the referenced element
type Type int

const (
	TypeNode Type = iota
	TypeWay
	TypeRelation
)

func (t Type) String() string {
	switch t {
	case TypeWay:
		return "way"
	case TypeRelation:
		return "relation"
	}
	return "node"
}

// Member is one entry of a relation's member list
type Member struct {
	ID      uint64
	Role    Role
	Type    Type
	Reverse bool // walk the way's node chain back to front
}

// New creates a member with Reverse unset
func New(id uint64, role Role, typ Type) Member {
	return Member{ID: id, Role: role, Type: typ}
}

func (m Member) String() string {
	dir := "fwd"
	if m.Reverse {
		dir = "rev"
	}
	return fmt.Sprintf("%s/%d(%s,%s)", m.Type, m.ID, m.Role, dir)
}

// Chains maps way ids to their ordered node ids
// Only the first and last node of each chain matter for stitching.
type Chains map[uint64][]int64

func (c Chains) endpoints(id uint64) (first, last int64, ok bool) {
	refs := c[id]
	if len(refs) == 0 {
		return 0, 0, false
	}
	return refs[0], refs[len(refs)-1], true
}

// FromOSM converts relation members
// An empty role counts as outer, as in older multipolygons; roles other
// than inner and outer become unused.
func FromOSM(members osm.Members) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		var typ Type
		switch m.Type {
		case osm.TypeWay:
			typ = TypeWay
		case osm.TypeRelation:
			typ = TypeRelation
		default:
			typ = TypeNode
		}
		var role Role
		switch m.Role {
		case "outer", "":
			role = RoleOuter
		case "inner":
			role = RoleInner
		}
		out = append(out, New(uint64(m.Ref), role, typ))
	}
	return out
}

// Drain keeps inner and outer way members whose chain is known and non-empty
// Relative order is preserved; the input slice is not modified.
func Drain(members []Member, chains Chains) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if m.Type != TypeWay || (m.Role != RoleInner && m.Role != RoleOuter) {
			continue
		}
		if len(chains[m.ID]) == 0 {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Sort orders drained members into ring traversal order
// Each returned member carries the Reverse flag needed to make its chain
// continue from the previous one. Disconnected input still terminates;
// the output then holds several fragments back to back.
func Sort(members []Member, chains Chains) []Member {
	if len(members) == 0 {
		return []Member{}
	}
	ms := outerFirst(members, chains)

	firstIDs := make(map[int64][]int, len(ms))
	lastIDs := make(map[int64][]int, len(ms))
	for i, m := range ms {
		first, last, ok := chains.endpoints(m.ID)
		if !ok {
			continue
		}
		firstIDs[first] = append(firstIDs[first], i)
		lastIDs[last] = append(lastIDs[last], i)
	}

	visited := make(map[int]bool, len(ms))
	sorted := make([]Member, 0, len(ms))
	reverse := false
	i, j := 0, 0

	for i < len(ms) {
		if visited[i] {
			i = j
			j++
			continue
		}
		visited[i] = true
		m := ms[i]
		m.Reverse = reverse
		sorted = append(sorted, m)

		first, last, ok := chains.endpoints(m.ID)
		if !ok {
			i = j
			j++
			continue
		}

		fifs := firstIDs[first] // starts where this one starts
		lifs := lastIDs[first]  // ends where this one starts
		fils := firstIDs[last]  // starts where this one ends
		lils := lastIDs[last]   // ends where this one ends

		maxK := max(len(fifs), len(lifs), len(fils), len(lils))
		found := false
		cur := &sorted[len(sorted)-1]
		for k := 0; k < maxK && !found; k++ {
			switch {
			case k < len(fils) && !visited[fils[k]]:
				i = fils[k]
				cur.Reverse = false
				reverse = false
				found = true
			case k < len(lifs) && !visited[lifs[k]]:
				i = lifs[k]
				cur.Reverse = true
				reverse = true
				found = true
			case k < len(lils) && !visited[lils[k]]:
				i = lils[k]
				cur.Reverse = false
				reverse = true
				found = true
			case k < len(fifs) && !visited[fifs[k]]:
				i = fifs[k]
				reverse = false
				found = true
			}
		}
		if !found {
			i = j
			j++
		}
	}
	return sorted
}

// outerFirst moves a leading outer run ahead of leading inner members
// It is a single shallow correction: the inner run [0,iend) is swapped
// with the following outer run [iend,oend), where the outer run stops at
// the first non-outer member or the first later outer touching the run's
// opening chain.
func outerFirst(members []Member, chains Chains) []Member {
	if members[0].Role != RoleInner {
		return members
	}

	iend := 0
	for k, m := range members {
		if m.Role != RoleInner {
			iend = k
			break
		}
	}

	ref0, ref1, hasRefs := chains.endpoints(members[iend].ID)
	oend := len(members)
	for k := iend; k < len(members); k++ {
		m := members[k]
		if m.Role != RoleOuter {
			oend = k
			break
		}
		if k > iend && hasRefs {
			if first, last, ok := chains.endpoints(m.ID); ok &&
				(first == ref0 || first == ref1 || last == ref0 || last == ref1) {
				oend = k
				break
			}
		}
	}

	out := make([]Member, 0, len(members))
	out = append(out, members[iend:oend]...)
	out = append(out, members[:iend]...)
	out = append(out, members[oend:]...)
	return out
}

// Ring is a run of node ids assembled from consecutive members
// Role is taken from the ring's first member.
type Ring struct {
	Role Role
	Refs []int64
}

// Closed reports whether the ring starts and ends on the same node
func (r Ring) Closed() bool {
	return Closed(r.Refs)
}

// Flatten walks sorted members and returns their node ids as rings
// Each chain is reversed when its member says so. A chain continues the
// current ring only when it has the same role, the ring is still open and
// its leading node is the ring's trailing node; the shared node at a joint
// is emitted once. Anything else starts a new ring. Rings are returned as
// assembled, closed or not.
func Flatten(sorted []Member, chains Chains) []Ring {
	var rings []Ring
	var cur Ring
	for _, m := range sorted {
		refs := chains[m.ID]
		if len(refs) == 0 {
			continue
		}
		if m.Reverse {
			rev := make([]int64, len(refs))
			for k, id := range refs {
				rev[len(refs)-1-k] = id
			}
			refs = rev
		}
		if len(cur.Refs) > 0 && m.Role == cur.Role && !Closed(cur.Refs) && cur.Refs[len(cur.Refs)-1] == refs[0] {
			cur.Refs = append(cur.Refs, refs[1:]...)
			continue
		}
		if len(cur.Refs) > 0 {
			rings = append(rings, cur)
		}
		cur = Ring{Role: m.Role, Refs: append(make([]int64, 0, len(refs)), refs...)}
	}
	if len(cur.Refs) > 0 {
		rings = append(rings, cur)
	}
	return rings
}

// Closed reports whether a ring of node ids starts and ends on the same node
func Closed(ring []int64) bool {
	return len(ring) >= 4 && ring[0] == ring[len(ring)-1]
}
