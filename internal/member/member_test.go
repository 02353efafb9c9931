package member

import (
	"reflect"
	"testing"

	"github.com/paulmach/osm"
)

func ids(ms []Member) []uint64 {
	out := make([]uint64, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func reverses(ms []Member) []bool {
	out := make([]bool, len(ms))
	for i, m := range ms {
		out[i] = m.Reverse
	}
	return out
}

func TestDrain(t *testing.T) {
	chains := Chains{
		1: {1, 2, 3},
		2: {4, 5, 6, 4},
		4: {7, 8},
		6: {},
		7: {9, 10},
	}
	members := []Member{
		New(1, RoleOuter, TypeWay),
		New(2, RoleInner, TypeWay),
		New(3, RoleOuter, TypeNode),
		New(4, RoleUnused, TypeWay),
		New(5, RoleOuter, TypeWay),
		New(6, RoleOuter, TypeWay),
		New(7, RoleInner, TypeRelation),
	}

	got := Drain(members, chains)
	if want := []uint64{1, 2}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("Drain() ids = %v, want %v", ids(got), want)
	}
	if len(members) != 7 {
		t.Errorf("Drain() modified its input")
	}
}

func TestSort(t *testing.T) {
	tests := []struct {
		name     string
		chains   Chains
		members  []Member
		wantIDs  []uint64
		wantRev  []bool
		wantRing [][]int64
	}{
		{
			name:     "square split at corners",
			chains:   Chains{1: {1, 2, 3}, 2: {3, 4, 1}},
			members:  []Member{New(1, RoleOuter, TypeWay), New(2, RoleOuter, TypeWay)},
			wantIDs:  []uint64{1, 2},
			wantRev:  []bool{false, false},
			wantRing: [][]int64{{1, 2, 3, 4, 1}},
		},
		{
			name:     "second chain backwards",
			chains:   Chains{1: {1, 2, 3}, 2: {1, 4, 3}},
			members:  []Member{New(1, RoleOuter, TypeWay), New(2, RoleOuter, TypeWay)},
			wantIDs:  []uint64{1, 2},
			wantRev:  []bool{false, true},
			wantRing: [][]int64{{1, 2, 3, 4, 1}},
		},
		{
			name:     "continue from the start",
			chains:   Chains{1: {1, 2, 3}, 2: {4, 5, 1}},
			members:  []Member{New(1, RoleOuter, TypeWay), New(2, RoleOuter, TypeWay)},
			wantIDs:  []uint64{1, 2},
			wantRev:  []bool{true, true},
			wantRing: [][]int64{{3, 2, 1, 5, 4}},
		},
		{
			name:   "three chains out of order",
			chains: Chains{1: {1, 2}, 2: {3, 1}, 3: {2, 3}},
			members: []Member{
				New(1, RoleOuter, TypeWay),
				New(2, RoleOuter, TypeWay),
				New(3, RoleOuter, TypeWay),
			},
			wantIDs:  []uint64{1, 3, 2},
			wantRev:  []bool{false, false, false},
			wantRing: [][]int64{{1, 2, 3, 1}},
		},
		{
			name:   "leading inner moved behind outer",
			chains: Chains{10: {7, 8, 9, 7}, 1: {1, 2, 3, 1}},
			members: []Member{
				New(10, RoleInner, TypeWay),
				New(1, RoleOuter, TypeWay),
			},
			wantIDs:  []uint64{1, 10},
			wantRev:  []bool{false, false},
			wantRing: [][]int64{{1, 2, 3, 1}, {7, 8, 9, 7}},
		},
		{
			name:   "outer run stops at closing chain",
			chains: Chains{10: {7, 8, 9, 7}, 1: {1, 2, 3}, 2: {3, 4, 1}},
			members: []Member{
				New(10, RoleInner, TypeWay),
				New(1, RoleOuter, TypeWay),
				New(2, RoleOuter, TypeWay),
			},
			wantIDs:  []uint64{1, 2, 10},
			wantRev:  []bool{false, false, false},
			wantRing: [][]int64{{1, 2, 3, 4, 1}, {7, 8, 9, 7}},
		},
		{
			name:   "disconnected",
			chains: Chains{1: {1, 2}, 2: {5, 6}, 3: {2, 3}},
			members: []Member{
				New(1, RoleOuter, TypeWay),
				New(2, RoleOuter, TypeWay),
				New(3, RoleOuter, TypeWay),
			},
			wantIDs:  []uint64{1, 3, 2},
			wantRev:  []bool{false, false, false},
			wantRing: [][]int64{{1, 2, 3}, {5, 6}},
		},
		{
			name:     "empty",
			chains:   Chains{},
			members:  nil,
			wantIDs:  []uint64{},
			wantRev:  []bool{},
			wantRing: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sort(tt.members, tt.chains)
			if !reflect.DeepEqual(ids(got), tt.wantIDs) {
				t.Errorf("Sort() ids = %v, want %v", ids(got), tt.wantIDs)
			}
			if !reflect.DeepEqual(reverses(got), tt.wantRev) {
				t.Errorf("Sort() reverse = %v, want %v", reverses(got), tt.wantRev)
			}
			var rings [][]int64
			for _, r := range Flatten(got, tt.chains) {
				rings = append(rings, r.Refs)
			}
			if !reflect.DeepEqual(rings, tt.wantRing) {
				t.Errorf("Flatten() = %v, want %v", rings, tt.wantRing)
			}
		})
	}
}

func TestSortDoesNotMutateInput(t *testing.T) {
	chains := Chains{1: {1, 2, 3}, 2: {1, 4, 3}}
	members := []Member{New(1, RoleOuter, TypeWay), New(2, RoleOuter, TypeWay)}
	Sort(members, chains)
	for _, m := range members {
		if m.Reverse {
			t.Errorf("Sort() set Reverse on input member %v", m)
		}
	}
}

func TestFromOSM(t *testing.T) {
	got := FromOSM(osm.Members{
		{Type: osm.TypeWay, Ref: 5, Role: "outer"},
		{Type: osm.TypeWay, Ref: 6, Role: "inner"},
		{Type: osm.TypeNode, Ref: 7, Role: "label"},
		{Type: osm.TypeRelation, Ref: 8, Role: ""},
	})
	want := []Member{
		New(5, RoleOuter, TypeWay),
		New(6, RoleInner, TypeWay),
		New(7, RoleUnused, TypeNode),
		New(8, RoleOuter, TypeRelation),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FromOSM() = %v, want %v", got, want)
	}
}

func TestFlattenRoles(t *testing.T) {
	chains := Chains{10: {7, 8, 9, 7}, 1: {1, 2, 3}, 2: {3, 4, 1}}
	members := []Member{
		New(10, RoleInner, TypeWay),
		New(1, RoleOuter, TypeWay),
		New(2, RoleOuter, TypeWay),
	}

	rings := Flatten(Sort(members, chains), chains)
	if len(rings) != 2 {
		t.Fatalf("Flatten() = %d rings, want 2", len(rings))
	}
	if rings[0].Role != RoleOuter || !rings[0].Closed() {
		t.Errorf("first ring = %+v, want closed outer", rings[0])
	}
	if rings[1].Role != RoleInner || !rings[1].Closed() {
		t.Errorf("second ring = %+v, want closed inner", rings[1])
	}

	// an inner ring touching the outer ring at a vertex stays separate
	chains = Chains{1: {1, 2, 3, 1}, 2: {1, 5, 6, 1}}
	members = []Member{New(1, RoleOuter, TypeWay), New(2, RoleInner, TypeWay)}

	rings = Flatten(members, chains)
	want := []Ring{
		{Role: RoleOuter, Refs: []int64{1, 2, 3, 1}},
		{Role: RoleInner, Refs: []int64{1, 5, 6, 1}},
	}
	if !reflect.DeepEqual(rings, want) {
		t.Errorf("Flatten() = %+v, want %+v", rings, want)
	}

	// an open outer chain does not absorb a following inner chain
	chains = Chains{1: {1, 2, 3}, 2: {3, 4, 5, 3}}
	members = []Member{New(1, RoleOuter, TypeWay), New(2, RoleInner, TypeWay)}

	rings = Flatten(members, chains)
	if len(rings) != 2 || rings[0].Role != RoleOuter || rings[1].Role != RoleInner {
		t.Errorf("Flatten() = %+v, want an outer and an inner ring", rings)
	}
}

func TestClosed(t *testing.T) {
	if !Closed([]int64{1, 2, 3, 1}) {
		t.Error("triangle ring should be closed")
	}
	if Closed([]int64{1, 2, 1}) {
		t.Error("two distinct nodes cannot close a ring")
	}
	if Closed([]int64{1, 2, 3, 4}) {
		t.Error("open chain reported closed")
	}
}
