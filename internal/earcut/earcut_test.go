package earcut

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

func TestTriangulateSquare(t *testing.T) {
	tests := []struct {
		name string
		ring orb.Ring
		want []int
	}{
		{
			name: "open square",
			ring: orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
			want: []int{2, 3, 0, 0, 1, 2},
		},
		{
			name: "closed square",
			ring: orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}},
			want: []int{2, 3, 0, 0, 1, 2},
		},
		{
			name: "closed triangle",
			ring: orb.Ring{
				{31.184799400000003, 29.897739500000004},
				{31.184888100000002, 29.898801400000004},
				{31.184858400000003, 29.8983899},
				{31.184799400000003, 29.897739500000004},
			},
			want: []int{1, 2, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Triangulate(tt.ring, nil)
			if !equalInts(got, tt.want) {
				t.Errorf("Triangulate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTriangulateKeepsWinding(t *testing.T) {
	ccw := orb.Ring{{0, 0}, {4, 0}, {4, 3}, {2, 5}, {0, 3}, {0, 0}}
	cw := orb.Ring{{0, 0}, {0, 3}, {2, 5}, {4, 3}, {4, 0}, {0, 0}}

	for name, ring := range map[string]orb.Ring{"ccw": ccw, "cw": cw} {
		t.Run(name, func(t *testing.T) {
			got := Triangulate(ring, nil)
			if len(got) != 3*3 {
				t.Fatalf("expected 3 triangles, got %v", got)
			}
			want := ringOrientation(ring)
			for k := 0; k < len(got); k += 3 {
				for _, i := range got[k : k+3] {
					if i == len(ring)-1 {
						t.Errorf("triangle %v references the closing vertex", got[k:k+3])
					}
				}
				a, b, c := ring[got[k]], ring[got[k+1]], ring[got[k+2]]
				if o := cross(a, b, c); (o > 0) != (want > 0) {
					t.Errorf("triangle %v winds against the ring", got[k:k+3])
				}
			}
			assertCoversArea(t, ring, got, 16)
		})
	}
}

func TestTriangulateDegenerate(t *testing.T) {
	tests := []struct {
		name string
		ring orb.Ring
	}{
		{"empty", nil},
		{"single point", orb.Ring{{1, 1}}},
		{"two points", orb.Ring{{0, 0}, {1, 1}}},
		{"collinear", orb.Ring{{0, 0}, {1, 0}, {2, 0}}},
		{"repeated point", orb.Ring{{3, 3}, {3, 3}, {3, 3}, {3, 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Triangulate(tt.ring, nil)
			if got == nil || len(got) != 0 {
				t.Errorf("Triangulate() = %v, want empty non-nil slice", got)
			}
		})
	}
}

func TestTriangulateConcave(t *testing.T) {
	// L-shaped hexagon, area 3
	ring := orb.Ring{{0, 0}, {2, 0}, {2, 1}, {1, 1}, {1, 2}, {0, 2}, {0, 0}}

	got := Triangulate(ring, nil)
	if len(got) != 4*3 {
		t.Fatalf("expected 4 triangles, got %d indices: %v", len(got), got)
	}
	assertCoversArea(t, ring, got, 3)
}

func TestTriangulateWithHole(t *testing.T) {
	outer := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	hole := orb.Ring{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}}

	got := Triangulate(outer, []orb.Ring{hole})
	if len(got)%3 != 0 || len(got) == 0 {
		t.Fatalf("bad index list: %v", got)
	}

	all := append(append(orb.Ring{}, outer...), hole...)
	for _, i := range got {
		if i < 0 || i >= len(all) {
			t.Fatalf("index %d out of range", i)
		}
	}
	assertCoversArea(t, all, got, 100-4)

	// no triangle may sit inside the hole
	for k := 0; k < len(got); k += 3 {
		c := centroid(all[got[k]], all[got[k+1]], all[got[k+2]])
		if planar.RingContains(hole, c) {
			t.Errorf("triangle %v lies inside the hole", got[k:k+3])
		}
	}
}

func assertCoversArea(t *testing.T, verts orb.Ring, indices []int, want float64) {
	t.Helper()
	sum := 0.0
	for k := 0; k < len(indices); k += 3 {
		a, b, c := verts[indices[k]], verts[indices[k+1]], verts[indices[k+2]]
		sum += math.Abs((b[0]-a[0])*(c[1]-a[1])-(c[0]-a[0])*(b[1]-a[1])) / 2
	}
	if math.Abs(sum-want) > 1e-9 {
		t.Errorf("triangles cover area %v, want %v", sum, want)
	}
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (c[0]-a[0])*(b[1]-a[1])
}

func ringOrientation(r orb.Ring) float64 {
	sum := 0.0
	for i := 0; i+1 < len(r); i++ {
		sum += r[i][0]*r[i+1][1] - r[i+1][0]*r[i][1]
	}
	return sum
}

func centroid(a, b, c orb.Point) orb.Point {
	return orb.Point{(a[0] + b[0] + c[0]) / 3, (a[1] + b[1] + c[1]) / 3}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
