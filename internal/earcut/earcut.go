// Package earcut triangulates polygons by ear clipping.
//
// It follows the mapbox earcut algorithm: holes are bridged into the outer
// ring, ears are clipped, and self-intersections are cured or split away
// in later passes. Output indices refer to the input vertices in order:
// the outer ring first, then every hole.
package earcut

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

type node struct {
	i          int
	x, y       float64
	prev, next *node
	steiner    bool
}

// Triangulate returns a flat list of vertex index triples.
// A closing vertex that repeats the first is never referenced, and every
// triangle keeps the winding of the outer ring as given.
// Rings with fewer than 3 distinct vertices produce an empty list.
func Triangulate(ring orb.Ring, holes []orb.Ring) []int {
	n := len(ring)
	for _, h := range holes {
		n += len(h)
	}
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	for _, p := range ring {
		xs = append(xs, p[0])
		ys = append(ys, p[1])
	}
	holeSpans := make([]span, 0, len(holes))
	for _, h := range holes {
		start := len(xs)
		for _, p := range h {
			xs = append(xs, p[0])
			ys = append(ys, p[1])
		}
		holeSpans = append(holeSpans, span{start, start + openLen(h)})
	}

	triangles := make([]int, 0)
	end := openLen(ring)
	outer := linkedList(xs, ys, 0, end, true)
	if outer == nil || outer.next == outer.prev {
		return triangles
	}
	if len(holeSpans) > 0 {
		outer = eliminateHoles(xs, ys, holeSpans, outer)
	}
	earcutLinked(outer, &triangles, 0)

	// the outer ring was linked against its input order
	if signedArea(xs, ys, 0, end) <= 0 {
		for k := 0; k+2 < len(triangles); k += 3 {
			triangles[k+1], triangles[k+2] = triangles[k+2], triangles[k+1]
		}
	}
	return triangles
}

// span is the half-open vertex range of one ring
type span struct {
	start, end int
}

// openLen is the ring length without a closing duplicate of the first vertex
func openLen(r orb.Ring) int {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return len(r) - 1
	}
	return len(r)
}

// linkedList builds a circular list in the requested winding order
func linkedList(xs, ys []float64, start, end int, clockwise bool) *node {
	if end-start < 1 {
		return nil
	}
	var last *node
	if clockwise == (signedArea(xs, ys, start, end) > 0) {
		for i := start; i < end; i++ {
			last = insertNode(i, xs[i], ys[i], last)
		}
	} else {
		for i := end - 1; i >= start; i-- {
			last = insertNode(i, xs[i], ys[i], last)
		}
	}
	if last != nil && equals(last, last.next) {
		removeNode(last)
		last = last.next
	}
	return last
}

func earcutLinked(ear *node, triangles *[]int, pass int) {
	if ear == nil {
		return
	}
	stop := ear
	for ear.prev != ear.next {
		prev, next := ear.prev, ear.next
		if isEar(ear) {
			*triangles = append(*triangles, prev.i, ear.i, next.i)
			removeNode(ear)
			// skipping the next vertex leads to less sliver triangles
			ear = next.next
			stop = next.next
			continue
		}
		ear = next
		if ear == stop {
			switch pass {
			case 0:
				earcutLinked(filterPoints(ear, nil), triangles, 1)
			case 1:
				ear = cureLocalIntersections(filterPoints(ear, nil), triangles)
				earcutLinked(ear, triangles, 2)
			case 2:
				splitEarcut(ear, triangles)
			}
			return
		}
	}
}

func isEar(ear *node) bool {
	a, b, c := ear.prev, ear, ear.next
	if area(a, b, c) >= 0 {
		return false // reflex
	}
	for p := ear.next.next; p != ear.prev; p = p.next {
		if pointInTriangle(a.x, a.y, b.x, b.y, c.x, c.y, p.x, p.y) && area(p.prev, p, p.next) >= 0 {
			return false
		}
	}
	return true
}

// filterPoints drops duplicate and collinear vertices between start and end
func filterPoints(start, end *node) *node {
	if start == nil {
		return nil
	}
	if end == nil {
		end = start
	}
	p := start
	for {
		again := false
		if !p.steiner && (equals(p, p.next) || area(p.prev, p, p.next) == 0) {
			removeNode(p)
			p = p.prev
			end = p
			if p == p.next {
				break
			}
			again = true
		} else {
			p = p.next
		}
		if !again && p == end {
			break
		}
	}
	return end
}

func cureLocalIntersections(start *node, triangles *[]int) *node {
	p := start
	for {
		a, b := p.prev, p.next.next
		if !equals(a, b) && intersects(a, p, p.next, b) && locallyInside(a, b) && locallyInside(b, a) {
			*triangles = append(*triangles, a.i, p.i, b.i)
			removeNode(p)
			removeNode(p.next)
			p = b
			start = b
		}
		p = p.next
		if p == start {
			break
		}
	}
	return filterPoints(p, nil)
}

// splitEarcut splits the polygon along a valid diagonal and triangulates both halves
func splitEarcut(start *node, triangles *[]int) {
	a := start
	for {
		for b := a.next.next; b != a.prev; b = b.next {
			if a.i != b.i && isValidDiagonal(a, b) {
				c := splitPolygon(a, b)
				a = filterPoints(a, a.next)
				c = filterPoints(c, c.next)
				earcutLinked(a, triangles, 0)
				earcutLinked(c, triangles, 0)
				return
			}
		}
		a = a.next
		if a == start {
			return
		}
	}
}

func eliminateHoles(xs, ys []float64, holes []span, outer *node) *node {
	queue := make([]*node, 0, len(holes))
	for _, h := range holes {
		list := linkedList(xs, ys, h.start, h.end, false)
		if list == nil {
			continue
		}
		if list == list.next {
			list.steiner = true
		}
		queue = append(queue, leftmost(list))
	}
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].x < queue[j].x })

	for _, hole := range queue {
		outer = eliminateHole(hole, outer)
	}
	return outer
}

func eliminateHole(hole, outer *node) *node {
	bridge := findHoleBridge(hole, outer)
	if bridge == nil {
		return outer
	}
	bridgeReverse := splitPolygon(bridge, hole)
	filterPoints(bridgeReverse, bridgeReverse.next)
	return filterPoints(bridge, bridge.next)
}

// findHoleBridge finds an outer vertex visible from the hole's leftmost point
func findHoleBridge(hole, outer *node) *node {
	p := outer
	hx, hy := hole.x, hole.y
	qx := math.Inf(-1)
	var m *node

	// segment intersected by a ray from the hole's leftmost point to the left
	for {
		if hy <= p.y && hy >= p.next.y && p.next.y != p.y {
			x := p.x + (hy-p.y)*(p.next.x-p.x)/(p.next.y-p.y)
			if x <= hx && x > qx {
				qx = x
				m = p
				if p.next.x < p.x {
					m = p.next
				}
				if x == hx {
					return m // hole touches outer segment
				}
			}
		}
		p = p.next
		if p == outer {
			break
		}
	}
	if m == nil {
		return nil
	}

	stop := m
	mx, my := m.x, m.y
	tanMin := math.Inf(1)
	p = m
	for {
		ax, cx := hx, qx
		if hy >= my {
			ax, cx = qx, hx
		}
		if hx >= p.x && p.x >= mx && hx != p.x && pointInTriangle(ax, hy, mx, my, cx, hy, p.x, p.y) {
			tan := math.Abs(hy-p.y) / (hx - p.x)
			if locallyInside(p, hole) &&
				(tan < tanMin || (tan == tanMin && (p.x > m.x || (p.x == m.x && sectorContainsSector(m, p))))) {
				m = p
				tanMin = tan
			}
		}
		p = p.next
		if p == stop {
			break
		}
	}
	return m
}

func sectorContainsSector(m, p *node) bool {
	return area(m.prev, m, p.prev) < 0 && area(p.next, m, m.next) < 0
}

func leftmost(start *node) *node {
	p, left := start, start
	for {
		if p.x < left.x || (p.x == left.x && p.y < left.y) {
			left = p
		}
		p = p.next
		if p == start {
			return left
		}
	}
}

func pointInTriangle(ax, ay, bx, by, cx, cy, px, py float64) bool {
	return (cx-px)*(ay-py) >= (ax-px)*(cy-py) &&
		(ax-px)*(by-py) >= (bx-px)*(ay-py) &&
		(bx-px)*(cy-py) >= (cx-px)*(by-py)
}

func isValidDiagonal(a, b *node) bool {
	return a.next.i != b.i && a.prev.i != b.i && !intersectsPolygon(a, b) &&
		((locallyInside(a, b) && locallyInside(b, a) && middleInside(a, b) &&
			(area(a.prev, a, b.prev) != 0 || area(a, b.prev, b) != 0)) ||
			(equals(a, b) && area(a.prev, a, a.next) > 0 && area(b.prev, b, b.next) > 0))
}

// area is twice the signed triangle area, negative for clockwise
func area(p, q, r *node) float64 {
	return (q.y-p.y)*(r.x-q.x) - (q.x-p.x)*(r.y-q.y)
}

func equals(p, q *node) bool {
	return p.x == q.x && p.y == q.y
}

func intersects(p1, q1, p2, q2 *node) bool {
	o1 := sign(area(p1, q1, p2))
	o2 := sign(area(p1, q1, q2))
	o3 := sign(area(p2, q2, p1))
	o4 := sign(area(p2, q2, q1))

	if o1 != o2 && o3 != o4 {
		return true
	}
	if o1 == 0 && onSegment(p1, p2, q1) {
		return true
	}
	if o2 == 0 && onSegment(p1, q2, q1) {
		return true
	}
	if o3 == 0 && onSegment(p2, p1, q2) {
		return true
	}
	if o4 == 0 && onSegment(p2, q1, q2) {
		return true
	}
	return false
}

func onSegment(p, q, r *node) bool {
	return q.x <= math.Max(p.x, r.x) && q.x >= math.Min(p.x, r.x) &&
		q.y <= math.Max(p.y, r.y) && q.y >= math.Min(p.y, r.y)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func intersectsPolygon(a, b *node) bool {
	p := a
	for {
		if p.i != a.i && p.next.i != a.i && p.i != b.i && p.next.i != b.i && intersects(p, p.next, a, b) {
			return true
		}
		p = p.next
		if p == a {
			return false
		}
	}
}

func locallyInside(a, b *node) bool {
	if area(a.prev, a, a.next) < 0 {
		return area(a, b, a.next) >= 0 && area(a, a.prev, b) >= 0
	}
	return area(a, b, a.prev) < 0 || area(a, a.next, b) < 0
}

func middleInside(a, b *node) bool {
	p := a
	inside := false
	px, py := (a.x+b.x)/2, (a.y+b.y)/2
	for {
		if (p.y > py) != (p.next.y > py) && p.next.y != p.y &&
			px < (p.next.x-p.x)*(py-p.y)/(p.next.y-p.y)+p.x {
			inside = !inside
		}
		p = p.next
		if p == a {
			return inside
		}
	}
}

// splitPolygon links a and b with a bridge, returning the second half's node
func splitPolygon(a, b *node) *node {
	a2 := &node{i: a.i, x: a.x, y: a.y}
	b2 := &node{i: b.i, x: b.x, y: b.y}
	an, bp := a.next, b.prev

	a.next = b
	b.prev = a

	a2.next = an
	an.prev = a2

	b2.next = a2
	a2.prev = b2

	bp.next = b2
	b2.prev = bp

	return b2
}

func insertNode(i int, x, y float64, last *node) *node {
	p := &node{i: i, x: x, y: y}
	if last == nil {
		p.prev = p
		p.next = p
	} else {
		p.next = last.next
		p.prev = last
		last.next.prev = p
		last.next = p
	}
	return p
}

func removeNode(p *node) {
	p.next.prev = p.prev
	p.prev.next = p.next
}

func signedArea(xs, ys []float64, start, end int) float64 {
	sum := 0.0
	j := end - 1
	for i := start; i < end; i++ {
		sum += (xs[j] - xs[i]) * (ys[i] + ys[j])
		j = i
	}
	return sum
}
