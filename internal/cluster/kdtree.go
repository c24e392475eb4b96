package cluster

import (
	"sort"

	"tourplan/internal/model"
)

// KDTree is a read-only 2-D nearest-neighbor index over (x, y) points.
// Nodes live in an arena addressed by index; the tree is never mutated
// after build. Deletions are modeled by the caller through an external
// remaining-membership set passed to PopNearest.
type KDTree struct {
	nodes []kdNode
	root  int
}

type kdNode struct {
	x, y        float64
	id          int64
	left, right int
}

// Point is a KD-tree build input: a projected coordinate plus the id of
// the order it belongs to.
type Point struct {
	X, Y float64
	ID   int64
}

// Candidate is a query result ordered by squared Euclidean distance.
type Candidate struct {
	ID     int64
	DistSq float64
}

const kdNil = -1

// popNearestK is the fixed fan-out used by PopNearest before falling
// back to a linear scan of the remaining set.
const popNearestK = 8

// BuildKDTree constructs the index in O(n log n) by median partition on
// alternating axes.
func BuildKDTree(points []Point) *KDTree {
	t := &KDTree{nodes: make([]kdNode, 0, len(points)), root: kdNil}
	pts := make([]Point, len(points))
	copy(pts, points)
	t.root = t.build(pts, 0)
	return t
}

func (t *KDTree) build(pts []Point, depth int) int {
	if len(pts) == 0 {
		return kdNil
	}
	if depth%2 == 0 {
		sort.Slice(pts, func(i, j int) bool { return pts[i].X < pts[j].X })
	} else {
		sort.Slice(pts, func(i, j int) bool { return pts[i].Y < pts[j].Y })
	}
	mid := len(pts) / 2
	idx := len(t.nodes)
	t.nodes = append(t.nodes, kdNode{x: pts[mid].X, y: pts[mid].Y, id: pts[mid].ID, left: kdNil, right: kdNil})
	left := t.build(pts[:mid], depth+1)
	right := t.build(pts[mid+1:], depth+1)
	t.nodes[idx].left = left
	t.nodes[idx].right = right
	return idx
}

// NearestK returns up to k points ordered by squared Euclidean distance
// from (x, y). The far branch is only skipped when it cannot beat the
// current k-th best.
func (t *KDTree) NearestK(x, y float64, k int) []Candidate {
	if k <= 0 || t.root == kdNil {
		return nil
	}
	best := make([]Candidate, 0, k)
	t.search(t.root, x, y, k, 0, &best)
	return best
}

func (t *KDTree) search(idx int, x, y float64, k, depth int, best *[]Candidate) {
	if idx == kdNil {
		return
	}
	n := t.nodes[idx]
	dx := n.x - x
	dy := n.y - y
	insertCandidate(best, Candidate{ID: n.id, DistSq: dx*dx + dy*dy}, k)

	var axisDelta float64
	var near, far int
	if depth%2 == 0 {
		axisDelta = x - n.x
	} else {
		axisDelta = y - n.y
	}
	if axisDelta < 0 {
		near, far = n.left, n.right
	} else {
		near, far = n.right, n.left
	}
	t.search(near, x, y, k, depth+1, best)
	// prune: the far branch can only contain a better candidate when the
	// splitting plane is closer than the current k-th best
	if len(*best) < k || axisDelta*axisDelta < (*best)[len(*best)-1].DistSq {
		t.search(far, x, y, k, depth+1, best)
	}
}

func insertCandidate(best *[]Candidate, c Candidate, k int) {
	b := *best
	pos := sort.Search(len(b), func(i int) bool { return b[i].DistSq > c.DistSq })
	b = append(b, Candidate{})
	copy(b[pos+1:], b[pos:])
	b[pos] = c
	if len(b) > k {
		b = b[:k]
	}
	*best = b
}

// PopNearest returns the nearest point to (x, y) that is still present
// in remaining, removing it from the set. It queries a fixed fan-out
// first and falls back to scanning the remaining set so a hit is always
// found while any member is left.
func (t *KDTree) PopNearest(x, y float64, remaining map[int64]model.Order) (model.Order, bool) {
	for _, c := range t.NearestK(x, y, popNearestK) {
		if o, ok := remaining[c.ID]; ok {
			delete(remaining, c.ID)
			return o, true
		}
	}
	// fallback scan, kept for correctness rather than performance
	var bestID int64
	bestDist := -1.0
	for id, o := range remaining {
		dx := o.Location.Lng - x
		dy := o.Location.Lat - y
		d := dx*dx + dy*dy
		if bestDist < 0 || d < bestDist {
			bestDist = d
			bestID = id
		}
	}
	if bestDist < 0 {
		return model.Order{}, false
	}
	o := remaining[bestID]
	delete(remaining, bestID)
	return o, true
}
