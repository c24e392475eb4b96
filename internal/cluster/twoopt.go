package cluster

import "tourplan/internal/model"

// ImproveOrderSequence applies a 2-opt pass to a cluster's stop
// sequence before it is submitted to the optimizer. The warehouse is a
// fixed anchor at both ends of the round trip; only the interior stop
// order changes. Shorter input sequences give the optimizer a better
// warm start and keep the duration estimate honest.
func ImproveOrderSequence(warehouse model.GeoPoint, orders []model.Order, iterations int) []model.Order {
	if len(orders) < 3 {
		return orders
	}
	if iterations <= 0 {
		iterations = 1
	}

	// node 0 is the warehouse; nodes 1..n are the stops
	pts := make([]model.GeoPoint, len(orders)+1)
	pts[0] = warehouse
	for i, o := range orders {
		pts[i+1] = o.Location
	}
	seq := make([]int, len(orders)+2)
	for i := 1; i <= len(orders); i++ {
		seq[i] = i
	}
	seq[len(seq)-1] = 0

	best := seq
	bestDist := tourDistance(pts, best)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 1; i < len(best)-2; i++ {
			for k := i + 1; k < len(best)-1; k++ {
				cand := reverseSegment(best, i, k)
				d := tourDistance(pts, cand)
				if d+1e-3 < bestDist {
					best = cand
					bestDist = d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}

	out := make([]model.Order, 0, len(orders))
	for _, idx := range best[1 : len(best)-1] {
		out = append(out, orders[idx-1])
	}
	return out
}

func reverseSegment(seq []int, i, k int) []int {
	out := make([]int, len(seq))
	copy(out, seq[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = seq[j]
		pos++
	}
	copy(out[pos:], seq[k+1:])
	return out
}

func tourDistance(pts []model.GeoPoint, seq []int) float64 {
	total := 0.0
	for i := 0; i < len(seq)-1; i++ {
		total += HaversineMeters(pts[seq[i]], pts[seq[i+1]])
	}
	return total
}
