package cluster

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"tourplan/internal/model"
)

func TestKDTreeNearestKSortedAndMembers(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	points := make([]Point, 0, 200)
	ids := map[int64]bool{}
	for i := 0; i < 200; i++ {
		id := int64(i + 1)
		points = append(points, Point{X: rng.Float64() * 10, Y: rng.Float64() * 10, ID: id})
		ids[id] = true
	}
	tree := BuildKDTree(points)

	got := tree.NearestK(5, 5, 10)
	require.Len(t, got, 10)
	for i, c := range got {
		require.True(t, ids[c.ID], "candidate %d not in build set", c.ID)
		if i > 0 {
			require.GreaterOrEqual(t, c.DistSq, got[i-1].DistSq, "results must be sorted ascending")
		}
	}

	// brute-force cross-check of the true nearest
	bestID := int64(0)
	bestD := -1.0
	for _, p := range points {
		d := (p.X-5)*(p.X-5) + (p.Y-5)*(p.Y-5)
		if bestD < 0 || d < bestD {
			bestD = d
			bestID = p.ID
		}
	}
	require.Equal(t, bestID, got[0].ID)
}

func TestKDTreeNearestKFewerPointsThanK(t *testing.T) {
	tree := BuildKDTree([]Point{{X: 1, Y: 1, ID: 1}, {X: 2, Y: 2, ID: 2}})
	got := tree.NearestK(0, 0, 8)
	require.Len(t, got, 2)
	require.Equal(t, int64(1), got[0].ID)
}

func TestKDTreePopNearestRespectsRemainingSet(t *testing.T) {
	orders := []model.Order{
		{ID: 1, Location: model.GeoPoint{Lat: 0.001, Lng: 0.001}},
		{ID: 2, Location: model.GeoPoint{Lat: 0.002, Lng: 0.002}},
		{ID: 3, Location: model.GeoPoint{Lat: 0.010, Lng: 0.010}},
	}
	points := make([]Point, len(orders))
	remaining := map[int64]model.Order{}
	for i, o := range orders {
		points[i] = Point{X: o.Location.Lng, Y: o.Location.Lat, ID: o.ID}
		remaining[o.ID] = o
	}
	tree := BuildKDTree(points)

	// nearest overall is order 1, but it is no longer remaining
	delete(remaining, 1)
	got, ok := tree.PopNearest(0, 0, remaining)
	require.True(t, ok)
	require.Equal(t, int64(2), got.ID)
	_, still := remaining[2]
	require.False(t, still, "pop must delete from the remaining set")

	got, ok = tree.PopNearest(0, 0, remaining)
	require.True(t, ok)
	require.Equal(t, int64(3), got.ID)

	_, ok = tree.PopNearest(0, 0, remaining)
	require.False(t, ok, "empty remaining set yields no hit")
}

func TestKDTreePopNearestFallbackScan(t *testing.T) {
	// more than popNearestK points near the query, the only remaining
	// member far away: the fixed fan-out misses and the scan must find it
	points := make([]Point, 0, 12)
	for i := 0; i < 11; i++ {
		points = append(points, Point{X: float64(i) * 0.0001, Y: 0, ID: int64(i + 1)})
	}
	far := model.Order{ID: 99, Location: model.GeoPoint{Lat: 5, Lng: 5}}
	points = append(points, Point{X: far.Location.Lng, Y: far.Location.Lat, ID: far.ID})
	tree := BuildKDTree(points)

	remaining := map[int64]model.Order{far.ID: far}
	got, ok := tree.PopNearest(0, 0, remaining)
	require.True(t, ok)
	require.Equal(t, far.ID, got.ID)
	require.Empty(t, remaining)
}
