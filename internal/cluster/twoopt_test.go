package cluster

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"tourplan/internal/model"
)

func TestImproveOrderSequenceUncrossesRoute(t *testing.T) {
	wh := model.GeoPoint{Lat: 52.5, Lng: 13.4}
	// a deliberately crossed zig-zag along a street grid
	orders := []model.Order{
		{ID: 1, Location: model.GeoPoint{Lat: 52.5, Lng: 13.41}},
		{ID: 2, Location: model.GeoPoint{Lat: 52.5, Lng: 13.44}},
		{ID: 3, Location: model.GeoPoint{Lat: 52.5, Lng: 13.42}},
		{ID: 4, Location: model.GeoPoint{Lat: 52.5, Lng: 13.45}},
		{ID: 5, Location: model.GeoPoint{Lat: 52.5, Lng: 13.43}},
	}

	improved := ImproveOrderSequence(wh, orders, 10)
	require.Len(t, improved, len(orders))
	require.Less(t, roundTrip(wh, improved), roundTrip(wh, orders))

	// along a straight line the optimum is one sweep out to the far
	// end and straight back
	optimal := 2 * HaversineMeters(wh, model.GeoPoint{Lat: 52.5, Lng: 13.45})
	require.InDelta(t, optimal, roundTrip(wh, improved), optimal*0.01)
}

func TestImproveOrderSequenceNeverWorsens(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	wh := model.GeoPoint{Lat: 48.1, Lng: 11.5}
	orders := make([]model.Order, 20)
	for i := range orders {
		orders[i] = model.Order{
			ID:       int64(i + 1),
			Location: model.GeoPoint{Lat: 48.1 + rng.Float64()*0.1, Lng: 11.5 + rng.Float64()*0.1},
		}
	}

	improved := ImproveOrderSequence(wh, orders, 5)
	require.Len(t, improved, len(orders))
	require.LessOrEqual(t, roundTrip(wh, improved), roundTrip(wh, orders))

	seen := map[int64]bool{}
	for _, o := range improved {
		seen[o.ID] = true
	}
	require.Len(t, seen, len(orders), "every order survives the reshuffle")
}

func TestImproveOrderSequenceTinyInputsPassThrough(t *testing.T) {
	wh := model.GeoPoint{Lat: 1, Lng: 1}
	two := []model.Order{{ID: 1}, {ID: 2}}
	require.Equal(t, two, ImproveOrderSequence(wh, two, 3))
}

func roundTrip(wh model.GeoPoint, orders []model.Order) float64 {
	total := 0.0
	prev := wh
	for _, o := range orders {
		total += HaversineMeters(prev, o.Location)
		prev = o.Location
	}
	total += HaversineMeters(prev, wh)
	return total
}
