package cluster

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"tourplan/internal/model"
)

func testWarehouse() model.Warehouse {
	return model.Warehouse{ID: 1, Location: model.GeoPoint{Lat: 0, Lng: 0}}
}

func TestClusterTinyBatchPassthrough(t *testing.T) {
	c := NewSectorClusterer(Config{MinOrders: 3})
	orders := []model.Order{
		{ID: 1, Location: model.GeoPoint{Lat: 0.01, Lng: 0.01}},
		{ID: 2, Location: model.GeoPoint{Lat: -0.5, Lng: 0.7}},
	}
	got := c.Cluster(testWarehouse(), orders, model.TierFirstPass)
	require.Len(t, got, 1)
	require.Equal(t, orders, got[0].Orders)
	require.Equal(t, model.TierFirstPass, got[0].Tier)
}

func TestClusterEmptyInput(t *testing.T) {
	c := NewSectorClusterer(DefaultConfig())
	require.Empty(t, c.Cluster(testWarehouse(), nil, model.TierFirstPass))
}

func TestClusterSizeBounds(t *testing.T) {
	cfg := Config{SectorCount: 25, ProximityM: 5000, MinOrders: 3, MaxClusterSize: 10}
	c := NewSectorClusterer(cfg)

	rng := rand.New(rand.NewSource(7))
	orders := make([]model.Order, 0, 120)
	for i := 0; i < 120; i++ {
		orders = append(orders, model.Order{
			ID: int64(i + 1),
			Location: model.GeoPoint{
				Lat: (rng.Float64() - 0.5) * 0.2,
				Lng: (rng.Float64() - 0.5) * 0.2,
			},
		})
	}

	clusters := c.Cluster(testWarehouse(), orders, model.TierFirstPass)
	require.NotEmpty(t, clusters)

	seen := map[int64]bool{}
	for _, cl := range clusters {
		require.GreaterOrEqual(t, len(cl.Orders), cfg.MinOrders)
		require.LessOrEqual(t, len(cl.Orders), cfg.MaxClusterSize)
		for _, o := range cl.Orders {
			require.False(t, seen[o.ID], "order %d assigned twice", o.ID)
			seen[o.ID] = true
		}
	}
	require.Len(t, seen, len(orders), "every order belongs to exactly one cluster")
}

func TestClusterProximityChains(t *testing.T) {
	// two groups in the same sector, far apart: growth must not chain
	// across the proximity gap
	cfg := Config{SectorCount: 4, ProximityM: 2000, MinOrders: 2, MaxClusterSize: 10}
	c := NewSectorClusterer(cfg)

	near := []model.Order{
		{ID: 1, Location: model.GeoPoint{Lat: 0.010, Lng: 0.010}},
		{ID: 2, Location: model.GeoPoint{Lat: 0.011, Lng: 0.011}},
		{ID: 3, Location: model.GeoPoint{Lat: 0.012, Lng: 0.012}},
	}
	far := []model.Order{
		{ID: 4, Location: model.GeoPoint{Lat: 0.500, Lng: 0.500}},
		{ID: 5, Location: model.GeoPoint{Lat: 0.501, Lng: 0.501}},
		{ID: 6, Location: model.GeoPoint{Lat: 0.502, Lng: 0.502}},
	}
	clusters := c.Cluster(testWarehouse(), append(near, far...), model.TierFirstPass)
	require.Len(t, clusters, 2)

	group := map[int64]int{}
	for i, cl := range clusters {
		for _, o := range cl.Orders {
			group[o.ID] = i
		}
	}
	require.Equal(t, group[1], group[2])
	require.Equal(t, group[1], group[3])
	require.Equal(t, group[4], group[5])
	require.Equal(t, group[4], group[6])
	require.NotEqual(t, group[1], group[4])
}

func TestClusterMergesSmallIntoNearestLarge(t *testing.T) {
	cfg := Config{SectorCount: 4, ProximityM: 2000, MinOrders: 3, MaxClusterSize: 10}
	c := NewSectorClusterer(cfg)

	// four co-located orders in the NE sector plus one lone order in the
	// NW sector: the singleton must merge into the large cluster
	orders := []model.Order{
		{ID: 1, Location: model.GeoPoint{Lat: 0.010, Lng: 0.010}},
		{ID: 2, Location: model.GeoPoint{Lat: 0.011, Lng: 0.011}},
		{ID: 3, Location: model.GeoPoint{Lat: 0.012, Lng: 0.012}},
		{ID: 4, Location: model.GeoPoint{Lat: 0.013, Lng: 0.013}},
		{ID: 5, Location: model.GeoPoint{Lat: 0.012, Lng: -0.012}},
	}
	clusters := c.Cluster(testWarehouse(), orders, model.TierFirstPass)
	require.Len(t, clusters, 1)
	require.Len(t, clusters[0].Orders, 5)
}

func TestClusterSplitsOversized(t *testing.T) {
	cfg := Config{SectorCount: 1, ProximityM: 100000, MinOrders: 2, MaxClusterSize: 4}
	c := NewSectorClusterer(cfg)

	orders := make([]model.Order, 0, 10)
	for i := 0; i < 10; i++ {
		orders = append(orders, model.Order{
			ID:       int64(i + 1),
			Location: model.GeoPoint{Lat: 0.001 * float64(i+1), Lng: 0.001 * float64(i+1)},
		})
	}
	clusters := c.Cluster(testWarehouse(), orders, model.TierFirstPass)
	total := 0
	for _, cl := range clusters {
		require.LessOrEqual(t, len(cl.Orders), cfg.MaxClusterSize)
		require.GreaterOrEqual(t, len(cl.Orders), cfg.MinOrders)
		total += len(cl.Orders)
	}
	require.Equal(t, 10, total)
}

func TestBearingNormalized(t *testing.T) {
	origin := model.GeoPoint{}
	require.InDelta(t, 0, Bearing(origin, model.GeoPoint{Lat: 0, Lng: 1}), 1e-9)
	require.InDelta(t, 1.5707963, Bearing(origin, model.GeoPoint{Lat: 1, Lng: 0}), 1e-6)
	require.InDelta(t, 4.7123889, Bearing(origin, model.GeoPoint{Lat: -1, Lng: 0}), 1e-6)
}

func TestHaversineKnownDistance(t *testing.T) {
	// one degree of latitude is about 111.19 km
	d := HaversineMeters(model.GeoPoint{Lat: 0, Lng: 0}, model.GeoPoint{Lat: 1, Lng: 0})
	require.InDelta(t, 111190, d, 100)
}
