package cluster

import (
	"math"
	"sort"

	"tourplan/internal/model"
)

// Config holds the clustering tunables. Zero values fall back to the
// defaults below via Normalize.
type Config struct {
	SectorCount    int     `yaml:"sector_count"`
	ProximityM     float64 `yaml:"proximity_m"`
	MinOrders      int     `yaml:"min_orders"`
	MaxClusterSize int     `yaml:"max_cluster_size"`
}

// DefaultConfig returns the production defaults: 25 angular sectors
// (~14.4 degrees each), 3 km proximity, clusters of 3..30 orders.
func DefaultConfig() Config {
	return Config{SectorCount: 25, ProximityM: 3000, MinOrders: 3, MaxClusterSize: 30}
}

func (c Config) Normalize() Config {
	d := DefaultConfig()
	if c.SectorCount <= 0 {
		c.SectorCount = d.SectorCount
	}
	if c.ProximityM <= 0 {
		c.ProximityM = d.ProximityM
	}
	if c.MinOrders <= 0 {
		c.MinOrders = d.MinOrders
	}
	if c.MaxClusterSize <= 0 {
		c.MaxClusterSize = d.MaxClusterSize
	}
	return c
}

// Strategy partitions a warehouse's candidate orders into clusters.
type Strategy interface {
	Cluster(warehouse model.Warehouse, orders []model.Order, tier string) []model.Cluster
}

// SectorClusterer is the canonical Strategy: partition by bearing from
// the warehouse, grow proximity chains within each sector, merge
// undersized clusters, split oversized ones.
type SectorClusterer struct {
	cfg Config
}

func NewSectorClusterer(cfg Config) *SectorClusterer {
	return &SectorClusterer{cfg: cfg.Normalize()}
}

type sectorOrder struct {
	model.Order
	distM float64
}

func (s *SectorClusterer) Cluster(warehouse model.Warehouse, orders []model.Order, tier string) []model.Cluster {
	if len(orders) == 0 {
		return nil
	}
	// tiny batches are not worth clustering
	if len(orders) <= s.cfg.MinOrders {
		return []model.Cluster{{Orders: orders, Tier: tier}}
	}

	sectors := s.partition(warehouse, orders)

	var groups [][]model.Order
	for _, sec := range sectors {
		if len(sec) == 0 {
			continue
		}
		groups = append(groups, s.growSector(sec)...)
	}

	groups = s.mergeSmall(groups)
	groups = s.splitOversized(warehouse, groups)

	out := make([]model.Cluster, 0, len(groups))
	for _, g := range groups {
		out = append(out, model.Cluster{Orders: g, Tier: tier})
	}
	return out
}

// partition assigns each order to an angular sector by bearing from the
// warehouse and records its haversine distance.
func (s *SectorClusterer) partition(warehouse model.Warehouse, orders []model.Order) [][]sectorOrder {
	sectors := make([][]sectorOrder, s.cfg.SectorCount)
	width := 2 * math.Pi / float64(s.cfg.SectorCount)
	for _, o := range orders {
		idx := int(Bearing(warehouse.Location, o.Location) / width)
		if idx >= s.cfg.SectorCount {
			idx = s.cfg.SectorCount - 1
		}
		sectors[idx] = append(sectors[idx], sectorOrder{
			Order: o,
			distM: HaversineMeters(warehouse.Location, o.Location),
		})
	}
	return sectors
}

// growSector builds proximity chains within one sector. Orders are
// seeded nearest-to-warehouse first; each chain extends by popping the
// nearest remaining order to the last-added order. Comparing against
// the last-added order, not the centroid, produces route-like chains
// rather than compact blobs.
func (s *SectorClusterer) growSector(sec []sectorOrder) [][]model.Order {
	sort.Slice(sec, func(i, j int) bool { return sec[i].distM < sec[j].distM })

	remaining := make(map[int64]model.Order, len(sec))
	points := make([]Point, 0, len(sec))
	for _, o := range sec {
		remaining[o.ID] = o.Order
		points = append(points, Point{X: o.Location.Lng, Y: o.Location.Lat, ID: o.ID})
	}
	tree := BuildKDTree(points)

	var out [][]model.Order
	for _, seed := range sec {
		if _, ok := remaining[seed.ID]; !ok {
			continue
		}
		delete(remaining, seed.ID)
		cur := []model.Order{seed.Order}
		last := seed.Order
		for len(cur) < s.cfg.MaxClusterSize {
			cand, ok := tree.PopNearest(last.Location.Lng, last.Location.Lat, remaining)
			if !ok {
				break
			}
			if HaversineMeters(last.Location, cand.Location) > s.cfg.ProximityM {
				// too far to chain; it seeds a later cluster
				remaining[cand.ID] = cand
				break
			}
			cur = append(cur, cand)
			last = cand
		}
		out = append(out, cur)
	}
	return out
}

// mergeSmall folds clusters below MinOrders into the nearest large
// cluster by centroid distance. Without any large cluster, small ones
// are concatenated sequentially until each group reaches MinOrders.
func (s *SectorClusterer) mergeSmall(groups [][]model.Order) [][]model.Order {
	var large, small [][]model.Order
	for _, g := range groups {
		if len(g) >= s.cfg.MinOrders {
			large = append(large, g)
		} else {
			small = append(small, g)
		}
	}
	if len(small) == 0 {
		return large
	}

	if len(large) > 0 {
		centroids := make([]model.GeoPoint, len(large))
		for i, g := range large {
			centroids[i] = Centroid(g)
		}
		for _, g := range small {
			c := Centroid(g)
			best := 0
			bestDist := HaversineMeters(c, centroids[0])
			for i := 1; i < len(large); i++ {
				if d := HaversineMeters(c, centroids[i]); d < bestDist {
					bestDist = d
					best = i
				}
			}
			large[best] = append(large[best], g...)
			centroids[best] = Centroid(large[best])
		}
		return large
	}

	var merged [][]model.Order
	var cur []model.Order
	for _, g := range small {
		cur = append(cur, g...)
		if len(cur) >= s.cfg.MinOrders {
			merged = append(merged, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		if len(merged) > 0 {
			merged[len(merged)-1] = append(merged[len(merged)-1], cur...)
		} else {
			merged = append(merged, cur)
		}
	}
	return merged
}

// splitOversized re-chunks clusters above MaxClusterSize by distance
// from the warehouse. Chunks are balanced so a split never produces a
// remainder below MinOrders.
func (s *SectorClusterer) splitOversized(warehouse model.Warehouse, groups [][]model.Order) [][]model.Order {
	var out [][]model.Order
	for _, g := range groups {
		if len(g) <= s.cfg.MaxClusterSize {
			out = append(out, g)
			continue
		}
		sorted := make([]model.Order, len(g))
		copy(sorted, g)
		sort.Slice(sorted, func(i, j int) bool {
			return HaversineMeters(warehouse.Location, sorted[i].Location) <
				HaversineMeters(warehouse.Location, sorted[j].Location)
		})
		chunks := (len(sorted) + s.cfg.MaxClusterSize - 1) / s.cfg.MaxClusterSize
		base := len(sorted) / chunks
		rem := len(sorted) % chunks
		start := 0
		for i := 0; i < chunks; i++ {
			size := base
			if i < rem {
				size++
			}
			out = append(out, sorted[start:start+size])
			start += size
		}
	}
	return out
}
