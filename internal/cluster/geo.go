package cluster

import (
	"math"

	"tourplan/internal/model"
)

const earthRadiusM = 6371000.0

// HaversineMeters returns the great-circle distance between two coordinates.
func HaversineMeters(a, b model.GeoPoint) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Bearing returns the angle of p as seen from origin, normalized to [0, 2π).
func Bearing(origin, p model.GeoPoint) float64 {
	theta := math.Atan2(p.Lat-origin.Lat, p.Lng-origin.Lng)
	if theta < 0 {
		theta += 2 * math.Pi
	}
	return theta
}

// Centroid returns the arithmetic mean of the orders' coordinates.
func Centroid(orders []model.Order) model.GeoPoint {
	if len(orders) == 0 {
		return model.GeoPoint{}
	}
	var lat, lng float64
	for _, o := range orders {
		lat += o.Location.Lat
		lng += o.Location.Lng
	}
	n := float64(len(orders))
	return model.GeoPoint{Lat: lat / n, Lng: lng / n}
}
