// Package geo provides proximity queries over decoded tidal stations:
// nearest-station lookup and radius filtering by great-circle distance.
package geo

import (
	"math"

	"github.com/jpr5/tcd"
)

const earthRadiusKm = 6371.0088

func deg2rad(d float64) float64 { return d * math.Pi / 180.0 }

// haversineKm returns the great-circle distance between two lon/lat points
// in kilometres.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r, lat2r := deg2rad(lat1), deg2rad(lat2)
	dlat := deg2rad(lat2 - lat1)
	dlon := deg2rad(lon2 - lon1)

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// Nearest returns the station closest to (lat, lon) and its distance in
// kilometres. The bool is false if stations is empty.
func Nearest(stations []tcd.Station, lat, lon float64) (tcd.Station, float64, bool) {
	if len(stations) == 0 {
		return tcd.Station{}, 0, false
	}

	best := 0
	best_km := haversineKm(lat, lon, stations[0].Latitude, stations[0].Longitude)

	for i := 1; i < len(stations); i++ {
		d := haversineKm(lat, lon, stations[i].Latitude, stations[i].Longitude)
		if d < best_km {
			best_km = d
			best = i
		}
	}

	return stations[best], best_km, true
}

// WithinRadius returns every station within radiusKm of (lat, lon), in no
// particular order.
func WithinRadius(stations []tcd.Station, lat, lon, radiusKm float64) []tcd.Station {
	out := make([]tcd.Station, 0)
	for _, s := range stations {
		if haversineKm(lat, lon, s.Latitude, s.Longitude) <= radiusKm {
			out = append(out, s)
		}
	}
	return out
}
