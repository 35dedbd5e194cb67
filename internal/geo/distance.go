// Package geo finds markets near a place.
package geo

import (
	"github.com/golang/geo/s2"

	"github.com/shivas758/agriguru/internal/domain"
)

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance between two points in km.
func Haversine(a, b domain.Coordinates) float64 {
	pa := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	pb := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return pa.Distance(pb).Radians() * earthRadiusKm
}
