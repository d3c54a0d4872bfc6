// Package geo computes the bounding boxes that frame each image chip.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for the small-angle
// approximation below.
const EarthRadiusMeters = 6371000.0

// Box is a lat/lon rectangle in degrees.
type Box struct {
	XMin float64 // west longitude
	XMax float64 // east longitude
	YMin float64 // south latitude
	YMax float64 // north latitude
}

// Width returns the longitudinal extent in degrees.
func (b Box) Width() float64 {
	return b.XMax - b.XMin
}

// Height returns the latitudinal extent in degrees.
func (b Box) Height() float64 {
	return b.YMax - b.YMin
}

// Center returns the (lon, lat) midpoint of the box.
func (b Box) Center() (lon, lat float64) {
	return (b.XMin + b.XMax) / 2, (b.YMin + b.YMax) / 2
}

// BoundingBox returns a box centered on (lat, lon) spanning sizePixels at the
// given ground resolution in meters per pixel. This is a planar small-angle
// approximation, not geodesic, which is adequate for city-scale chips.
// Non-positive size or resolution yields a degenerate box; callers are
// expected to pass positive values.
func BoundingBox(lat, lon float64, sizePixels int, resolution float64) Box {
	angular := radToDeg(0.5 * (float64(sizePixels) * resolution) / EarthRadiusMeters)
	return Box{
		XMin: lon - angular,
		XMax: lon + angular,
		YMin: lat - angular,
		YMax: lat + angular,
	}
}

func radToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
