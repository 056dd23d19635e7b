package model

import "github.com/paulmach/orb"

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Orb converts to an orb.Point, which is ordered [lng, lat].
func (p GeoPoint) Orb() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// PlanarPoint is a point in the traced map's render space.
type PlanarPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Orb converts to an orb.Point.
func (p PlanarPoint) Orb() orb.Point {
	return orb.Point{p.X, p.Y}
}

// ViewBox is the bounding rectangle of the render space.
type ViewBox struct {
	MinX   float64 `json:"min_x"`
	MinY   float64 `json:"min_y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the view box.
func (vb ViewBox) Center() PlanarPoint {
	return PlanarPoint{X: vb.MinX + vb.Width/2, Y: vb.MinY + vb.Height/2}
}

// Contains reports whether p falls inside the view box. Callers decide what
// to do with points outside it; the calibration transform never clamps.
func (vb ViewBox) Contains(p PlanarPoint) bool {
	return p.X >= vb.MinX && p.X <= vb.MinX+vb.Width &&
		p.Y >= vb.MinY && p.Y <= vb.MinY+vb.Height
}

// GeoBounds is an axis-aligned geographic rectangle.
type GeoBounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Center returns the geographic midpoint of the rectangle.
func (b GeoBounds) Center() GeoPoint {
	return GeoPoint{Lat: (b.North + b.South) / 2, Lng: (b.East + b.West) / 2}
}

// CalibrationPoint is a surveyed landmark known in both spaces.
type CalibrationPoint struct {
	Name   string      `json:"name,omitempty"`
	Geo    GeoPoint    `json:"geo"`
	Planar PlanarPoint `json:"planar"`
}

// Node types used by the walkable graph builder
const (
	NodeTypePath = "path"
	NodeTypeDoor = "door"
)

// Node is a point on the walkable graph (junction, vertex or door).
type Node struct {
	ID    string    `json:"id"`
	X     float64   `json:"x"`
	Y     float64   `json:"y"`
	Geo   *GeoPoint `json:"geo,omitempty"`
	Label string    `json:"label,omitempty"` // street, corridor or room name
	Type  string    `json:"type"`
}

// Planar returns the node position in render space.
func (n Node) Planar() PlanarPoint {
	return PlanarPoint{X: n.X, Y: n.Y}
}
