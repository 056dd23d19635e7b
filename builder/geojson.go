package builder

import (
	"fmt"

	"precinct-nav/calib"
	"precinct-nav/model"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature kinds recognised in the "kind" property of a GeoJSON import.
const (
	FeatureKindPath = "path"
	FeatureKindDoor = "door"
	FeatureKindRoom = "room"
)

// FromGeoJSON converts a GeoJSON feature collection into traced primitives.
// With a calibration the coordinates are read as [lng, lat] and projected to
// render space; without one they are taken as render coordinates.
//
// LineString and MultiLineString features become paths, Point or LineString
// features with kind "door" become doors, Polygon features with kind "room"
// become room outlines. Anything else is ignored.
func FromGeoJSON(data []byte, cal *calib.Calibration) (model.TracedMap, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return model.TracedMap{}, fmt.Errorf("parse geojson: %w", err)
	}

	project := func(p orb.Point) []float64 {
		if cal == nil {
			return []float64{p[0], p[1]}
		}
		pp := cal.Project(model.GeoPoint{Lat: p[1], Lng: p[0]})
		return []float64{pp.X, pp.Y}
	}
	coords := func(ls []orb.Point) [][]float64 {
		out := make([][]float64, len(ls))
		for i, p := range ls {
			out[i] = project(p)
		}
		return out
	}

	var m model.TracedMap
	for i, f := range fc.Features {
		id := featureID(f, i)
		kind := f.Properties.MustString("kind", FeatureKindPath)
		label := f.Properties.MustString("label", "")

		switch g := f.Geometry.(type) {
		case orb.Point:
			if kind == FeatureKindDoor {
				m.Doors = append(m.Doors, model.DoorMarker{ID: id, Points: [][]float64{project(g)}, Label: label})
			}
		case orb.LineString:
			if kind == FeatureKindDoor {
				m.Doors = append(m.Doors, model.DoorMarker{ID: id, Points: coords(g), Label: label})
				continue
			}
			m.Paths = append(m.Paths, model.PathPrimitive{ID: id, Type: model.PrimitivePolyline, Points: coords(g), Label: label})
		case orb.MultiLineString:
			for j, ls := range g {
				m.Paths = append(m.Paths, model.PathPrimitive{
					ID:     fmt.Sprintf("%s.%d", id, j),
					Type:   model.PrimitivePolyline,
					Points: coords(ls),
					Label:  label,
				})
			}
		case orb.Polygon:
			if kind == FeatureKindRoom && len(g) > 0 {
				m.Rooms = append(m.Rooms, model.RoomBoundary{ID: id, Label: label, Polygon: coords(g[0])})
			}
		}
	}
	return m, nil
}

func featureID(f *geojson.Feature, index int) string {
	switch v := f.ID.(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return fmt.Sprintf("%g", v)
	}
	if s := f.Properties.MustString("id", ""); s != "" {
		return s
	}
	return fmt.Sprintf("feature%d", index)
}
