package builder

import (
	"fmt"

	"precinct-nav/model"
	"precinct-nav/utils"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// flattener turns curves into point sequences.
type flattener struct {
	segments  int
	tolerance float64
}

func (f flattener) simplify(ls orb.LineString) orb.LineString {
	if f.tolerance <= 0 || len(ls) <= 2 {
		return ls
	}
	return simplify.DouglasPeucker(f.tolerance).LineString(ls)
}

// cubic samples a cubic Bézier. The result starts at p0 and ends at p3.
func (f flattener) cubic(p0, c1, c2, p3 orb.Point) orb.LineString {
	ls := make(orb.LineString, 0, f.segments+1)
	for i := 0; i <= f.segments; i++ {
		t := float64(i) / float64(f.segments)
		u := 1 - t
		a, b, c, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
		ls = append(ls, orb.Point{
			a*p0[0] + b*c1[0] + c*c2[0] + d*p3[0],
			a*p0[1] + b*c1[1] + c*c2[1] + d*p3[1],
		})
	}
	ls[len(ls)-1] = p3
	return f.simplify(ls)
}

// quadratic samples a quadratic Bézier.
func (f flattener) quadratic(p0, c, p2 orb.Point) orb.LineString {
	ls := make(orb.LineString, 0, f.segments+1)
	for i := 0; i <= f.segments; i++ {
		t := float64(i) / float64(f.segments)
		u := 1 - t
		a, b, d := u*u, 2*u*t, t*t
		ls = append(ls, orb.Point{
			a*p0[0] + b*c[0] + d*p2[0],
			a*p0[1] + b*c[1] + d*p2[1],
		})
	}
	ls[len(ls)-1] = p2
	return f.simplify(ls)
}

// flatten converts a path primitive into one or more point sequences.
func (f flattener) flatten(p model.PathPrimitive) ([]orb.LineString, error) {
	switch p.Type {
	case model.PrimitiveLine, model.PrimitivePolyline, "":
		pts, err := toPoints(p.Points)
		if err != nil {
			return nil, err
		}
		if len(pts) < 2 {
			return nil, fmt.Errorf("%s needs at least 2 points, got %d", orDefault(p.Type, "polyline"), len(pts))
		}
		return []orb.LineString{pts}, nil

	case model.PrimitiveCubic:
		pts, err := toPoints(p.Points)
		if err != nil {
			return nil, err
		}
		if len(pts) < 4 || (len(pts)-1)%3 != 0 {
			return nil, fmt.Errorf("cubic needs 1+3k points, got %d", len(pts))
		}
		out := orb.LineString{pts[0]}
		for i := 0; i+3 < len(pts); i += 3 {
			out = append(out, f.cubic(pts[i], pts[i+1], pts[i+2], pts[i+3])[1:]...)
		}
		return []orb.LineString{out}, nil

	case model.PrimitiveQuadratic:
		pts, err := toPoints(p.Points)
		if err != nil {
			return nil, err
		}
		if len(pts) < 3 || (len(pts)-1)%2 != 0 {
			return nil, fmt.Errorf("quadratic needs 1+2k points, got %d", len(pts))
		}
		out := orb.LineString{pts[0]}
		for i := 0; i+2 < len(pts); i += 2 {
			out = append(out, f.quadratic(pts[i], pts[i+1], pts[i+2])[1:]...)
		}
		return []orb.LineString{out}, nil

	case model.PrimitivePath:
		lines, err := parsePathData(p.D, f)
		if err != nil {
			return nil, err
		}
		if len(lines) == 0 {
			return nil, fmt.Errorf("path data has no drawable segment")
		}
		for _, ls := range lines {
			for _, pt := range ls {
				if !utils.IsFinite(pt[0]) || !utils.IsFinite(pt[1]) {
					return nil, fmt.Errorf("path data has non-finite coordinates")
				}
			}
		}
		return lines, nil
	}
	return nil, fmt.Errorf("unknown primitive type %q", p.Type)
}

func toPoints(raw [][]float64) (orb.LineString, error) {
	ls := make(orb.LineString, 0, len(raw))
	for i, c := range raw {
		if len(c) < 2 {
			return nil, fmt.Errorf("point %d has %d coordinates", i, len(c))
		}
		if !utils.IsFinite(c[0]) || !utils.IsFinite(c[1]) {
			return nil, fmt.Errorf("point %d is not finite", i)
		}
		ls = append(ls, orb.Point{c[0], c[1]})
	}
	return ls, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
