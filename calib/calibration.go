package calib

import (
	"errors"
	"fmt"
	"math"

	"precinct-nav/model"
	"precinct-nav/utils"
)

// Strategy names the transform a Calibration uses.
type Strategy string

const (
	// StrategyIdentity maps lng→x and lat→y unchanged. Only used as a
	// flagged fallback when nothing better is available.
	StrategyIdentity Strategy = "identity"
	// StrategyAffine is a least-squares affine fit over control points.
	StrategyAffine Strategy = "affine"
	// StrategyMercatorAffine fits against Web Mercator latitude, which
	// removes the latitude stretch for larger precincts.
	StrategyMercatorAffine Strategy = "mercator-affine"
	// StrategyCorners interpolates each axis independently between four
	// axis-aligned corners. It ignores rotation and shear, so it is less
	// accurate than an affine fit away from the axes of the box.
	StrategyCorners Strategy = "corners"
)

var (
	ErrInsufficientPoints = errors.New("at least 3 control points are required")
	ErrSingularFit        = errors.New("control points are collinear or duplicated")
	ErrInvalidCorners     = errors.New("corner bounds have zero extent")
	ErrInvalidPoint       = errors.New("control point has non-finite coordinates")
)

// MinControlPoints is the minimum number of control points for an affine fit.
const MinControlPoints = 3

// Calibration is an immutable geographic ↔ planar transform. The zero value
// is not usable; build one with FitAffine, NewCorners or NewIdentity.
type Calibration struct {
	strategy   Strategy
	degenerate bool
	forward    Matrix // [u v 1] → [x y 1], u = lng, v = lat or mercator lat
	inverse    Matrix
	residual   float64
	points     int
}

// NewIdentity returns the identity transform. degenerate marks it as a
// fallback that should not be trusted for navigation.
func NewIdentity(degenerate bool) *Calibration {
	return &Calibration{
		strategy:   StrategyIdentity,
		degenerate: degenerate,
		forward:    Identity(3),
		inverse:    Identity(3),
	}
}

// NewCorners builds the corner-interpolation transform: the bounds' west,
// north corner maps to (MinX, MinY) and the east, south corner to the far
// corner of the view box.
func NewCorners(b model.GeoBounds, vb model.ViewBox) (*Calibration, error) {
	lngSpan := b.East - b.West
	latSpan := b.North - b.South
	if lngSpan == 0 || latSpan == 0 || vb.Width == 0 || vb.Height == 0 {
		return nil, ErrInvalidCorners
	}
	sx := vb.Width / lngSpan
	sy := -vb.Height / latSpan
	forward := Matrix{
		{sx, 0, vb.MinX - b.West*sx},
		{0, sy, vb.MinY - b.North*sy},
		{0, 0, 1},
	}
	inverse, err := Invert(forward)
	if err != nil {
		return nil, ErrInvalidCorners
	}
	return &Calibration{
		strategy: StrategyCorners,
		forward:  forward,
		inverse:  inverse,
		points:   4,
	}, nil
}

// Strategy reports which transform is active.
func (c *Calibration) Strategy() Strategy { return c.strategy }

// Degenerate reports whether this calibration is a fallback produced from
// unusable input.
func (c *Calibration) Degenerate() bool { return c.degenerate }

// Residual is the RMS planar error of the fit over its control points.
func (c *Calibration) Residual() float64 { return c.residual }

// PointCount is the number of control points the transform was derived from.
func (c *Calibration) PointCount() int { return c.points }

// Coefficients returns a1..a6 of x = a1·u + a2·v + a3, y = a4·u + a5·v + a6.
func (c *Calibration) Coefficients() [6]float64 {
	f := c.forward
	return [6]float64{f[0][0], f[0][1], f[0][2], f[1][0], f[1][1], f[1][2]}
}

func (c *Calibration) mercator() bool {
	return c.strategy == StrategyMercatorAffine
}

// Project maps a geographic point into render space. The point is normalized
// first; the result is not clamped to any view box.
func (c *Calibration) Project(g model.GeoPoint) model.PlanarPoint {
	if n, ok := utils.NormalizeGeo(g); ok {
		g = n
	}
	u, v := g.Lng, g.Lat
	if c.mercator() {
		v = mercatorY(v)
	}
	f := c.forward
	return model.PlanarPoint{
		X: f[0][0]*u + f[0][1]*v + f[0][2],
		Y: f[1][0]*u + f[1][1]*v + f[1][2],
	}
}

// Unproject maps a render-space point back to geographic coordinates.
func (c *Calibration) Unproject(p model.PlanarPoint) model.GeoPoint {
	m := c.inverse
	u := m[0][0]*p.X + m[0][1]*p.Y + m[0][2]
	v := m[1][0]*p.X + m[1][1]*p.Y + m[1][2]
	if c.mercator() {
		v = inverseMercatorY(v)
	}
	return model.GeoPoint{Lat: v, Lng: u}
}

// String is used in logs.
func (c *Calibration) String() string {
	return fmt.Sprintf("%s(points=%d, residual=%.4f, degenerate=%t)", c.strategy, c.points, c.residual, c.degenerate)
}

// mercatorY is the Web Mercator y of a latitude, scaled back to degrees so
// the normal matrix stays well conditioned next to longitude.
func mercatorY(lat float64) float64 {
	lat = math.Max(-85.05112878, math.Min(85.05112878, lat))
	r := utils.DegreesToRadians(lat)
	return math.Log(math.Tan(math.Pi/4+r/2)) * 180 / math.Pi
}

func inverseMercatorY(y float64) float64 {
	return (2*math.Atan(math.Exp(y*math.Pi/180)) - math.Pi/2) * 180 / math.Pi
}
