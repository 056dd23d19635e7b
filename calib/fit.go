package calib

import (
	"math"

	"precinct-nav/model"
	"precinct-nav/utils"
)

// FitAffine solves the least-squares affine fit
//
//	x = a1·lng + a2·lat + a3
//	y = a4·lng + a5·lat + a6
//
// through the 3×3 normal equations. With mercator set, lat is replaced by its
// Web Mercator ordinate. Inputs are centred and scaled before the solve and
// the coefficients are mapped back afterwards.
//
// On collinear or duplicate points it returns a degenerate identity
// calibration together with ErrSingularFit, so callers can choose between
// rejecting the result and installing the flagged fallback.
func FitAffine(points []model.CalibrationPoint, mercator bool) (*Calibration, error) {
	if len(points) < MinControlPoints {
		return nil, ErrInsufficientPoints
	}

	us := make([]float64, len(points))
	vs := make([]float64, len(points))
	for i, p := range points {
		g, ok := utils.NormalizeGeo(p.Geo)
		if !ok || !utils.IsFinite(p.Planar.X) || !utils.IsFinite(p.Planar.Y) {
			return nil, ErrInvalidPoint
		}
		us[i], vs[i] = g.Lng, g.Lat
		if mercator {
			vs[i] = mercatorY(g.Lat)
		}
	}

	mu, su := centre(us)
	mv, sv := centre(vs)
	if su == 0 || sv == 0 {
		return NewIdentity(true), ErrSingularFit
	}

	normal := Matrix{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}}
	bx := make([]float64, 3)
	by := make([]float64, 3)
	for i, p := range points {
		row := [3]float64{(us[i] - mu) / su, (vs[i] - mv) / sv, 1}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				normal[r][c] += row[r] * row[c]
			}
			bx[r] += row[r] * p.Planar.X
			by[r] += row[r] * p.Planar.Y
		}
	}

	cx, err := Solve(normal, bx)
	if err != nil {
		return NewIdentity(true), ErrSingularFit
	}
	cy, err := Solve(normal, by)
	if err != nil {
		return NewIdentity(true), ErrSingularFit
	}

	a1, a2 := cx[0]/su, cx[1]/sv
	a4, a5 := cy[0]/su, cy[1]/sv
	forward := Matrix{
		{a1, a2, cx[2] - a1*mu - a2*mv},
		{a4, a5, cy[2] - a4*mu - a5*mv},
		{0, 0, 1},
	}
	inverse, err := Invert(forward)
	if err != nil {
		return NewIdentity(true), ErrSingularFit
	}

	strategy := StrategyAffine
	if mercator {
		strategy = StrategyMercatorAffine
	}
	c := &Calibration{
		strategy: strategy,
		forward:  forward,
		inverse:  inverse,
		points:   len(points),
	}
	c.residual = rmsResidual(c, points)
	return c, nil
}

// centre returns the mean and the largest absolute deviation from it.
func centre(vals []float64) (mean, spread float64) {
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	for _, v := range vals {
		spread = math.Max(spread, math.Abs(v-mean))
	}
	return mean, spread
}

func rmsResidual(c *Calibration, points []model.CalibrationPoint) float64 {
	sum := 0.0
	for _, p := range points {
		got := c.Project(p.Geo)
		d := utils.PlanarDistance(got, p.Planar)
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(points)))
}
