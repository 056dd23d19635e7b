package calib

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"precinct-nav/metrics"
	"precinct-nav/model"

	"go.uber.org/zap"
)

// Calibrator owns the active calibration for one precinct map. Several
// calibrators can coexist; nothing here is process-global.
type Calibrator struct {
	mu      sync.RWMutex
	current *Calibration
	points  []model.CalibrationPoint
	viewBox model.ViewBox
	logger  *zap.Logger
}

// NewCalibrator starts with a degenerate identity transform until the first
// successful calibration.
func NewCalibrator(vb model.ViewBox, logger *zap.Logger) *Calibrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calibrator{
		current: NewIdentity(true),
		viewBox: vb,
		logger:  logger.With(zap.String("component", "calibrator")),
	}
}

// Calibrate fits a new affine transform. With fewer than 3 points or a
// singular fit the call is rejected and the prior calibration stays active,
// except that a singular fit replaces an uncalibrated identity with a flagged
// one.
func (c *Calibrator) Calibrate(points []model.CalibrationPoint, mercator bool) error {
	cal, err := FitAffine(points, mercator)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		metrics.CalibrationsTotal.WithLabelValues("rejected").Inc()
		c.logger.Error("calibration rejected, keeping previous transform",
			zap.Int("points", len(points)),
			zap.Stringer("active", c.current),
			zap.Error(err))
		if errors.Is(err, ErrSingularFit) && c.current.Degenerate() && cal != nil {
			c.current = cal
		}
		return fmt.Errorf("calibrate: %w", err)
	}

	c.current = cal
	c.points = append([]model.CalibrationPoint(nil), points...)
	metrics.CalibrationsTotal.WithLabelValues("accepted").Inc()
	c.logger.Info("calibration updated",
		zap.String("strategy", string(cal.Strategy())),
		zap.Int("points", len(points)),
		zap.Float64("residual", cal.Residual()))
	return nil
}

// UseCorners switches to corner interpolation. This is an explicit choice and
// is reported through Strategy; it never happens implicitly.
func (c *Calibrator) UseCorners(b model.GeoBounds) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cal, err := NewCorners(b, c.viewBox)
	if err != nil {
		metrics.CalibrationsTotal.WithLabelValues("rejected").Inc()
		c.logger.Error("corner calibration rejected", zap.Error(err))
		return fmt.Errorf("corner calibration: %w", err)
	}
	c.current = cal
	c.points = nil
	metrics.CalibrationsTotal.WithLabelValues("accepted").Inc()
	c.logger.Warn("using corner interpolation; accuracy degrades away from the box axes")
	return nil
}

// Current returns the active calibration. The value is immutable and safe to
// keep across a later recalibration.
func (c *Calibrator) Current() *Calibration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// ControlPoints returns a copy of the points behind the active affine fit.
func (c *Calibrator) ControlPoints() []model.CalibrationPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.CalibrationPoint(nil), c.points...)
}

// ViewBox returns the render-space bounds this calibrator maps into.
func (c *Calibrator) ViewBox() model.ViewBox {
	return c.viewBox
}

// Project maps through the active calibration.
func (c *Calibrator) Project(g model.GeoPoint) model.PlanarPoint {
	return c.Current().Project(g)
}

// Unproject maps through the active calibration.
func (c *Calibrator) Unproject(p model.PlanarPoint) model.GeoPoint {
	return c.Current().Unproject(p)
}

// FileConfig is the on-disk survey file.
type FileConfig struct {
	ViewBox  model.ViewBox            `json:"view_box"`
	Strategy Strategy                 `json:"strategy"`
	Points   []model.CalibrationPoint `json:"points,omitempty"`
	Corners  *model.GeoBounds         `json:"corners,omitempty"`
}

// LoadFile reads a survey file and returns a calibrator configured from it.
func LoadFile(path string, logger *zap.Logger) (*Calibrator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}
	var fc FileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse calibration file: %w", err)
	}
	return fc.Build(logger)
}

// Build applies the file config to a new calibrator.
func (fc FileConfig) Build(logger *zap.Logger) (*Calibrator, error) {
	c := NewCalibrator(fc.ViewBox, logger)
	switch fc.Strategy {
	case StrategyCorners:
		if fc.Corners == nil {
			return nil, fmt.Errorf("strategy %q needs corners", fc.Strategy)
		}
		if err := c.UseCorners(*fc.Corners); err != nil {
			return nil, err
		}
	case StrategyAffine, StrategyMercatorAffine, "":
		if err := c.Calibrate(fc.Points, fc.Strategy == StrategyMercatorAffine); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown calibration strategy %q", fc.Strategy)
	}
	return c, nil
}
