package handler

import (
	"errors"
	"net/http"

	"precinct-nav/calib"
	"precinct-nav/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CalibrationResponse struct {
	Strategy     calib.Strategy `json:"strategy"`
	Degenerate   bool           `json:"degenerate"`
	Residual     float64        `json:"residual"`
	PointCount   int            `json:"point_count"`
	Coefficients [6]float64     `json:"coefficients"`
}

func calibrationResponse(cal *calib.Calibration) CalibrationResponse {
	return CalibrationResponse{
		Strategy:     cal.Strategy(),
		Degenerate:   cal.Degenerate(),
		Residual:     cal.Residual(),
		PointCount:   cal.PointCount(),
		Coefficients: cal.Coefficients(),
	}
}

// Project maps a geographic point into render space.
func (s *Server) Project(c *gin.Context) {
	var req model.GeoPoint
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	cal := s.calibrator.Current()
	p := cal.Project(req)
	c.JSON(http.StatusOK, gin.H{
		"point":       p,
		"in_view_box": s.calibrator.ViewBox().Contains(p),
		"degenerate":  cal.Degenerate(),
	})
}

// Unproject maps a render-space point to geographic coordinates.
func (s *Server) Unproject(c *gin.Context) {
	var req model.PlanarPoint
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	cal := s.calibrator.Current()
	c.JSON(http.StatusOK, gin.H{
		"point":      cal.Unproject(req),
		"degenerate": cal.Degenerate(),
	})
}

func (s *Server) GetCalibration(c *gin.Context) {
	c.JSON(http.StatusOK, calibrationResponse(s.calibrator.Current()))
}

// CalibrateRequest carries either a control point survey or corner bounds.
type CalibrateRequest struct {
	Points   []model.CalibrationPoint `json:"points"`
	Mercator bool                     `json:"mercator"`
	Corners  *model.GeoBounds         `json:"corners,omitempty"`
}

// Calibrate replaces the active calibration. A rejected survey answers 422
// and leaves the previous calibration in place.
func (s *Server) Calibrate(c *gin.Context) {
	var req CalibrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	var err error
	if req.Corners != nil {
		err = s.calibrator.UseCorners(*req.Corners)
	} else {
		err = s.calibrator.Calibrate(req.Points, req.Mercator)
	}
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  err.Error(),
			"active": calibrationResponse(s.calibrator.Current()),
		})
		return
	}

	if s.points != nil && req.Corners == nil {
		if err := s.points.ReplaceControlPoints(c.Request.Context(), req.Points); err != nil {
			s.logger.Error("failed to persist control points", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "calibration applied but not saved"})
			return
		}
	}
	c.JSON(http.StatusOK, calibrationResponse(s.calibrator.Current()))
}

// ReloadGraph rebuilds the active State from the configured source.
func (s *Server) ReloadGraph(c *gin.Context) {
	st, err := s.Reload(c.Request.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrNoLoader) {
			status = http.StatusNotImplemented
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"version": st.Graph.Version,
		"stats":   st.Stats,
	})
}
