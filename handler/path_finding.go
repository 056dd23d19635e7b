package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"precinct-nav/algo"
	"precinct-nav/cache"
	"precinct-nav/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PointInput is a query endpoint: either lat/lng, or x/y in render space
// (optionally on a building floor for hybrid queries).
type PointInput struct {
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
	X          *float64 `json:"x,omitempty"`
	Y          *float64 `json:"y,omitempty"`
	BuildingID string   `json:"building_id,omitempty"`
	FloorID    string   `json:"floor_id,omitempty"`
}

func (p PointInput) geo() (model.GeoPoint, bool) {
	if p.Lat == nil || p.Lng == nil {
		return model.GeoPoint{}, false
	}
	return model.GeoPoint{Lat: *p.Lat, Lng: *p.Lng}, true
}

func (p PointInput) planar() (model.PlanarPoint, bool) {
	if p.X == nil || p.Y == nil {
		return model.PlanarPoint{}, false
	}
	return model.PlanarPoint{X: *p.X, Y: *p.Y}, true
}

var errBadPoint = errors.New("point needs lat/lng or x/y")

// PathRequest is an outdoor route query.
type PathRequest struct {
	Start      PointInput `json:"start"`
	End        PointInput `json:"end"`
	StartRef   string     `json:"start_ref,omitempty"`
	EndRef     string     `json:"end_ref,omitempty"`
	LinearScan bool       `json:"linear_scan,omitempty"`
}

type PathNode struct {
	ID    string   `json:"id"`
	Label string   `json:"label,omitempty"`
	Type  string   `json:"type"`
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	Lat   *float64 `json:"lat,omitempty"`
	Lng   *float64 `json:"lng,omitempty"`
}

func toPathNode(n model.Node) PathNode {
	out := PathNode{ID: n.ID, Label: n.Label, Type: n.Type, X: n.X, Y: n.Y}
	if n.Geo != nil {
		lat, lng := n.Geo.Lat, n.Geo.Lng
		out.Lat, out.Lng = &lat, &lng
	}
	return out
}

type PathResponse struct {
	Found       bool               `json:"found"`
	Strategy    algo.Strategy      `json:"strategy"`
	Reason      algo.FailureReason `json:"reason,omitempty"`
	Path        []PathNode         `json:"path"`
	Distance    float64            `json:"distance"`
	Diagnostics algo.Diagnostics   `json:"diagnostics"`
	Version     string             `json:"graph_version"`
	Cached      bool               `json:"cached"`
}

// resolvePoint projects geographic input through the active calibration.
func (s *Server) resolvePoint(p PointInput) (model.PlanarPoint, error) {
	if g, ok := p.geo(); ok {
		return s.calibrator.Project(g), nil
	}
	if pp, ok := p.planar(); ok {
		return pp, nil
	}
	return model.PlanarPoint{}, errBadPoint
}

// computeRoute answers a PathRequest against st, using the route cache.
func (s *Server) computeRoute(ctx context.Context, st *State, req PathRequest) (PathResponse, error) {
	start, err := s.resolvePoint(req.Start)
	if err != nil {
		return PathResponse{}, err
	}
	end, err := s.resolvePoint(req.End)
	if err != nil {
		return PathResponse{}, err
	}
	q := algo.Query{Start: start, End: end, StartRef: req.StartRef, EndRef: req.EndRef}

	key := cache.RouteKey(st.Graph.Version, q)
	var cached PathResponse
	if found, err := s.cache.GetJSON(ctx, key, &cached); err == nil && found {
		cached.Cached = true
		return cached, nil
	}

	res := st.Graph.FindRoute(q, algo.Options{Radii: s.opts.Radii, LinearScan: req.LinearScan})
	resp := PathResponse{
		Found:       res.Found,
		Strategy:    res.Diagnostics.Strategy,
		Reason:      res.Diagnostics.Reason,
		Path:        make([]PathNode, 0, len(res.Nodes)),
		Distance:    res.Distance,
		Diagnostics: res.Diagnostics,
		Version:     st.Graph.Version,
	}
	for _, n := range res.Nodes {
		resp.Path = append(resp.Path, toPathNode(n))
	}
	if err := s.cache.SetJSON(ctx, key, resp); err != nil {
		s.logger.Debug("route not cached", zap.Error(err))
	}
	return resp, nil
}

// FindPath answers an outdoor route query. A missing route is a 200 with
// found=false and diagnostics, not an error.
func (s *Server) FindPath(c *gin.Context) {
	var req PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	st, ok := s.withState(c)
	if !ok {
		return
	}
	resp, err := s.computeRoute(c.Request.Context(), st, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetNodes(c *gin.Context) {
	st, ok := s.withState(c)
	if !ok {
		return
	}
	ids := st.Graph.NodeIDs()
	nodes := make([]PathNode, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, toPathNode(st.Graph.Nodes[id]))
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(nodes),
		"nodes": nodes,
	})
}

func (s *Server) GetNodeByID(c *gin.Context) {
	st, ok := s.withState(c)
	if !ok {
		return
	}
	n, found := st.Graph.Nodes[c.Param("id")]
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"node":      toPathNode(n),
		"neighbors": st.Graph.Neighbors(n.ID),
	})
}

// SearchNodes matches the query against node labels and ids,
// case-insensitively.
func (s *Server) SearchNodes(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}
	st, ok := s.withState(c)
	if !ok {
		return
	}

	needle := strings.ToLower(query)
	results := make([]PathNode, 0)
	for _, id := range st.Graph.NodeIDs() {
		n := st.Graph.Nodes[id]
		if strings.Contains(strings.ToLower(n.Label), needle) || strings.Contains(strings.ToLower(n.ID), needle) {
			results = append(results, toPathNode(n))
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

// GraphReport returns the validation summary of the active graphs.
func (s *Server) GraphReport(c *gin.Context) {
	st, ok := s.withState(c)
	if !ok {
		return
	}
	resp := gin.H{
		"version":   st.Graph.Version,
		"loaded_at": st.LoadedAt,
		"stats":     st.Stats,
		"warnings":  st.Warnings,
	}
	if st.HybridReport != nil {
		resp["hybrid"] = st.HybridReport
	}
	c.JSON(http.StatusOK, resp)
}
