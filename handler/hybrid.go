package handler

import (
	"context"
	"errors"
	"net/http"

	"precinct-nav/cache"
	"precinct-nav/hybrid"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HybridRequest is a route query across outdoor paths and buildings.
// Indoor endpoints give x/y with building_id and floor_id.
type HybridRequest struct {
	Start      PointInput `json:"start"`
	End        PointInput `json:"end"`
	Accessible bool       `json:"accessible"`
}

type HybridResponse struct {
	Found      bool          `json:"found"`
	Reason     string        `json:"reason,omitempty"`
	Route      *hybrid.Route `json:"route,omitempty"`
	Accessible bool          `json:"accessible"`
	Version    string        `json:"graph_version"`
	Cached     bool          `json:"cached"`
}

var errNoHybrid = errors.New("hybrid graph not loaded")

func toEndpoint(p PointInput) (hybrid.Endpoint, error) {
	if g, ok := p.geo(); ok {
		return hybrid.Endpoint{Geo: &g}, nil
	}
	if pp, ok := p.planar(); ok {
		if p.BuildingID == "" || p.FloorID == "" {
			return hybrid.Endpoint{}, errors.New("indoor point needs building_id and floor_id")
		}
		return hybrid.Endpoint{Planar: &pp, BuildingID: p.BuildingID, FloorID: p.FloorID}, nil
	}
	return hybrid.Endpoint{}, errBadPoint
}

// computeHybrid answers a HybridRequest. Unresolved endpoints and missing
// routes come back as found=false with a reason.
func (s *Server) computeHybrid(ctx context.Context, st *State, req HybridRequest) (HybridResponse, error) {
	g := st.Hybrid
	if req.Accessible {
		g = st.StepFree
	}
	if g == nil {
		return HybridResponse{}, errNoHybrid
	}
	start, err := toEndpoint(req.Start)
	if err != nil {
		return HybridResponse{}, err
	}
	end, err := toEndpoint(req.End)
	if err != nil {
		return HybridResponse{}, err
	}

	key := cache.HybridKey(st.Graph.Version, start, end, req.Accessible)
	var cached HybridResponse
	if found, err := s.cache.GetJSON(ctx, key, &cached); err == nil && found {
		cached.Cached = true
		return cached, nil
	}

	resp := HybridResponse{Accessible: req.Accessible, Version: st.Graph.Version}
	route, err := g.FindRoute(start, end)
	switch {
	case err == nil:
		resp.Found = true
		resp.Route = route
	case errors.Is(err, hybrid.ErrEndpointUnresolved):
		resp.Reason = "endpoint_unresolved"
	case errors.Is(err, hybrid.ErrNoRoute):
		resp.Reason = "no_route"
	default:
		return HybridResponse{}, err
	}
	if err := s.cache.SetJSON(ctx, key, resp); err != nil {
		s.logger.Debug("hybrid route not cached", zap.Error(err))
	}
	return resp, nil
}

func (s *Server) FindHybridPath(c *gin.Context) {
	var req HybridRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	st, ok := s.withState(c)
	if !ok {
		return
	}
	resp, err := s.computeHybrid(c.Request.Context(), st, req)
	if errors.Is(err, errNoHybrid) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}
