package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"precinct-nav/algo"
	"precinct-nav/cache"
	"precinct-nav/calib"
	"precinct-nav/hybrid"
	"precinct-nav/metrics"
	"precinct-nav/model"
	"precinct-nav/worker"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var ErrNoLoader = errors.New("no graph loader configured")

// State is one loaded snapshot of the routing data. It is never mutated
// after it is installed; reloads install a new State.
type State struct {
	Graph        *algo.Graph
	Stats        algo.Stats
	Warnings     []string
	Hybrid       *hybrid.Graph
	StepFree     *hybrid.Graph // hybrid graph without stairs or inaccessible entrances
	HybridReport *hybrid.Report
	LoadedAt     time.Time
}

// Loader produces a fresh State, at startup and on every reload.
type Loader func(ctx context.Context) (*State, error)

// ControlPointStore persists accepted calibration surveys.
type ControlPointStore interface {
	ReplaceControlPoints(ctx context.Context, points []model.CalibrationPoint) error
}

type versionCache interface {
	DeleteVersion(ctx context.Context, version string) error
}

type Options struct {
	Radii             []float64
	JWTSecret         string
	AdminUser         string
	AdminPasswordHash string
	TokenTTL          time.Duration
}

// Server serves the wayfinding API over the active State.
type Server struct {
	state      atomic.Pointer[State]
	calibrator *calib.Calibrator
	cache      cache.RouteCache
	pool       *worker.Pool
	loader     Loader
	points     ControlPointStore
	opts       Options
	logger     *zap.Logger

	reloadMu sync.Mutex
}

// New creates a server. cache may be nil; pool is required for websocket
// routing.
func New(cal *calib.Calibrator, rc cache.RouteCache, pool *worker.Pool, loader Loader, opts Options, logger *zap.Logger) *Server {
	if rc == nil {
		rc = cache.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 12 * time.Hour
	}
	return &Server{
		calibrator: cal,
		cache:      rc,
		pool:       pool,
		loader:     loader,
		opts:       opts,
		logger:     logger.With(zap.String("component", "http")),
	}
}

// SetControlPointStore enables persisting admin calibrations.
func (s *Server) SetControlPointStore(p ControlPointStore) {
	s.points = p
}

// State returns the active snapshot, or nil before the first load.
func (s *Server) State() *State {
	return s.state.Load()
}

// SetState installs st. The previous graph's spatial index is dropped so it
// is never reused against a replaced graph.
func (s *Server) SetState(st *State) {
	if st.LoadedAt.IsZero() {
		st.LoadedAt = time.Now()
	}
	old := s.state.Swap(st)
	if old != nil && old.Graph != nil && old.Graph != st.Graph {
		old.Graph.Invalidate()
		if vc, ok := s.cache.(versionCache); ok && old.Graph.Version != st.Graph.Version {
			if err := vc.DeleteVersion(context.Background(), old.Graph.Version); err != nil {
				s.logger.Warn("failed to evict cached routes", zap.String("version", old.Graph.Version), zap.Error(err))
			}
		}
	}
	metrics.GraphNodes.WithLabelValues("outdoor").Set(float64(len(st.Graph.Nodes)))
	s.logger.Info("graph installed",
		zap.String("version", st.Graph.Version),
		zap.Int("nodes", st.Stats.NodeCount),
		zap.Int("edges", st.Stats.EdgeCount),
		zap.Int("isolated", len(st.Stats.IsolatedNodes)))
}

// Reload runs the loader and installs its result. Concurrent reloads are
// serialised.
func (s *Server) Reload(ctx context.Context) (*State, error) {
	if s.loader == nil {
		return nil, ErrNoLoader
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	st, err := s.loader(ctx)
	if err != nil {
		metrics.GraphReloadsTotal.WithLabelValues("error").Inc()
		s.logger.Error("graph reload failed, keeping the active graph", zap.Error(err))
		return nil, err
	}
	s.SetState(st)
	metrics.GraphReloadsTotal.WithLabelValues("ok").Inc()
	return st, nil
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	s.setupRoutes(r)
	return r
}

// Handler is Router wrapped with response compression.
func (s *Server) Handler() http.Handler {
	wrapper, err := gzhttp.NewWrapper(
		gzhttp.MinSize(1024),
		gzhttp.CompressionLevel(6),
	)
	if err != nil {
		s.logger.Warn("compression disabled", zap.Error(err))
		return s.Router()
	}
	return wrapper(s.Router())
}

func (s *Server) setupRoutes(r *gin.Engine) {
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/ping", func(c *gin.Context) {
		st := s.State()
		resp := gin.H{"message": "pong", "status": "ok"}
		if st != nil {
			resp["graph_version"] = st.Graph.Version
		}
		c.JSON(http.StatusOK, resp)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.POST("/login", s.Login)

		api.POST("/project", s.Project)
		api.POST("/unproject", s.Unproject)
		api.GET("/calibration", s.GetCalibration)

		api.POST("/path/find", s.FindPath)
		api.POST("/path/hybrid", s.FindHybridPath)
		api.GET("/nodes", s.GetNodes)
		api.GET("/nodes/search", s.SearchNodes)
		api.GET("/nodes/:id", s.GetNodeByID)
		api.GET("/graph/report", s.GraphReport)

		api.GET("/ws/route", s.ServeRouteWS)

		admin := api.Group("/admin")
		admin.Use(s.AuthMiddleware())
		{
			admin.POST("/calibrate", s.Calibrate)
			admin.POST("/reload", s.ReloadGraph)
		}
	}
}

// withState aborts with 503 until a graph is loaded.
func (s *Server) withState(c *gin.Context) (*State, bool) {
	st := s.State()
	if st == nil || st.Graph == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "map data not loaded"})
		return nil, false
	}
	return st, true
}
