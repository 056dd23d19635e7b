package cli

import (
	"context"
	"fmt"

	"precinct-nav/algo"
	"precinct-nav/calib"
	"precinct-nav/config"
	"precinct-nav/db"
	"precinct-nav/handler"
	"precinct-nav/hybrid"
	"precinct-nav/model"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// sources loads the routing data named by the configuration. store is only
// set when the graph lives in postgres.
type sources struct {
	cfg    *config.Config
	store  *db.Store
	logger *zap.Logger
}

// load reads the outdoor graph, buildings and entrances concurrently, then
// fuses them. Buildings are optional; without them there is no hybrid graph.
func (s *sources) load(ctx context.Context) (*handler.State, error) {
	var (
		graph      *algo.Graph
		warnings   []string
		buildings  map[string]*hybrid.Building
		indoorWarn []string
		entrances  []model.Entrance
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		g, w, err := s.loadGraph(ctx)
		graph, warnings = g, w
		return err
	})
	eg.Go(func() error {
		if s.cfg.IndoorDir == "" {
			return nil
		}
		b, w, err := hybrid.LoadIndoorDir(s.cfg.IndoorDir)
		buildings, indoorWarn = b, w
		return err
	})
	eg.Go(func() error {
		e, err := s.loadEntrances(ctx)
		entrances = e
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	st := &handler.State{
		Graph:    graph,
		Stats:    graph.Stats(),
		Warnings: append(append([]string{}, warnings...), indoorWarn...),
	}
	for _, w := range st.Warnings {
		s.logger.Warn("map data defect", zap.String("warning", w))
	}

	if len(buildings) > 0 {
		opts := hybridOptions(s.cfg, s.logger)
		hg, report := hybrid.BuildHybridGraph(graph, entrances, buildings, opts)
		opts.AccessibleOnly = true
		stepFree, _ := hybrid.BuildHybridGraph(graph, entrances, buildings, opts)
		st.Hybrid, st.StepFree, st.HybridReport = hg, stepFree, &report
	}
	return st, nil
}

func (s *sources) loadGraph(ctx context.Context) (*algo.Graph, []string, error) {
	if s.cfg.GraphSource == config.SourceDB {
		if s.store == nil {
			return nil, nil, fmt.Errorf("graph source is %q but no database is open", config.SourceDB)
		}
		return s.store.LoadGraph(ctx, "")
	}
	return algo.LoadFromJSON(s.cfg.GraphFile)
}

func (s *sources) loadEntrances(ctx context.Context) ([]model.Entrance, error) {
	switch {
	case s.cfg.EntrancesFile != "":
		return hybrid.LoadEntrances(s.cfg.EntrancesFile)
	case s.store != nil:
		return s.store.Entrances(ctx)
	}
	return nil, nil
}

func hybridOptions(c *config.Config, l *zap.Logger) hybrid.Options {
	opts := hybrid.DefaultOptions()
	opts.GeoThreshold = c.PortalGeoThreshold
	opts.PlanarThreshold = c.PortalPlanarThreshold
	opts.EntryCost = c.PortalEntryCost
	opts.GeoRadius = c.HybridGeoRadius
	opts.Radii = c.SearchRadii
	opts.Logger = l
	return opts
}

// newCalibrator prefers the survey file, then control points stored in the
// database. With neither, geographic queries run through a flagged identity.
func newCalibrator(ctx context.Context, c *config.Config, store *db.Store, vb model.ViewBox, l *zap.Logger) (*calib.Calibrator, error) {
	if c.CalibrationFile != "" {
		return calib.LoadFile(c.CalibrationFile, l)
	}
	cal := calib.NewCalibrator(vb, l)
	if store != nil {
		points, err := store.ControlPoints(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load control points: %w", err)
		}
		if len(points) > 0 {
			// a stored survey that no longer fits is logged by the calibrator
			_ = cal.Calibrate(points, false)
			return cal, nil
		}
	}
	l.Warn("no calibration configured, geographic queries use a degenerate identity transform")
	return cal, nil
}
