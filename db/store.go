package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"precinct-nav/algo"
	"precinct-nav/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var ErrNoGraph = errors.New("no graph stored")

// Store persists built graphs, calibration control points and entrances.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to postgres, retrying while the database starts up, and
// migrates the schema.
func Open(ctx context.Context, dsn string, maxRetries int, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var (
		gdb *gorm.DB
		err error
	)
	for i := 0; i < maxRetries; i++ {
		gdb, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err == nil {
			break
		}
		logger.Warn("waiting for database", zap.Int("attempt", i+1), zap.Int("max", maxRetries), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := NewStore(gdb, logger)
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	logger.Info("database ready")
	return s, nil
}

// NewStore wraps an existing connection.
func NewStore(gdb *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: gdb, logger: logger}
}

func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&GraphVersionRecord{},
		&NodeRecord{},
		&EdgeRecord{},
		&RouteRecord{},
		&CalibrationPointRecord{},
		&EntranceRecord{},
	)
	if err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveGraph stores a graph under its version. Saving a version again
// replaces it.
func (s *Store) SaveGraph(ctx context.Context, g *algo.Graph) error {
	recs := toRecords(g.ToMapData())
	if recs.version.Version == "" {
		return fmt.Errorf("graph has no version")
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v := recs.version.Version
		for _, m := range []any{&NodeRecord{}, &EdgeRecord{}, &RouteRecord{}, &GraphVersionRecord{}} {
			if err := tx.Where("version = ?", v).Delete(m).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(&recs.version).Error; err != nil {
			return err
		}
		if len(recs.nodes) > 0 {
			if err := tx.CreateInBatches(recs.nodes, 500).Error; err != nil {
				return err
			}
		}
		if len(recs.edges) > 0 {
			if err := tx.CreateInBatches(recs.edges, 500).Error; err != nil {
				return err
			}
		}
		if len(recs.routes) > 0 {
			if err := tx.CreateInBatches(recs.routes, 100).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save graph %s: %w", recs.version.Version, err)
	}
	s.logger.Info("graph stored",
		zap.String("version", recs.version.Version),
		zap.Int("nodes", len(recs.nodes)),
		zap.Int("edges", len(recs.edges)),
		zap.Int("routes", len(recs.routes)))
	return nil
}

// LoadGraph loads a stored graph; an empty version selects the newest.
// Predefined routes are revalidated against the loaded adjacency.
func (s *Store) LoadGraph(ctx context.Context, version string) (*algo.Graph, []string, error) {
	tx := s.db.WithContext(ctx)
	var recs graphRecords

	q := tx.Model(&GraphVersionRecord{})
	if version != "" {
		q = q.Where("version = ?", version)
	} else {
		q = q.Order("created_at desc").Order("id desc")
	}
	if err := q.First(&recs.version).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNoGraph
		}
		return nil, nil, fmt.Errorf("failed to load graph version: %w", err)
	}

	v := recs.version.Version
	if err := tx.Where("version = ?", v).Order("id").Find(&recs.nodes).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load nodes: %w", err)
	}
	if err := tx.Where("version = ?", v).Order("id").Find(&recs.edges).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load edges: %w", err)
	}
	if err := tx.Where("version = ?", v).Order("id").Find(&recs.routes).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load routes: %w", err)
	}

	g, warnings := algo.FromMapData(fromRecords(recs))
	for _, w := range warnings {
		s.logger.Warn("stored graph defect", zap.String("version", v), zap.String("warning", w))
	}
	return g, warnings, nil
}

// ReplaceControlPoints swaps the stored calibration survey.
func (s *Store) ReplaceControlPoints(ctx context.Context, points []model.CalibrationPoint) error {
	recs := make([]CalibrationPointRecord, len(points))
	for i, p := range points {
		recs[i] = CalibrationPointRecord{Name: p.Name, Lat: p.Geo.Lat, Lng: p.Geo.Lng, X: p.Planar.X, Y: p.Planar.Y}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&CalibrationPointRecord{}).Error; err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		return tx.Create(&recs).Error
	})
}

func (s *Store) ControlPoints(ctx context.Context) ([]model.CalibrationPoint, error) {
	var recs []CalibrationPointRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to load control points: %w", err)
	}
	out := make([]model.CalibrationPoint, len(recs))
	for i, r := range recs {
		out[i] = model.CalibrationPoint{
			Name:   r.Name,
			Geo:    model.GeoPoint{Lat: r.Lat, Lng: r.Lng},
			Planar: model.PlanarPoint{X: r.X, Y: r.Y},
		}
	}
	return out, nil
}

// ReplaceEntrances swaps the stored entrance records. The whole set is
// rejected when any entrance lacks an id or building, or is listed twice.
func (s *Store) ReplaceEntrances(ctx context.Context, entrances []model.Entrance) error {
	recs, err := entranceRecords(entrances)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&EntranceRecord{}).Error; err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		return tx.CreateInBatches(recs, 100).Error
	})
	if err != nil {
		return fmt.Errorf("failed to store entrances: %w", err)
	}
	s.logger.Info("entrances stored", zap.Int("count", len(recs)))
	return nil
}

func (s *Store) Entrances(ctx context.Context) ([]model.Entrance, error) {
	var recs []EntranceRecord
	if err := s.db.WithContext(ctx).Order("building_id").Order("entrance_id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to load entrances: %w", err)
	}
	out := make([]model.Entrance, len(recs))
	for i, r := range recs {
		out[i] = r.toModel()
	}
	return out, nil
}

func sortedIDs[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
