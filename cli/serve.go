package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"precinct-nav/cache"
	"precinct-nav/config"
	"precinct-nav/db"
	"precinct-nav/handler"
	"precinct-nav/notify"
	"precinct-nav/worker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wayfinding HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	logger.Info("starting precinct-nav server",
		zap.String("log_level", cfg.LogLevel.String()),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("graph_source", cfg.GraphSource),
		zap.Bool("redis_enabled", cfg.RedisEnabled),
		zap.Bool("admin_enabled", cfg.AdminEnabled()),
	)

	var store *db.Store
	if cfg.GraphSource == config.SourceDB {
		s, err := db.Open(ctx, cfg.DSN(), 5, logger)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	src := &sources{cfg: cfg, store: store, logger: logger}
	st, err := src.load(ctx)
	if err != nil {
		return err
	}

	cal, err := newCalibrator(ctx, cfg, store, st.Graph.ViewBox, logger)
	if err != nil {
		return err
	}

	pool := worker.NewPool(cfg.WorkerCount, cfg.WorkerQueue, logger)
	pool.Start()
	defer func() {
		if err := pool.Stop(); err != nil {
			logger.Error("worker pool stopped with error", zap.Error(err))
		}
	}()

	var rc cache.RouteCache = cache.Nop{}
	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL, logger)
		if err != nil {
			logger.Warn("redis unavailable, route cache disabled", zap.Error(err))
		} else {
			defer redisCache.Close()
			rc = redisCache
		}
	}

	srv := handler.New(cal, rc, pool, src.load, handler.Options{
		Radii:             cfg.SearchRadii,
		JWTSecret:         cfg.JWTSecret,
		AdminUser:         cfg.AdminUser,
		AdminPasswordHash: cfg.AdminPasswordHash,
	}, logger)
	srv.SetState(st)
	if store != nil {
		srv.SetControlPointStore(store)
	}

	if cfg.NATSURL != "" {
		n, err := notify.Connect(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			logger.Warn("nats unavailable, hot reload only through the admin API", zap.Error(err))
		} else {
			defer n.Close()
			_, err := n.Subscribe(func(e notify.GraphRebuilt) {
				logger.Info("graph rebuilt elsewhere, reloading",
					zap.String("version", e.Version),
					zap.String("source", e.Source))
				if _, err := srv.Reload(ctx); err != nil {
					logger.Error("hot reload failed", zap.Error(err))
				}
			})
			if err != nil {
				return err
			}
		}
	}

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}
