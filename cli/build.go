package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"precinct-nav/builder"
	"precinct-nav/calib"
	"precinct-nav/config"
	"precinct-nav/db"
	"precinct-nav/hybrid"
	"precinct-nav/model"
	"precinct-nav/notify"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	buildInput       string
	buildCalibration string
	buildOutput      string
	buildVersion     string
	buildEntrances   string
	buildStore       bool
	buildPublish     bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a walkable graph from a traced map",
	Long: `Build reads a traced map (JSON primitives, or GeoJSON when the file ends in
.geojson), builds the walkable graph and writes it as static JSON.

With --store the graph is also saved to postgres, together with the
entrance records given by --entrances; with --publish running servers are
told to reload it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBuild(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	buildCmd.Flags().StringVarP(&buildInput, "input", "i", "", "traced map, .json or .geojson")
	buildCmd.Flags().StringVarP(&buildCalibration, "calibration", "c", "", "calibration survey file")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "graph.json", "graph file to write")
	buildCmd.Flags().StringVar(&buildVersion, "version", "", "graph version (default: random uuid)")
	buildCmd.Flags().StringVar(&buildEntrances, "entrances", "", "entrance records to store with the graph (needs --store)")
	buildCmd.Flags().BoolVar(&buildStore, "store", false, "also save the graph to the database")
	buildCmd.Flags().BoolVar(&buildPublish, "publish", false, "announce the new graph over NATS")
	_ = buildCmd.MarkFlagRequired("input")
}

func runBuild(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if buildEntrances != "" && !buildStore {
		return fmt.Errorf("--entrances needs --store")
	}
	var entrances []model.Entrance
	if buildEntrances != "" {
		e, err := hybrid.LoadEntrances(buildEntrances)
		if err != nil {
			return err
		}
		entrances = e
	}

	var cal *calib.Calibration
	if buildCalibration != "" {
		c, err := calib.LoadFile(buildCalibration, logger)
		if err != nil {
			return err
		}
		cal = c.Current()
	}

	m, err := readTracedMap(buildInput, cal)
	if err != nil {
		return err
	}

	opts := builder.DefaultOptions()
	opts.SnapRadius = cfg.SnapRadius
	opts.DoorMaxDistance = cfg.DoorMaxDistance
	opts.Calibration = cal
	opts.Version = buildVersion
	opts.Logger = logger
	g, report := builder.Build(m, opts)

	if err := g.SaveJSON(buildOutput); err != nil {
		return err
	}
	logger.Info("graph written", zap.String("path", buildOutput), zap.String("version", g.Version))

	source := config.SourceFile
	if buildStore {
		store, err := db.Open(ctx, cfg.DSN(), 3, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.SaveGraph(ctx, g); err != nil {
			return err
		}
		if buildEntrances != "" {
			if err := store.ReplaceEntrances(ctx, entrances); err != nil {
				return err
			}
		}
		source = config.SourceDB
	}

	if buildPublish {
		if cfg.NATSURL == "" {
			return fmt.Errorf("--publish needs NATS_URL")
		}
		n, err := notify.Connect(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return err
		}
		defer n.Close()
		path, _ := filepath.Abs(buildOutput)
		err = n.Publish(notify.GraphRebuilt{
			Version: g.Version,
			Source:  source,
			Path:    path,
			Nodes:   len(g.Nodes),
			BuiltAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Version string         `json:"version"`
		Report  builder.Report `json:"report"`
	}{g.Version, report})
}

// readTracedMap decodes a traced map, choosing the format by extension.
func readTracedMap(path string, cal *calib.Calibration) (model.TracedMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.TracedMap{}, fmt.Errorf("read traced map: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".geojson") {
		return builder.FromGeoJSON(data, cal)
	}
	var m model.TracedMap
	if err := json.Unmarshal(data, &m); err != nil {
		return model.TracedMap{}, fmt.Errorf("parse traced map: %w", err)
	}
	return m, nil
}
