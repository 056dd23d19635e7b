package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"precinct-nav/algo"
	"precinct-nav/model"

	"github.com/spf13/cobra"
)

var (
	graphPath  string
	routeFrom  string
	routeTo    string
	fromRef    string
	toRef      string
	linearScan bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Print the validation report of a graph file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, warnings, err := algo.LoadFromJSON(graphFile())
		if err != nil {
			return err
		}
		comps := g.Components()
		sizes := make([]int, len(comps))
		for i, c := range comps {
			sizes[i] = len(c)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Version        string     `json:"version"`
			Stats          algo.Stats `json:"stats"`
			ComponentSizes []int      `json:"component_sizes"`
			Warnings       []string   `json:"warnings"`
		}{g.Version, g.Stats(), sizes, append([]string{}, warnings...)})
	},
}

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Find a route in a graph file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parsePoint(routeFrom)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		to, err := parsePoint(routeTo)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		g, _, err := algo.LoadFromJSON(graphFile())
		if err != nil {
			return err
		}
		res := g.FindRoute(
			algo.Query{Start: from, End: to, StartRef: fromRef, EndRef: toRef},
			algo.Options{Radii: cfg.SearchRadii, LinearScan: linearScan},
		)
		fmt.Fprint(cmd.OutOrStdout(), algo.FormatRoute(res))
		if !res.Found {
			return fmt.Errorf("no route: %s", res.Diagnostics.Reason)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{validateCmd, routeCmd} {
		c.Flags().StringVarP(&graphPath, "graph", "g", "", "graph file (default: GRAPH_FILE)")
	}
	routeCmd.Flags().StringVar(&routeFrom, "from", "", "start point as x,y")
	routeCmd.Flags().StringVar(&routeTo, "to", "", "end point as x,y")
	routeCmd.Flags().StringVar(&fromRef, "from-ref", "", "semantic start id for predefined routes")
	routeCmd.Flags().StringVar(&toRef, "to-ref", "", "semantic end id for predefined routes")
	routeCmd.Flags().BoolVar(&linearScan, "linear", false, "resolve endpoints without the spatial index")
	_ = routeCmd.MarkFlagRequired("from")
	_ = routeCmd.MarkFlagRequired("to")
}

func graphFile() string {
	if graphPath != "" {
		return graphPath
	}
	return cfg.GraphFile
}

// parsePoint reads "x,y".
func parsePoint(s string) (model.PlanarPoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return model.PlanarPoint{}, fmt.Errorf("want x,y, got %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return model.PlanarPoint{}, fmt.Errorf("bad x: %w", err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return model.PlanarPoint{}, fmt.Errorf("bad y: %w", err)
	}
	return model.PlanarPoint{X: x, Y: y}, nil
}
