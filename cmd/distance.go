package main

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/roadgraph/internal/model"
)

// distanceCmd and wktCmd take signed coordinates as positional arguments, so
// flag parsing is disabled to keep "-0.12" from being read as a shorthand flag.
var distanceCmd = &cobra.Command{
	Use:                "distance <lon1> <lat1> <lon2> <lat2>",
	Short:              "Print the great-circle distance in meters between two points",
	DisableFlagParsing: true,
	Args: func(cmd *cobra.Command, args []string) error {
		if wantsHelp(args) {
			return nil
		}
		return cobra.ExactArgs(4)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if wantsHelp(args) {
			return cmd.Help()
		}
		coords, err := parseCoords(args)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%.3f\n", model.Distance(coords[0], coords[1]))
		return err
	},
}

// wantsHelp reports whether args ask for usage. Commands with flag parsing
// disabled see -h and --help as plain arguments.
func wantsHelp(args []string) bool {
	for _, a := range args {
		if a == "-h" || a == "--help" {
			return true
		}
	}
	return false
}

// parseCoords reads args as consecutive lon lat pairs.
func parseCoords(args []string) ([]model.Coord[float64], error) {
	coords := make([]model.Coord[float64], 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		lon, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "parse lon %q", args[i])
		}
		lat, err := strconv.ParseFloat(args[i+1], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "parse lat %q", args[i+1])
		}
		coords = append(coords, model.Coord[float64]{Lon: lon, Lat: lat})
	}
	return coords, nil
}

func init() {
	rootCmd.AddCommand(distanceCmd)
}
