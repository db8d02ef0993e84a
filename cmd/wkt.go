package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/roadgraph/internal/model"
)

var wktCmd = &cobra.Command{
	Use:                "wkt <lon> <lat> [<lon> <lat>...]",
	Short:              "Print the WKT LINESTRING literal of a point sequence",
	DisableFlagParsing: true,
	Args: func(cmd *cobra.Command, args []string) error {
		if wantsHelp(args) {
			return nil
		}
		if len(args) == 0 || len(args)%2 != 0 {
			return eris.New("wkt: expected lon lat pairs")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if wantsHelp(args) {
			return cmd.Help()
		}
		coords, err := parseCoords(args)
		if err != nil {
			return err
		}
		e := model.Edge[float64]{Geometry: coords}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), e.AsWKT())
		return err
	},
}

func init() {
	rootCmd.AddCommand(wktCmd)
}
