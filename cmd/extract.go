package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/roadgraph/internal/config"
	"github.com/sells-group/roadgraph/internal/export"
	"github.com/sells-group/roadgraph/internal/osmread"
	"github.com/sells-group/roadgraph/internal/store"
)

var extractCmd = &cobra.Command{
	Use:   "extract <input>",
	Short: "Extract the road graph from an OSM PBF or XML file",
	Long: `Reads an OpenStreetMap extract, splits its ways into edges at shared nodes and
writes the configured outputs: csv (nodes.csv, edges.csv), shp (nodes.shp,
edges.shp) and store (the configured database). A manifest.yaml describing
the run is written next to the files.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyExtractFlags(cmd, &cfg.Extract)
		if err := cfg.Validate("extract"); err != nil {
			return err
		}

		_, err := runExtract(ctx, cfg, args[0])
		return err
	},
}

func init() {
	f := extractCmd.Flags()
	f.String("format", "", "input format: auto, pbf or xml (default from config)")
	f.String("output-dir", "", "directory for output files (default from config)")
	f.String("outputs", "", "comma-separated outputs: csv, shp, store (default from config)")
	f.Int("workers", 0, "PBF decoding goroutines (default from config)")
	f.Bool("keep-all", false, "emit every referenced node, not only graph vertices")
	rootCmd.AddCommand(extractCmd)
}

// applyExtractFlags overrides config values with flags the user set.
func applyExtractFlags(cmd *cobra.Command, ec *config.ExtractConfig) {
	f := cmd.Flags()
	if v, _ := f.GetString("format"); v != "" {
		ec.Format = v
	}
	if v, _ := f.GetString("output-dir"); v != "" {
		ec.OutputDir = v
	}
	if v, _ := f.GetString("outputs"); v != "" {
		ec.Outputs = splitAndTrim(v)
	}
	if v, _ := f.GetInt("workers"); v > 0 {
		ec.Workers = v
	}
	if f.Changed("keep-all") {
		ec.KeepAll, _ = f.GetBool("keep-all")
	}
}

// runExtract reads input and writes every configured output concurrently,
// then the manifest. It returns the manifest written.
func runExtract(ctx context.Context, c *config.Config, input string) (*export.Manifest, error) {
	log := zap.L().With(zap.String("command", "extract"), zap.String("input", input))

	graph, err := osmread.Read[float64](ctx, input, osmread.Options{
		Format:  osmread.Format(c.Extract.Format),
		Workers: c.Extract.Workers,
		KeepAll: c.Extract.KeepAll,
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: read")
	}

	stats := graph.Stats()
	log.Info("graph extracted",
		zap.Int("nodes", stats.Nodes),
		zap.Int("edges", stats.Edges),
		zap.Float64("length_m", stats.Length),
	)

	dir := c.Extract.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "extract: create output dir %s", dir)
	}

	m := export.NewManifest(filepath.Base(input), stats)

	var mu sync.Mutex
	var files []string
	record := func(paths ...string) {
		mu.Lock()
		defer mu.Unlock()
		for _, p := range paths {
			files = append(files, filepath.Base(p))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, output := range c.Extract.Outputs {
		g.Go(func() error {
			switch output {
			case config.OutputCSV:
				paths, err := export.WriteCSV(dir, graph.Nodes, graph.Edges)
				if err != nil {
					return err
				}
				record(paths...)
			case config.OutputShapefile:
				res, err := export.WriteShapefiles(dir, graph.Nodes, graph.Edges)
				if err != nil {
					return err
				}
				for _, p := range res.Paths {
					base := strings.TrimSuffix(p, filepath.Ext(p))
					record(base+".shp", base+".shx", base+".dbf")
				}
			case config.OutputStore:
				if err := loadStore(gctx, c.Store, graph, m); err != nil {
					return err
				}
			default:
				return eris.Errorf("extract: unknown output %q", output)
			}
			log.Info("output written", zap.String("output", output))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "extract: write outputs")
	}

	sort.Strings(files)
	m.Files = files
	path, err := export.WriteManifest(dir, m)
	if err != nil {
		return nil, err
	}

	log.Info("extract complete", zap.String("run_id", m.RunID), zap.String("manifest", path))
	return &m, nil
}

// loadStore writes the graph into the configured store and records the run.
func loadStore(ctx context.Context, sc config.StoreConfig, graph *osmread.Graph[float64], m export.Manifest) error {
	st, err := store.New(ctx, sc)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	if err := st.Migrate(ctx); err != nil {
		return err
	}
	if err := st.WriteNodes(ctx, graph.Nodes); err != nil {
		return err
	}
	if err := st.WriteEdges(ctx, graph.Edges); err != nil {
		return err
	}
	return st.RecordRun(ctx, store.Run{
		ID:        m.RunID,
		Source:    m.Source,
		Nodes:     m.Nodes,
		Edges:     m.Edges,
		LengthM:   m.LengthM,
		CreatedAt: m.CreatedAt,
	})
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
