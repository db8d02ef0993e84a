package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/roadgraph/internal/config"
	"github.com/sells-group/roadgraph/internal/export"
	"github.com/sells-group/roadgraph/internal/store"
)

const extractFixture = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <node id="1" lat="43.730" lon="7.420"/>
  <node id="2" lat="43.731" lon="7.421"/>
  <node id="3" lat="43.732" lon="7.422"/>
  <node id="4" lat="43.733" lon="7.421"/>
  <way id="100">
    <nd ref="1"/><nd ref="2"/><nd ref="3"/>
    <tag k="highway" v="secondary"/>
  </way>
  <way id="101">
    <nd ref="2"/><nd ref="4"/>
    <tag k="highway" v="cycleway"/>
  </way>
</osm>`

func testExtractConfig(t *testing.T, outputs ...string) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "monaco.osm")
	require.NoError(t, os.WriteFile(input, []byte(extractFixture), 0o644))

	c := &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", Path: filepath.Join(dir, "graph.db")},
		Extract: config.ExtractConfig{
			Format:    "auto",
			Workers:   1,
			OutputDir: filepath.Join(dir, "out"),
			Outputs:   outputs,
		},
	}
	return c, input
}

func TestRunExtract_AllOutputs(t *testing.T) {
	c, input := testExtractConfig(t, config.OutputCSV, config.OutputShapefile, config.OutputStore)

	m, err := runExtract(context.Background(), c, input)
	require.NoError(t, err)

	assert.Equal(t, "monaco.osm", m.Source)
	assert.Equal(t, 4, m.Nodes)
	assert.Equal(t, 3, m.Edges)
	assert.Greater(t, m.LengthM, 0.0)
	assert.Equal(t, []string{
		"edges.csv", "edges.dbf", "edges.shp", "edges.shx",
		"nodes.csv", "nodes.dbf", "nodes.shp", "nodes.shx",
	}, m.Files)

	for _, f := range m.Files {
		_, err := os.Stat(filepath.Join(c.Extract.OutputDir, f))
		assert.NoError(t, err, f)
	}

	written, err := export.ReadManifest(filepath.Join(c.Extract.OutputDir, export.ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, m.RunID, written.RunID)

	st, err := store.NewSQLite(c.Store.Path)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	ctx := context.Background()
	e, err := st.GetEdge(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.Source)
	assert.Equal(t, int64(4), e.Target)

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, m.RunID, runs[0].ID)
	assert.Equal(t, 3, runs[0].Edges)
}

func TestRunExtract_MissingInput(t *testing.T) {
	c, input := testExtractConfig(t, config.OutputCSV)

	_, err := runExtract(context.Background(), c, input+".missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract: read")
}

func TestRunExtract_UnknownOutput(t *testing.T) {
	c, input := testExtractConfig(t, "parquet")

	_, err := runExtract(context.Background(), c, input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown output "parquet"`)
}

func TestApplyExtractFlags(t *testing.T) {
	require.NoError(t, extractCmd.Flags().Set("outputs", "csv, store"))
	require.NoError(t, extractCmd.Flags().Set("workers", "3"))
	require.NoError(t, extractCmd.Flags().Set("keep-all", "true"))
	t.Cleanup(func() {
		_ = extractCmd.Flags().Set("outputs", "")
		_ = extractCmd.Flags().Set("workers", "0")
		_ = extractCmd.Flags().Set("keep-all", "false")
	})

	ec := config.ExtractConfig{Format: "auto", Workers: 8, OutputDir: ".", Outputs: []string{"csv"}}
	applyExtractFlags(extractCmd, &ec)

	assert.Equal(t, "auto", ec.Format)
	assert.Equal(t, ".", ec.OutputDir)
	assert.Equal(t, []string{"csv", "store"}, ec.Outputs)
	assert.Equal(t, 3, ec.Workers)
	assert.True(t, ec.KeepAll)
}
