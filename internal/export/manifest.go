package export

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/roadgraph/internal/osmread"
)

// ManifestFile is the name of the manifest written next to the outputs.
const ManifestFile = "manifest.yaml"

// Manifest describes one extraction run and the files it produced.
type Manifest struct {
	RunID     string    `yaml:"run_id"`
	Source    string    `yaml:"source"`
	CreatedAt time.Time `yaml:"created_at"`
	Nodes     int       `yaml:"nodes"`
	Edges     int       `yaml:"edges"`
	LengthM   float64   `yaml:"length_m"`
	// BBox is min lon, min lat, max lon, max lat.
	BBox  []float64 `yaml:"bbox,flow"`
	Files []string  `yaml:"files"`
}

// NewManifest starts a manifest for a run over source with a fresh run id.
func NewManifest(source string, stats osmread.Stats) Manifest {
	b := stats.Bound
	return Manifest{
		RunID:     uuid.New().String(),
		Source:    source,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Nodes:     stats.Nodes,
		Edges:     stats.Edges,
		LengthM:   stats.Length,
		BBox:      []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()},
	}
}

// WriteManifest writes m as manifest.yaml into dir and returns its path.
func WriteManifest(dir string, m Manifest) (string, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", eris.Wrap(err, "export: marshal manifest")
	}
	path := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "export: write %s", path)
	}
	return path, nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: read %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "export: parse %s", path)
	}
	return &m, nil
}
