// Package rasterstore persists the rasters produced by a flood run.
package rasterstore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/inundation-service/internal/domain"
	"github.com/couchcryptid/inundation-service/internal/raster"
)

// Artifact names, also used as keys of the returned path map.
const (
	ArtifactSynthetic  = "synthetic"
	ArtifactAnomaly    = "anomaly"
	ArtifactInundation = "inundation"
	ArtifactDepth      = "depth"
	ArtifactDepthClass = "depth_class"
)

const ext = ".grd"

// Store writes run rasters under <root>/<region>/<run-key>/.
type Store struct {
	root   string
	logger *slog.Logger
}

func NewStore(root string, logger *slog.Logger) *Store {
	return &Store{root: root, logger: logger}
}

func (s *Store) Root() string { return s.root }

// Save writes every non-nil raster of run and returns artifact paths keyed by
// artifact name. Files are written to a temporary name and renamed so readers
// never see a partial raster.
func (s *Store) Save(region, runKey string, run domain.RunRasters) (map[string]string, error) {
	if !validSegment(region) {
		return nil, fmt.Errorf("invalid region key %q", region)
	}
	dir := filepath.Join(s.root, region, SanitizeKey(runKey))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	layers := []struct {
		name string
		r    *raster.Raster
	}{
		{ArtifactSynthetic, run.Synthetic},
		{ArtifactAnomaly, run.Anomaly},
		{ArtifactDepth, run.Depth},
	}
	type layer = struct {
		name string
		r    *raster.Raster
	}
	if run.Mask != nil {
		layers = append(layers, layer{ArtifactInundation, run.Mask.Float()})
	}
	if run.Depth != nil {
		layers = append(layers, layer{ArtifactDepthClass, domain.ClassifyDepth(run.Depth)})
	}

	paths := make(map[string]string, len(layers))
	for _, l := range layers {
		if l.r == nil {
			continue
		}
		path := filepath.Join(dir, l.name+ext)
		if err := writeAtomic(path, l.r); err != nil {
			return nil, fmt.Errorf("write %s: %w", l.name, err)
		}
		paths[l.name] = path
	}
	s.logger.Debug("run rasters written", "region", region, "dir", dir, "count", len(paths))
	return paths, nil
}

// SaveRun writes the rasters of req under its region and run key.
func (s *Store) SaveRun(req domain.FloodRequest, run domain.RunRasters) (map[string]string, error) {
	return s.Save(req.Region, RunKey(req), run)
}

// Load reads one artifact of a stored run.
func (s *Store) Load(region, runKey, artifact string) (*raster.Raster, error) {
	if !validSegment(region) {
		return nil, fmt.Errorf("invalid region key %q", region)
	}
	return raster.ReadFile(filepath.Join(s.root, region, SanitizeKey(runKey), artifact+ext))
}

func writeAtomic(path string, r *raster.Raster) error {
	tmp := path + ".tmp"
	if err := raster.WriteFile(tmp, r); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// RunKey names the output directory of a request: its date and id joined by
// an underscore, whichever are set.
func RunKey(req domain.FloodRequest) string {
	var parts []string
	if req.Date != "" {
		parts = append(parts, req.Date)
	}
	if req.RequestID != "" {
		parts = append(parts, req.RequestID)
	}
	return SanitizeKey(strings.Join(parts, "_"))
}

// SanitizeKey maps a free-form key onto a single safe path segment. Empty
// keys become "latest".
func SanitizeKey(key string) string {
	var b strings.Builder
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "latest"
	}
	return out
}

func validSegment(s string) bool {
	return s != "" && s == SanitizeKey(s)
}
