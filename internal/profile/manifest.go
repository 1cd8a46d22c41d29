package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/couchcryptid/inundation-service/internal/domain"
)

// ManifestFile is the name of the manifest inside a region directory.
const ManifestFile = "profile.json"

// Manifest lists a region's artifacts. Paths are relative to the region
// directory.
type Manifest struct {
	Region    string          `json:"region"`
	Sites     []domain.Site   `json:"sites"`
	Modes     []ModeEntry     `json:"modes"`
	Reference ReferenceEntry  `json:"reference"`
	Threshold *ThresholdEntry `json:"threshold,omitempty"`
}

// ModeEntry binds one basis raster to its site, regressor and coefficient
// de-normalization constants.
type ModeEntry struct {
	Site      string  `json:"site"`
	Basis     string  `json:"basis"`
	Regressor string  `json:"regressor"`
	Mean      float64 `json:"mean"`
	Std       float64 `json:"std"`
}

type ReferenceEntry struct {
	AllMean string `json:"all_mean"`
	DryMean string `json:"dry_mean,omitempty"`
	DryStd  string `json:"dry_std,omitempty"`
}

type ThresholdEntry struct {
	Model  string   `json:"model"`
	Inputs []string `json:"inputs,omitempty"`
}

var regionKey = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidRegionKey reports whether region is usable as a directory name.
func ValidRegionKey(region string) bool {
	return regionKey.MatchString(region)
}

// ReadManifest reads <root>/<region>/profile.json. Unknown or malformed keys
// and missing manifests fail with domain.ErrInvalidRegion.
func ReadManifest(root, region string) (*Manifest, error) {
	if !ValidRegionKey(region) {
		return nil, &domain.Error{Kind: domain.ErrInvalidRegion, Region: region, Key: "key"}
	}
	path := filepath.Join(root, region, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.Error{Kind: domain.ErrInvalidRegion, Region: region, Key: ManifestFile}
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if m.Region == "" {
		m.Region = region
	}
	if m.Region != region {
		return nil, fmt.Errorf("%s names region %q: %w", path, m.Region, ErrInvalidProfile)
	}
	return &m, nil
}

// WriteManifest writes m into dir, creating it if needed.
func WriteManifest(dir string, m *Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644)
}
