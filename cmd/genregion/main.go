// Command genregion writes a deterministic demo region profile, its DEM, and
// optionally a file of sample run requests sweeping the first gauge's level.
//
// Usage:
//
//	go run ./cmd/genregion -out regions -region demo -requests data/requests.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/couchcryptid/inundation-service/internal/domain"
	"github.com/couchcryptid/inundation-service/internal/profile"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	def := profile.DefaultDemoOptions()
	out := flag.String("out", "", "region root directory")
	region := flag.String("region", def.Region, "region key")
	rows := flag.Int("rows", def.Rows, "grid rows")
	cols := flag.Int("cols", def.Cols, "grid columns")
	modes := flag.Int("modes", def.Modes, "number of SAR modes")
	sites := flag.Int("sites", def.Sites, "number of gauge sites")
	seed := flag.Int64("seed", def.Seed, "random seed")
	cell := flag.Float64("cell", def.CellSize, "cell size in metres")
	requests := flag.String("requests", "", "optional output path for sample requests (JSON lines)")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	m, err := profile.WriteDemo(*out, profile.DemoOptions{
		Region:   *region,
		Rows:     *rows,
		Cols:     *cols,
		Modes:    *modes,
		Sites:    *sites,
		Seed:     *seed,
		CellSize: *cell,
	})
	if err != nil {
		return err
	}
	dir := filepath.Join(*out, *region)
	log.Printf("wrote region %s: %d sites, %d modes", dir, len(m.Sites), len(m.Modes))
	log.Printf("dem: %s", filepath.Join(dir, profile.DemoDEMFile))

	if *requests == "" {
		return nil
	}
	if err := writeRequests(*requests, m); err != nil {
		return fmt.Errorf("writing requests: %w", err)
	}
	log.Printf("wrote requests: %s", *requests)
	return nil
}

// writeRequests emits one request per whole metre of the first site's range,
// holding the other sites at their minimum.
func writeRequests(path string, m *profile.Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)

	first := m.Sites[0]
	for level := first.MinLevel; level <= first.MaxLevel; level++ {
		levels := make(map[string]float64, len(m.Sites))
		for _, s := range m.Sites {
			levels[s.ID] = s.MinLevel
		}
		levels[first.ID] = level
		req := domain.FloodRequest{
			RequestID:   fmt.Sprintf("%s-%s-%02.0f", m.Region, first.ID, level),
			Region:      m.Region,
			WaterLevels: levels,
			Depth:       true,
		}
		if err := enc.Encode(req); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
