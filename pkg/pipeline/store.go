package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/menta2k/mockup-forge/internal/utils"
)

// Store writes generated assets to disk
type Store struct {
	OutputDir string
}

// NewStore creates a Store rooted at dir
func NewStore(dir string) *Store {
	return &Store{OutputDir: dir}
}

// Write stores each mockup's assets in its own
// "{mockup}.{YYYYMMDD_HHMMSS}.{count}" directory and returns the
// directories created, sorted by mockup name. Assets with the same filename
// overwrite each other in input order.
func (s *Store) Write(report *Report, runTime time.Time) ([]string, error) {
	names := make([]string, 0, len(report.Assets))
	for name, assets := range report.Assets {
		if len(assets) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	dirs := make([]string, 0, len(names))
	for _, name := range names {
		assets := report.Assets[name]
		dir := filepath.Join(s.OutputDir, utils.OutputDirName(name, runTime, len(assets)))
		if err := utils.EnsureDir(dir); err != nil {
			return dirs, fmt.Errorf("create output directory: %w", err)
		}
		for _, asset := range assets {
			path := filepath.Join(dir, asset.Filename)
			if err := os.WriteFile(path, asset.Data, 0o644); err != nil {
				return dirs, fmt.Errorf("write %s: %w", path, err)
			}
		}
		dirs = append(dirs, dir)
	}
	return dirs, nil
}
