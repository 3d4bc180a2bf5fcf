package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"imaged/internal/common/fsutil"
	"imaged/pkg/types"
)

// diffusersMarker identifies a directory laid out as a diffusers pipeline.
const diffusersMarker = "model_index.json"

// weightFormats maps weight-file extensions to model formats.
var weightFormats = map[string]string{
	".safetensors": types.FormatSafetensors,
	".ckpt":        types.FormatCheckpoint,
	".pt":          types.FormatPickle,
}

// Scanner discovers diffusion models in a directory.
type Scanner struct{}

// NewScanner returns a Scanner.
func NewScanner() *Scanner { return &Scanner{} }

// Scan lists weight files (.safetensors, .ckpt, .pt; case-insensitive) and
// diffusers directories directly under dir. The ID of a file model is its
// filename including extension; a diffusers model is identified by its
// directory name. Results are sorted by ID.
func (s *Scanner) Scan(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		name := e.Name()
		p := filepath.Join(abs, name)
		if e.IsDir() {
			if fsutil.PathExists(filepath.Join(p, diffusersMarker)) {
				models = append(models, types.Model{ID: name, Name: name, Path: p, Format: types.FormatDiffusers})
			}
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		format, ok := weightFormats[ext]
		if !ok {
			continue
		}
		models = append(models, types.Model{ID: name, Name: strings.TrimSuffix(name, filepath.Ext(name)), Path: p, Format: format})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// LoadDir scans dir with a default Scanner.
func LoadDir(dir string) ([]types.Model, error) {
	return NewScanner().Scan(dir)
}
