// Package fixture provides a stage executor that replays recorded stage
// outputs from disk. It backs dry runs and end-to-end tests of the pipeline.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kingrea/stagegate/internal/contracts"
	"github.com/kingrea/stagegate/internal/pipeline"
)

// ErrNoFixture is returned when a directory holds no output for a stage.
var ErrNoFixture = errors.New("fixture: no recorded output")

var extensions = []string{".json", ".yaml", ".yml"}

// Executor reads stage-NN.json, stage-NN.yaml or stage-NN.yml from a
// directory. When a subdirectory named after the venture exists, it takes
// precedence over the shared files.
type Executor struct {
	dir string
}

// NewExecutor returns an executor rooted at dir.
func NewExecutor(dir string) *Executor {
	return &Executor{dir: dir}
}

// FileName is the base name (without extension) of a stage fixture.
func FileName(stage int) string {
	return fmt.Sprintf("stage-%02d", stage)
}

// Path locates the fixture for a stage.
func (e *Executor) Path(venture string, stage int) (string, error) {
	var roots []string
	if venture != "" {
		roots = append(roots, filepath.Join(e.dir, venture))
	}
	roots = append(roots, e.dir)
	for _, root := range roots {
		for _, ext := range extensions {
			path := filepath.Join(root, FileName(stage)+ext)
			info, err := os.Stat(path)
			if err == nil && !info.IsDir() {
				return path, nil
			}
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return "", fmt.Errorf("fixture: stat %s: %w", path, err)
			}
		}
	}
	return "", fmt.Errorf("%w for stage-%02d in %s", ErrNoFixture, stage, e.dir)
}

// Execute implements pipeline.Executor.
func (e *Executor) Execute(ctx context.Context, req pipeline.Request) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := e.Path(req.Venture, req.Stage)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture: read %s: %w", path, err)
	}
	doc, err := contracts.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("fixture: %s: %w", path, err)
	}
	return doc, nil
}
