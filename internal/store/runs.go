package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kingrea/stagegate/internal/pipeline"
)

// ErrRunNotFound is returned when no report exists for a run.
var ErrRunNotFound = errors.New("store: run not found")

// Runs stores run reports next to the venture outputs:
// <root>/<venture-slug>/runs/<run-id>.json.
type Runs struct {
	root string
}

// NewRuns creates a repository rooted at dir.
func NewRuns(dir string) *Runs {
	return &Runs{root: dir}
}

func (r *Runs) dir(venture string) string {
	return filepath.Join(r.root, Slug(venture), "runs")
}

// Save writes the report, replacing any earlier copy of the same run.
func (r *Runs) Save(report *pipeline.Report) error {
	if report == nil {
		return errors.New("store: nil report")
	}
	if report.RunID == "" || strings.ContainsAny(report.RunID, `/\`) {
		return fmt.Errorf("store: invalid run id %q", report.RunID)
	}
	dir := r.dir(report.Venture)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, report.RunID+".json"), append(encoded, '\n'))
}

// Load reads a persisted report.
func (r *Runs) Load(venture, runID string) (*pipeline.Report, error) {
	data, err := os.ReadFile(filepath.Join(r.dir(venture), runID+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	var report pipeline.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("store: parse run %s: %w", runID, err)
	}
	return &report, nil
}

// List returns the reports for a venture, oldest first.
func (r *Runs) List(venture string) ([]*pipeline.Report, error) {
	entries, err := os.ReadDir(r.dir(venture))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var reports []*pipeline.Report
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, ".") {
			continue
		}
		report, err := r.Load(venture, strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].StartedAt.Before(reports[j].StartedAt)
	})
	return reports, nil
}
