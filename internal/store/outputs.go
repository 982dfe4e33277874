// Package store persists published stage outputs and run reports under the
// project's outputs directory.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when no output has been persisted for a stage.
var ErrNotFound = errors.New("store: output not found")

const (
	metadataKey = "_stagegate"
	timeLayout  = time.RFC3339Nano
)

var (
	slugPattern  = regexp.MustCompile(`[^a-z0-9]+`)
	stagePattern = regexp.MustCompile(`^stage-(\d{2})\.json$`)
)

// Record is a persisted stage output together with its metadata.
type Record struct {
	Venture   string
	Stage     int
	RunID     string
	CreatedAt time.Time
	Checksum  string
	Warnings  []string
	Fields    map[string]any
}

// Outputs stores one JSON document per venture and stage:
// <root>/<venture-slug>/stage-NN.json.
type Outputs struct {
	root string
	now  func() time.Time
}

// Option customizes a store during construction.
type Option func(*Outputs)

// WithClock overrides the clock used for metadata timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *Outputs) {
		if clock != nil {
			o.now = clock
		}
	}
}

// NewOutputs builds a store rooted at dir.
func NewOutputs(dir string, opts ...Option) *Outputs {
	out := &Outputs{root: dir, now: time.Now}
	for _, opt := range opts {
		opt(out)
	}
	return out
}

// Root is the directory the store writes under.
func (o *Outputs) Root() string { return o.root }

// Slug normalizes a venture name into a directory name.
func Slug(venture string) string {
	slug := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(venture), "-"), "-")
	if slug == "" {
		return "default"
	}
	return slug
}

// Path is where the output for a stage lives.
func (o *Outputs) Path(venture string, stage int) string {
	return filepath.Join(o.root, Slug(venture), fmt.Sprintf("stage-%02d.json", stage))
}

// Save writes a published output. It satisfies pipeline.OutputStore.
func (o *Outputs) Save(venture string, stage int, runID string, fields map[string]any, warnings []string) error {
	if _, reserved := fields[metadataKey]; reserved {
		return fmt.Errorf("store: stage-%02d output uses reserved key %s", stage, metadataKey)
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("store: encode stage-%02d: %w", stage, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("store: encode stage-%02d: %w", stage, err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	// Load hashes the decoded payload, so hash the same decoded form here.
	// Integers beyond float64 precision change in the round trip.
	normalized, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("store: encode stage-%02d: %w", stage, err)
	}
	meta := map[string]any{
		"venture":  venture,
		"stage":    stage,
		"run_id":   runID,
		"created":  o.now().UTC().Format(timeLayout),
		"checksum": checksum(normalized),
	}
	if len(warnings) > 0 {
		meta["warnings"] = append([]string{}, warnings...)
	}
	payload[metadataKey] = meta
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode stage-%02d: %w", stage, err)
	}
	path := o.Path(venture, stage)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeFile(path, append(encoded, '\n'))
}

// Load reads a persisted output and verifies its checksum.
func (o *Outputs) Load(venture string, stage int) (Record, error) {
	path := o.Path(venture, stage)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, fmt.Errorf("%w: %s stage-%02d", ErrNotFound, Slug(venture), stage)
		}
		return Record{}, err
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return Record{}, fmt.Errorf("store: parse %s: %w", path, err)
	}
	raw, ok := payload[metadataKey].(map[string]any)
	if !ok {
		return Record{}, fmt.Errorf("store: %s is missing %s metadata", path, metadataKey)
	}
	delete(payload, metadataKey)
	record, err := recordFromMetadata(raw)
	if err != nil {
		return Record{}, fmt.Errorf("store: %s: %w", path, err)
	}
	if record.Stage != stage {
		return Record{}, fmt.Errorf("store: %s: metadata stage %d does not match %d", path, record.Stage, stage)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("store: %s: %w", path, err)
	}
	if sum := checksum(body); record.Checksum != "" && sum != record.Checksum {
		return Record{}, fmt.Errorf("store: %s: checksum mismatch", path)
	}
	record.Fields = payload
	return record, nil
}

// Stages lists the stages persisted for a venture in ascending order.
func (o *Outputs) Stages(venture string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(o.root, Slug(venture)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var stages []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := stagePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		stage, _ := strconv.Atoi(match[1])
		stages = append(stages, stage)
	}
	sort.Ints(stages)
	return stages, nil
}

func recordFromMetadata(values map[string]any) (Record, error) {
	stage, ok := values["stage"].(float64)
	if !ok {
		return Record{}, errors.New("metadata missing stage")
	}
	created, _ := values["created"].(string)
	if created == "" {
		return Record{}, errors.New("metadata missing created timestamp")
	}
	createdAt, err := time.Parse(timeLayout, created)
	if err != nil {
		return Record{}, fmt.Errorf("parse created timestamp: %w", err)
	}
	record := Record{
		Stage:     int(stage),
		CreatedAt: createdAt,
	}
	record.Venture, _ = values["venture"].(string)
	record.RunID, _ = values["run_id"].(string)
	record.Checksum, _ = values["checksum"].(string)
	if list, ok := values["warnings"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				record.Warnings = append(record.Warnings, s)
			}
		}
	}
	return record, nil
}

func checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// writeFile replaces path via a temp file rename so readers never observe a
// partial document.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
