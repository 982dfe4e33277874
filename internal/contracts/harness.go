package contracts

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DecodeDocument parses a stage output written as YAML or JSON. The top level
// must be a mapping.
func DecodeDocument(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse stage output: %w", err)
	}
	if doc == nil {
		return nil, errors.New("parse stage output: document is empty")
	}
	return doc, nil
}

// Report captures a validation run against an output file on disk.
type Report struct {
	Path   string `json:"path"`
	Stage  int    `json:"stage"`
	Result Result `json:"result"`
}

// ValidateOutputFile reads a raw stage output, enriches it with derive and
// runs the post-stage check.
func ValidateOutputFile(path string, stage int, derive Derivation, opts ...Option) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stage output: %w", err)
	}
	raw, err := DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	return &Report{
		Path:   path,
		Stage:  stage,
		Result: ValidatePostStage(stage, Enrich(stage, raw, derive), opts...),
	}, nil
}

// IsValid reports whether the validation passed.
func (r *Report) IsValid() bool {
	return r != nil && r.Result.Valid
}
