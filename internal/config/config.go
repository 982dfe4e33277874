// internal/config/config.go
//
// This package handles configuration and the .stagegate directory structure.
// Every project that runs ventures through stagegate gets a .stagegate/
// folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/stagegate/internal/contracts"
	"github.com/kingrea/stagegate/internal/workflow/scheduler"
)

const (
	// StagegateDir is the name of the directory we create in each project
	StagegateDir = ".stagegate"

	defaultVenture = "default"
)

const defaultProjectConfigYAML = `# stagegate project configuration
version: 1

# Venture name used when --venture is not given.
venture: default

# blocking halts a run on any contract violation; advisory logs and continues.
enforcement: blocking

runtime:
  max_parallel: 4
  batch_size: 0

# Recorded stage outputs replayed by "stagegate run" (relative to the project).
fixtures_dir: fixtures
# Published outputs and run reports.
outputs_dir: .stagegate/outputs

log:
  debug: false

metrics:
  # Serve Prometheus metrics while a run is in progress, e.g. ":9464".
  addr: ""

# Stages held for manual approval.
# gates:
#   5:
#     note: finance sign-off
#     approved: false
`

// RuntimeConfig bounds how stages are dispatched.
type RuntimeConfig struct {
	MaxParallel int `yaml:"max_parallel"`
	BatchSize   int `yaml:"batch_size"`
}

// LogConfig controls log verbosity.
type LogConfig struct {
	Debug bool `yaml:"debug"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// GateConfig holds one stage back until approved.
type GateConfig struct {
	Note     string `yaml:"note,omitempty"`
	Approved bool   `yaml:"approved"`
}

// ProjectConfig models .stagegate/config.yaml.
type ProjectConfig struct {
	Version     int                `yaml:"version"`
	Venture     string             `yaml:"venture"`
	Enforcement string             `yaml:"enforcement"`
	Runtime     RuntimeConfig      `yaml:"runtime"`
	FixturesDir string             `yaml:"fixtures_dir"`
	OutputsDir  string             `yaml:"outputs_dir"`
	Log         LogConfig          `yaml:"log"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Gates       map[int]GateConfig `yaml:"gates,omitempty"`
}

// Config holds the runtime configuration for a project.
type Config struct {
	// ProjectDir is the directory stagegate was run from
	ProjectDir string

	// StagegateProjectDir is ProjectDir/.stagegate
	StagegateProjectDir string

	Project ProjectConfig

	// stored is Project as written in config.yaml, before paths are resolved.
	stored ProjectConfig
}

// InitStagegateDir creates the .stagegate directory structure in the given
// project directory and writes a default config.yaml if none exists.
//
// .stagegate/
// ├── config.yaml
// ├── logs/     <- stagegate.log
// └── outputs/  <- published stage outputs and run reports
func InitStagegateDir(projectDir string) error {
	root := filepath.Join(projectDir, StagegateDir)
	dirs := []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "outputs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// NewConfig loads project settings, falling back to defaults when no
// config.yaml exists yet.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:          projectDir,
		StagegateProjectDir: filepath.Join(projectDir, StagegateDir),
		Project:             defaultProjectConfig(),
		stored:              defaultProjectConfig(),
	}
	cfg.Project.normalize(projectDir)
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StagegateProjectDir, "logs")
}

// OutputsDir returns the resolved outputs directory.
func (c *Config) OutputsDir() string {
	return c.Project.OutputsDir
}

// FixturesDir returns the resolved fixtures directory.
func (c *Config) FixturesDir() string {
	return c.Project.FixturesDir
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StagegateProjectDir, "config.yaml")
}

// Enforcement returns the configured enforcement mode.
func (c *Config) Enforcement() contracts.Enforcement {
	mode, err := contracts.ParseEnforcement(c.Project.Enforcement)
	if err != nil {
		return contracts.Blocking
	}
	return mode
}

// ManualGates converts configured gates into scheduler state.
func (c *Config) ManualGates() map[int]scheduler.ManualGateState {
	if len(c.Project.Gates) == 0 {
		return nil
	}
	out := make(map[int]scheduler.ManualGateState, len(c.Project.Gates))
	for stage, gate := range c.Project.Gates {
		out[stage] = scheduler.ManualGateState{Required: true, Approved: gate.Approved, Note: gate.Note}
	}
	return out
}

// ApproveGate marks a gated stage as approved and persists the change.
func (c *Config) ApproveGate(stage int) error {
	gate, ok := c.Project.Gates[stage]
	if !ok {
		return fmt.Errorf("config: stage-%02d has no manual gate", stage)
	}
	gate.Approved = true
	c.Project.Gates[stage] = gate
	if c.stored.Gates == nil {
		c.stored.Gates = map[int]GateConfig{}
	}
	c.stored.Gates[stage] = gate
	return c.saveProjectConfig()
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	stored := parsed
	stored.Gates = copyGates(parsed.Gates)
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	c.stored = stored
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version:     1,
		Venture:     defaultVenture,
		Enforcement: string(contracts.Blocking),
		Runtime:     RuntimeConfig{MaxParallel: 4},
		FixturesDir: "fixtures",
		OutputsDir:  filepath.Join(StagegateDir, "outputs"),
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Venture) == "" {
		pc.Venture = defaultVenture
	}
	if strings.TrimSpace(pc.Enforcement) == "" {
		pc.Enforcement = string(contracts.Blocking)
	}
	if pc.OutputsDir == "" {
		pc.OutputsDir = filepath.Join(StagegateDir, "outputs")
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Venture = strings.TrimSpace(pc.Venture)
	pc.Enforcement = strings.ToLower(strings.TrimSpace(pc.Enforcement))
	pc.FixturesDir = resolvePath(base, pc.FixturesDir)
	pc.OutputsDir = resolvePath(base, pc.OutputsDir)
	pc.Metrics.Addr = strings.TrimSpace(pc.Metrics.Addr)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if _, err := contracts.ParseEnforcement(pc.Enforcement); err != nil {
		return err
	}
	if pc.Runtime.MaxParallel < 0 {
		return fmt.Errorf("runtime.max_parallel must be >= 0")
	}
	if pc.Runtime.BatchSize < 0 {
		return fmt.Errorf("runtime.batch_size must be >= 0")
	}
	stages := make([]int, 0, len(pc.Gates))
	for stage := range pc.Gates {
		stages = append(stages, stage)
	}
	sort.Ints(stages)
	for _, stage := range stages {
		if stage < contracts.FirstStage || stage > contracts.LastStage {
			return fmt.Errorf("gates: stage %d is outside %d..%d", stage, contracts.FirstStage, contracts.LastStage)
		}
	}
	return nil
}

func copyGates(gates map[int]GateConfig) map[int]GateConfig {
	if gates == nil {
		return nil
	}
	out := make(map[int]GateConfig, len(gates))
	for stage, gate := range gates {
		out[stage] = gate
	}
	return out
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.stored.applyDefaults()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.StagegateProjectDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure stagegate dir: %w", err)
	}
	data, err := yaml.Marshal(c.stored)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
