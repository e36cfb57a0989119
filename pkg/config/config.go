// Package config loads the episodic.yaml file describing a corpus: where
// its records and digests live, the level table overrides, the state
// backend and the analyst.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/episodic/pkg/digest"
	"github.com/entrhq/episodic/pkg/level"
	"github.com/entrhq/episodic/pkg/logging"
	"github.com/entrhq/episodic/pkg/state"
	"github.com/entrhq/episodic/pkg/state/badgerstore"
)

const (
	// FileName is the config file looked up in the corpus root.
	FileName = "episodic.yaml"

	BackendFile   = "file"
	BackendBadger = "badger"

	AnalystPlaceholder = "placeholder"
	AnalystLLM         = "llm"

	// DefaultAPIKeyEnv is read when analyst.api_key_env is unset.
	DefaultAPIKeyEnv = "OPENAI_API_KEY"

	badgerDirName = "state.badger"
)

// RawConfig describes raw record files.
type RawConfig struct {
	Dir       string `yaml:"dir"`
	Prefix    string `yaml:"prefix"`
	Width     int    `yaml:"width"`
	Extension string `yaml:"extension"`
}

// StateConfig selects where watermarks and shadow buffers are kept.
type StateConfig struct {
	Backend string `yaml:"backend"`
	// Dir defaults to the digest directory for the file backend and to
	// <digests>/state.badger for badger.
	Dir string `yaml:"dir,omitempty"`
}

// LevelConfig overrides one level of the default table. Zero fields keep
// the default.
type LevelConfig struct {
	ID             string `yaml:"id"`
	EarlyThreshold int    `yaml:"early_threshold,omitempty"`
	PeriodDays     int    `yaml:"period_days,omitempty"`
}

// AnalystConfig selects who writes digest content.
type AnalystConfig struct {
	Kind           string  `yaml:"kind"`
	Model          string  `yaml:"model,omitempty"`
	BaseURL        string  `yaml:"base_url,omitempty"`
	APIKey         string  `yaml:"api_key,omitempty"`
	APIKeyEnv      string  `yaml:"api_key_env,omitempty"`
	Temperature    float64 `yaml:"temperature,omitempty"`
	MaxInputTokens int     `yaml:"max_input_tokens,omitempty"`
}

// LoggingConfig controls the session log.
type LoggingConfig struct {
	Verbosity string `yaml:"verbosity"`
	Dir       string `yaml:"dir,omitempty"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// Config models episodic.yaml.
type Config struct {
	Root       string        `yaml:"root,omitempty"`
	Raw        RawConfig     `yaml:"raw"`
	DigestsDir string        `yaml:"digests_dir"`
	State      StateConfig   `yaml:"state"`
	Levels     []LevelConfig `yaml:"levels,omitempty"`
	Analyst    AnalystConfig `yaml:"analyst"`
	Overwrite  string        `yaml:"overwrite"`
	Logging    LoggingConfig `yaml:"logging"`
	Metrics    MetricsConfig `yaml:"metrics,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	raw := level.DefaultRaw()
	return Config{
		Raw: RawConfig{
			Dir:       raw.Dir,
			Prefix:    raw.Prefix,
			Width:     raw.Width,
			Extension: raw.Extension,
		},
		DigestsDir: "Digests",
		State:      StateConfig{Backend: BackendFile},
		Analyst:    AnalystConfig{Kind: AnalystPlaceholder, APIKeyEnv: DefaultAPIKeyEnv},
		Overwrite:  digest.PolicyAbort.String(),
		Logging:    LoggingConfig{Verbosity: "normal"},
	}
}

// Load reads path over the defaults. Unknown keys are an error. A missing
// file is only tolerated when optional is set, in which case the defaults
// are returned. A relative root is resolved against the file's directory.
func Load(path string, optional bool) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && optional {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	base := filepath.Dir(path)
	switch {
	case cfg.Root == "":
		cfg.Root = base
	case !filepath.IsAbs(cfg.Root):
		cfg.Root = filepath.Join(base, cfg.Root)
	}
	return cfg, cfg.Validate()
}

// Validate checks every field that has a closed set of values.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.Registry(); err != nil {
		errs = append(errs, err)
	}
	switch c.State.Backend {
	case BackendFile, BackendBadger:
	default:
		errs = append(errs, fmt.Errorf("state.backend %q must be %s or %s", c.State.Backend, BackendFile, BackendBadger))
	}
	switch c.Analyst.Kind {
	case AnalystPlaceholder, AnalystLLM:
	default:
		errs = append(errs, fmt.Errorf("analyst.kind %q must be %s or %s", c.Analyst.Kind, AnalystPlaceholder, AnalystLLM))
	}
	if c.Analyst.MaxInputTokens < 0 {
		errs = append(errs, fmt.Errorf("analyst.max_input_tokens must not be negative"))
	}
	if _, err := c.Policy(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Verbosity(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Registry builds the level chain from the default table and the overrides.
func (c Config) Registry() (*level.Registry, error) {
	specs := level.DefaultSpecs()
	index := make(map[string]int, len(specs))
	for i, s := range specs {
		index[s.ID] = i
	}
	for _, o := range c.Levels {
		i, ok := index[o.ID]
		if !ok {
			return nil, fmt.Errorf("levels: %w: %q", level.ErrUnknownLevel, o.ID)
		}
		if o.EarlyThreshold < 0 || o.PeriodDays < 0 {
			return nil, fmt.Errorf("levels: %s: thresholds and periods must not be negative", o.ID)
		}
		if o.EarlyThreshold > 0 {
			specs[i].EarlyThreshold = o.EarlyThreshold
		}
		if o.PeriodDays > 0 {
			specs[i].PeriodWindow = time.Duration(o.PeriodDays) * level.Day
		}
	}
	raw := level.RawSpec{
		Dir:       c.Raw.Dir,
		Prefix:    c.Raw.Prefix,
		Width:     c.Raw.Width,
		Extension: c.Raw.Extension,
	}
	return level.NewRegistry(raw, specs)
}

// Layout maps the corpus onto disk.
func (c Config) Layout() level.Layout {
	lo := level.NewLayout(c.Root)
	if c.DigestsDir != "" {
		lo.Digests = c.DigestsDir
	}
	return lo
}

// Policy parses the overwrite setting.
func (c Config) Policy() (digest.OverwritePolicy, error) {
	return digest.ParseOverwritePolicy(c.Overwrite)
}

// Verbosity parses the logging verbosity.
func (c Config) Verbosity() (logging.Level, error) {
	return logging.ParseVerbosity(c.Logging.Verbosity)
}

// StateDir is where the configured backend keeps its data.
func (c Config) StateDir() string {
	dir := c.State.Dir
	switch {
	case dir == "" && c.State.Backend == BackendBadger:
		return filepath.Join(c.Layout().DigestsDir(), badgerDirName)
	case dir == "":
		return c.Layout().DigestsDir()
	case filepath.IsAbs(dir):
		return dir
	default:
		return filepath.Join(c.Root, dir)
	}
}

// LogDir is the session log directory, <root>/.episodic/logs by default.
func (c Config) LogDir() string {
	dir := c.Logging.Dir
	switch {
	case dir == "":
		return filepath.Join(c.Root, ".episodic", "logs")
	case filepath.IsAbs(dir):
		return dir
	default:
		return filepath.Join(c.Root, dir)
	}
}

// MetricsPath is the textfile export target; empty disables the export.
func (c Config) MetricsPath() string {
	p := c.Metrics.Textfile
	if p != "" && !filepath.IsAbs(p) {
		p = filepath.Join(c.Root, p)
	}
	return p
}

// OpenStore opens the configured state backend.
func (c Config) OpenStore(logger *logging.Logger) (state.Store, error) {
	switch strings.ToLower(c.State.Backend) {
	case BackendBadger:
		cfg := badgerstore.DefaultConfig(c.StateDir())
		cfg.Logger = logger
		return badgerstore.Open(cfg)
	case BackendFile, "":
		return state.NewFileStore(c.StateDir())
	default:
		return nil, fmt.Errorf("config: unknown state backend %q", c.State.Backend)
	}
}

// Marshal renders c as YAML, used to write a starter file.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
