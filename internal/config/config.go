package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sylwekczmil/cacp/internal/logging"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	TypeBatch       = "batch"
	TypeIncremental = "incremental"
)

const (
	SourceKEEL      = "keel"
	SourceCSV       = "csv"
	SourceSynthetic = "synthetic"
	SourceReference = "reference"
)

// EnvPrefix marks the environment variables that override file settings.
const EnvPrefix = "CACP_"

// Config describes one experiment: what to compare, on which data and where
// the results go.
type Config struct {
	Name      string `yaml:"name" validate:"required"`
	Type      string `yaml:"type" validate:"oneof=batch incremental"`
	OutputDir string `yaml:"output_dir" validate:"required"`
	// Registry is the sqlite file experiments are recorded in. Empty
	// disables recording.
	Registry string `yaml:"registry"`
	Seed     int64  `yaml:"seed"`

	Folds                  int      `yaml:"folds" validate:"oneof=5 10"`
	Balanced               bool     `yaml:"balanced"`
	CategoricalToNumerical bool     `yaml:"categorical_to_numerical"`
	Modifiers              []string `yaml:"modifiers" validate:"dive,oneof=normalize standardize"`

	Datasets    []DatasetConfig    `yaml:"datasets" validate:"required,min=1,dive"`
	Classifiers []ClassifierConfig `yaml:"classifiers" validate:"required,min=1,dive"`
	Metrics     []string           `yaml:"metrics"`

	Logging logging.LogConfig `yaml:"logging"`
}

type DatasetConfig struct {
	Source string `yaml:"source" validate:"required,oneof=keel csv synthetic reference"`
	Name   string `yaml:"name" validate:"required_unless=Source reference"`
	Dir    string `yaml:"dir" validate:"required_if=Source keel"`
	Path   string `yaml:"path" validate:"required_if=Source csv"`

	PerClass []int   `yaml:"per_class" validate:"omitempty,min=2,dive,gt=0"`
	Features int     `yaml:"features" validate:"gte=0"`
	Spread   float64 `yaml:"spread" validate:"gte=0"`
}

type ClassifierConfig struct {
	Name   string         `yaml:"name" validate:"required"`
	Label  string         `yaml:"label"`
	Params map[string]any `yaml:"params"`
}

var validate = validator.New()

// Default is the configuration every loaded file starts from.
func Default() *Config {
	return &Config{
		Type:                   TypeBatch,
		OutputDir:              "results",
		Seed:                   1,
		Folds:                  10,
		Balanced:               true,
		CategoricalToNumerical: true,
		Logging:                logging.DefaultConfig(),
	}
}

// Load reads an experiment file over the defaults, applies CACP_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// ApplyEnv overrides the output directory, registry, seed and log level from
// CACP_OUTPUT_DIR, CACP_REGISTRY, CACP_SEED and CACP_LOG_LEVEL.
func (c *Config) ApplyEnv() error {
	if v := env("OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := env("REGISTRY"); v != "" {
		c.Registry = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := env("SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %sSEED=%q is not an integer", ErrInvalidConfig, EnvPrefix, v)
		}
		c.Seed = seed
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, describe(err))
	}
	for i, ds := range c.Datasets {
		if ds.Source == SourceSynthetic && (len(ds.PerClass) < 2 || ds.Features < 1) {
			return fmt.Errorf("%w: datasets[%d]: synthetic data needs per_class for at least 2 classes and features", ErrInvalidConfig, i)
		}
	}
	return nil
}

// describe flattens validator errors into one line naming every failing
// field.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, len(verrs))
	for i, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			parts[i] = fmt.Sprintf("%s fails %s=%s", field, fe.Tag(), fe.Param())
		} else {
			parts[i] = fmt.Sprintf("%s fails %s", field, fe.Tag())
		}
	}
	return strings.Join(parts, "; ")
}
