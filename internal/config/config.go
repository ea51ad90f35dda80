// Package config holds the datalad-ni tool configuration. It is stored as
// YAML and can be overridden from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete tool configuration.
type Config struct {
	Store      string       `yaml:"store"`
	Workers    int          `yaml:"workers"`
	LogJSON    bool         `yaml:"log_json"`
	Extractors []string     `yaml:"extractors"`
	DICOM      DICOMConfig  `yaml:"dicom"`
	Report     ReportConfig `yaml:"report"`
	Import     ImportConfig `yaml:"import"`
}

// DICOMConfig tunes the DICOM extractor.
type DICOMConfig struct {
	AggregateContent bool `yaml:"aggregate_content"`
	MaxFieldSize     int  `yaml:"max_field_size"`
}

// ReportConfig tunes the markdown report renderer.
type ReportConfig struct {
	Style string `yaml:"style"` // glamour style name, "auto" for terminal detection
	Width int    `yaml:"width"`
}

// ImportConfig holds defaults for create-study and import-dicoms.
type ImportConfig struct {
	ContainerURL string `yaml:"container_url"`
}

// DefaultExtractors is the extractor set used when none are configured.
var DefaultExtractors = []string{"dicom", "bids", "bids_dataset", "nifti1", "minc", "nidmresults", "fslfeat"}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Store:      filepath.Join(".datalad", "ni-metadata.db"),
		Workers:    0,
		Extractors: append([]string(nil), DefaultExtractors...),
		DICOM: DICOMConfig{
			AggregateContent: true,
			MaxFieldSize:     100000,
		},
		Report: ReportConfig{
			Style: "auto",
			Width: 80,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/datalad-ni/config.yaml, falling back
// to the user config directory.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		dir, err = os.UserConfigDir()
		if err != nil {
			return "config.yaml"
		}
	}
	return filepath.Join(dir, "datalad-ni", "config.yaml")
}

// Load reads the configuration at path. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.DICOM.MaxFieldSize < 0 {
		return fmt.Errorf("dicom.max_field_size must be >= 0, got %d", c.DICOM.MaxFieldSize)
	}
	if c.Store == "" {
		return fmt.Errorf("store path must not be empty")
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("DATALAD_NI_STORE"); v != "" {
		c.Store = v
	}
	if v := os.Getenv("DATALAD_NI_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DATALAD_NI_WORKERS %q: %w", v, err)
		}
		c.Workers = n
	}
	if v := os.Getenv("DATALAD_NI_LOG_JSON"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DATALAD_NI_LOG_JSON %q: %w", v, err)
		}
		c.LogJSON = b
	}
	if v := os.Getenv("DATALAD_NI_EXTRACTORS"); v != "" {
		c.Extractors = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
