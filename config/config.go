// Package config loads certforge.yaml.
package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ByLCY/certforge/records"
)

// Environment variables that override file values.
const (
	EnvSchoolName = "CERTFORGE_SCHOOL_NAME"
	EnvOutputDir  = "CERTFORGE_OUTPUT_DIR"
)

// Config is the decoded configuration file.
type Config struct {
	School    records.School `yaml:"school"`
	Records   string         `yaml:"records"`    // default records file
	AssetsDir string         `yaml:"assets_dir"` // base dir for template fonts and images
	OutputDir string         `yaml:"output_dir"`
	Format    string         `yaml:"format"` // pdf or png
	DPI       float64        `yaml:"dpi"`    // png only
	Purpose   string         `yaml:"purpose"`
	// Templates maps a certificate kind to a custom template file.
	Templates map[string]string `yaml:"templates"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		AssetsDir: ".",
		OutputDir: "out",
		Format:    "pdf",
		DPI:       150,
		Templates: map[string]string{},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path yields the defaults. Format is lower-cased.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "error reading config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrap(err, "error parsing config file")
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvSchoolName); ok && strings.TrimSpace(v) != "" {
		c.School.Name = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvOutputDir); ok && strings.TrimSpace(v) != "" {
		c.OutputDir = strings.TrimSpace(v)
	}
}

// Validate checks the fields needed to issue a certificate.
func (c Config) Validate() error {
	if strings.TrimSpace(c.School.Name) == "" {
		return errors.Errorf("config: school name is empty (set school.name or %s)", EnvSchoolName)
	}
	switch strings.ToLower(c.Format) {
	case "pdf", "png":
	default:
		return errors.Errorf("config: unsupported format %q", c.Format)
	}
	if c.DPI <= 0 {
		return errors.Errorf("config: dpi must be positive, got %g", c.DPI)
	}
	if c.OutputDir == "" {
		return errors.New("config: output_dir is empty")
	}
	return nil
}
