package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/uptimeflare/monitorsync/internal/extract"
	"github.com/uptimeflare/monitorsync/internal/patch"
)

const (
	envConfigPath     = "MONITORSYNC_CONFIG"
	DefaultConfigPath = ".github/monitorsync.yaml"

	DefaultSourcePath   = "uptime.config.ts"
	DefaultTemplatePath = ".github/ISSUE_TEMPLATE/monitor_issue.yml"
	DefaultMaxBytes     = "1MiB"
	DefaultMinInterval  = 2 * time.Second
)

type Config struct {
	Source    SourceConfig     `yaml:"source"`
	Templates []TemplateConfig `yaml:"templates"`
	Options   OptionsConfig    `yaml:"options"`
	Watch     WatchConfig      `yaml:"watch"`
}

type SourceConfig struct {
	Path          string `yaml:"path"`
	CollectionKey string `yaml:"collection_key"`
	IDKey         string `yaml:"id_key"`
	NameKey       string `yaml:"name_key"`
	MaxBytes      string `yaml:"max_bytes"`
	// Signature is a detached Minisign signature of the source. When set,
	// one of PublicKey or PublicKeyFile must be configured.
	Signature     string `yaml:"signature"`
	PublicKey     string `yaml:"public_key"`
	PublicKeyFile string `yaml:"public_key_file"`
}

type TemplateConfig struct {
	// Path may be a doublestar glob such as .github/ISSUE_TEMPLATE/*.yml.
	Path         string `yaml:"path"`
	Marker       string `yaml:"marker"`
	Anchor       string `yaml:"anchor"`
	ValidateYAML *bool  `yaml:"validate_yaml"`
}

type OptionsConfig struct {
	LabelFormat string `yaml:"label_format"`
	AllLabel    string `yaml:"all_label"`
	AllValue    string `yaml:"all_value"`
}

type WatchConfig struct {
	MinInterval time.Duration `yaml:"min_interval"`
}

// ShouldValidateYAML defaults to true for .yml and .yaml targets.
func (t TemplateConfig) ShouldValidateYAML(path string) bool {
	if t.ValidateYAML != nil {
		return *t.ValidateYAML
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yml" || ext == ".yaml"
}

// MaxSourceBytes returns the parsed source size limit.
func (c Config) MaxSourceBytes() (int64, error) {
	def, _ := ParseSize(DefaultMaxBytes, 0)
	return ParseSize(c.Source.MaxBytes, def)
}

func Default() Config {
	return Config{
		Source: SourceConfig{
			Path:          DefaultSourcePath,
			CollectionKey: extract.DefaultCollectionKey,
			IDKey:         extract.DefaultIDKey,
			NameKey:       extract.DefaultNameKey,
			MaxBytes:      DefaultMaxBytes,
		},
		Templates: []TemplateConfig{{Path: DefaultTemplatePath, Marker: patch.DefaultMarker}},
		Options: OptionsConfig{
			LabelFormat: patch.DefaultLabelFormat,
			AllLabel:    patch.DefaultAllLabel,
			AllValue:    patch.DefaultAllValue,
		},
		Watch: WatchConfig{MinInterval: DefaultMinInterval},
	}
}

// ApplyDefaults fills every empty field with its default.
func (c *Config) ApplyDefaults() {
	def := Default()
	setDefault(&c.Source.Path, def.Source.Path)
	setDefault(&c.Source.CollectionKey, def.Source.CollectionKey)
	setDefault(&c.Source.IDKey, def.Source.IDKey)
	setDefault(&c.Source.NameKey, def.Source.NameKey)
	setDefault(&c.Source.MaxBytes, def.Source.MaxBytes)
	if len(c.Templates) == 0 {
		c.Templates = def.Templates
	}
	for i := range c.Templates {
		setDefault(&c.Templates[i].Marker, patch.DefaultMarker)
	}
	setDefault(&c.Options.LabelFormat, def.Options.LabelFormat)
	setDefault(&c.Options.AllLabel, def.Options.AllLabel)
	setDefault(&c.Options.AllValue, def.Options.AllValue)
	if c.Watch.MinInterval <= 0 {
		c.Watch.MinInterval = def.Watch.MinInterval
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Source.Path) == "" {
		return errors.New("source.path is required")
	}
	if len(c.Templates) == 0 {
		return errors.New("at least one template is required")
	}
	for i, tmpl := range c.Templates {
		if strings.TrimSpace(tmpl.Path) == "" {
			return fmt.Errorf("templates[%d].path is required", i)
		}
	}
	if c.Source.IDKey == c.Source.NameKey {
		return fmt.Errorf("source.id_key and source.name_key must differ (both %q)", c.Source.IDKey)
	}
	if _, err := c.MaxSourceBytes(); err != nil {
		return fmt.Errorf("source.max_bytes: %w", err)
	}
	if c.Source.Signature != "" && c.Source.PublicKey == "" && c.Source.PublicKeyFile == "" {
		return errors.New("source.signature requires source.public_key or source.public_key_file")
	}
	if !strings.Contains(c.Options.LabelFormat, "{id}") && !strings.Contains(c.Options.LabelFormat, "{name}") {
		return fmt.Errorf("options.label_format %q references neither {id} nor {name}", c.Options.LabelFormat)
	}
	return nil
}

// Load reads the YAML configuration at path, merges it over the defaults
// and validates the result. Unknown keys are rejected.
func Load(ctx context.Context, path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by MONITORSYNC_CONFIG, falling back to
// DefaultConfigPath. A missing default file yields the built-in defaults; a
// missing file named explicitly is an error.
func LoadFromEnv(ctx context.Context) (Config, error) {
	path := os.Getenv(envConfigPath)
	if path != "" {
		return Load(ctx, path)
	}
	if _, err := os.Stat(DefaultConfigPath); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(ctx, DefaultConfigPath)
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}
