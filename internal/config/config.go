package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"backer-go/internal/backer"
)

// Config represents the main configuration for backer.
type Config struct {
	BaseDir     string           `toml:"base_dir"`
	LogDir      string           `toml:"log_dir"`
	LogLevel    string           `toml:"log_level"`
	MetricsFile string           `toml:"metrics_file,omitempty"`
	Catalog     CatalogConfig    `toml:"catalog"`
	Markers     MarkersConfig    `toml:"markers"`
	Thumbnail   ThumbnailConfig  `toml:"thumbnail"`
	Filesystem  FilesystemConfig `toml:"filesystem"`

	// DatePath maps a marker id to its ordered path-to-date rules.
	DatePath map[string][]DatePathConfig `toml:"date-path"`
}

// CatalogConfig selects the catalog storage.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CatalogConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// MarkersConfig lists the marker files of the trees to scan.
type MarkersConfig struct {
	Disk []string `toml:"disk"`
}

// ThumbnailConfig sets the thumbnail bounding box and JPEG quality.
type ThumbnailConfig struct {
	Width   int `toml:"width"`
	Height  int `toml:"height"`
	Quality int `toml:"quality"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Extensions []string `toml:"extensions"`
	Ignore     []string `toml:"ignore"`
}

// DatePathConfig is one path-to-date rule as written in the config file.
type DatePathConfig struct {
	Path string `toml:"path"`
	Date string `toml:"date"`
}

// NewConfig creates a new Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Catalog: CatalogConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "catalog.db"),
		},
		Markers: MarkersConfig{Disk: []string{}},
		Thumbnail: ThumbnailConfig{
			Width:   backer.DefaultThumbnailSize,
			Height:  backer.DefaultThumbnailSize,
			Quality: 90,
		},
		Filesystem: FilesystemConfig{
			Extensions: []string{"jpg", "jpeg"},
		},
		DatePath: map[string][]DatePathConfig{},
	}
}

// DatePathRules compiles the date-path table, keyed by marker id.
func (c *Config) DatePathRules() (map[string][]backer.DatePathRule, error) {
	rules := make(map[string][]backer.DatePathRule, len(c.DatePath))
	for marker, entries := range c.DatePath {
		compiled := make([]backer.DatePathRule, 0, len(entries))
		for i, e := range entries {
			rule, err := backer.NewDatePathRule(e.Path, e.Date)
			if err != nil {
				return nil, fmt.Errorf("date-path rule %d for marker %q: %w", i, marker, err)
			}
			compiled = append(compiled, rule)
		}
		rules[marker] = compiled
	}
	return rules, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
