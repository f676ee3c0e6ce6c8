package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

type Config struct {
	ListenAddr    string       `toml:"listen_addr"`
	SolrURL       string       `toml:"solr_url"`
	SolrTimeout   Duration     `toml:"solr_timeout"`
	DefinitionsDB string       `toml:"definitions_db"`
	Export        ExportConfig `toml:"export"`
}

type ExportConfig struct {
	CacheDir string `toml:"cache_dir"`
	// CacheURL, when set, redirects export downloads to an external
	// static file server instead of streaming from disk.
	CacheURL  string   `toml:"cache_url"`
	Freshness Duration `toml:"freshness"`
	MaxRows   int      `toml:"max_rows"`
	Compress  bool     `toml:"compress"`
}

type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func GetDefaultConfig() (*Config, error) {
	dataDir, err := GetDefaultDataDir()
	if err != nil {
		return nil, fmt.Errorf("getting default data directory: %w", err)
	}
	cacheDir, err := GetDefaultCacheDir()
	if err != nil {
		return nil, fmt.Errorf("getting default cache directory: %w", err)
	}
	return &Config{
		ListenAddr:    ":8000",
		SolrURL:       "http://localhost:8983/solr",
		SolrTimeout:   Duration{30 * time.Second},
		DefinitionsDB: filepath.Join(dataDir, "definitions.db"),
		Export: ExportConfig{
			CacheDir:  filepath.Join(cacheDir, "exports"),
			Freshness: Duration{10 * time.Minute},
			MaxRows:   100000,
		},
	}, nil
}

func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	defaults, err := GetDefaultConfig()
	if err != nil {
		return nil, err
	}
	if config.ListenAddr == "" {
		config.ListenAddr = defaults.ListenAddr
	}
	if config.SolrURL == "" {
		config.SolrURL = defaults.SolrURL
	}
	if config.SolrTimeout.Duration == 0 {
		config.SolrTimeout = defaults.SolrTimeout
	}
	if config.DefinitionsDB == "" {
		config.DefinitionsDB = defaults.DefinitionsDB
	}
	if config.Export.CacheDir == "" {
		config.Export.CacheDir = defaults.Export.CacheDir
	}
	if config.Export.Freshness.Duration == 0 {
		config.Export.Freshness = defaults.Export.Freshness
	}
	if config.Export.MaxRows == 0 {
		config.Export.MaxRows = defaults.Export.MaxRows
	}

	return &config, nil
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	template, err := c.generateConfigTemplate()
	if err != nil {
		return fmt.Errorf("generating config template: %w", err)
	}
	return os.WriteFile(configPath, []byte(template), 0644)
}

func (c *Config) generateConfigTemplate() (string, error) {
	dbPath := c.DefinitionsDB
	if dbPath == "" {
		dataDir, err := GetDefaultDataDir()
		if err != nil {
			return "", fmt.Errorf("getting default data directory: %w", err)
		}
		dbPath = filepath.Join(dataDir, "definitions.db")
	}

	// Replace the placeholder paths with the actual ones
	template := strings.Replace(configTemplate, "/home/user/.local/share/ocsearch/definitions.db", dbPath, 1)
	if c.Export.CacheDir != "" {
		template = strings.Replace(template, "/home/user/.cache/ocsearch/exports", c.Export.CacheDir, 1)
	}
	return template, nil
}

// GetDefaultDataDir returns the default data directory
func GetDefaultDataDir() (string, error) {
	// Use XDG_DATA_HOME if set, otherwise use ~/.local/share
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	appDir := filepath.Join(dataDir, "ocsearch")

	// Create the directory if it doesn't exist
	if err := os.MkdirAll(appDir, 0755); err != nil {
		return "", fmt.Errorf("creating data directory %s: %w", appDir, err)
	}

	return appDir, nil
}

// GetDefaultCacheDir returns the default cache directory
func GetDefaultCacheDir() (string, error) {
	// Use XDG_CACHE_HOME if set, otherwise use ~/.cache
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		cacheDir = filepath.Join(homeDir, ".cache")
	}

	appDir := filepath.Join(cacheDir, "ocsearch")

	if err := os.MkdirAll(appDir, 0755); err != nil {
		return "", fmt.Errorf("creating cache directory %s: %w", appDir, err)
	}

	return appDir, nil
}

// GetConfigDir returns the configuration directory
func GetConfigDir() (string, error) {
	// Use XDG_CONFIG_HOME if set, otherwise use ~/.config
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	appConfigDir := filepath.Join(configDir, "ocsearch")

	// Create the directory if it doesn't exist
	if err := os.MkdirAll(appConfigDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", appConfigDir, err)
	}

	return appConfigDir, nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
