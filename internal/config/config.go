// Package config loads the content-management core's configuration from a
// YAML file, with every field overridable by an environment variable and
// falling back to a struct-tag default when neither is set.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mantonx/cdscore/internal/logger"
)

// Config holds the complete core configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database" json:"database"`
	Scanner  ScannerConfig  `yaml:"scanner" json:"scanner"`
	Layout   LayoutConfig   `yaml:"layout" json:"layout"`
	Playback PlaybackConfig `yaml:"playback" json:"playback"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// DatabaseConfig configures the bundled GORM reference database.
type DatabaseConfig struct {
	Type            string        `yaml:"type" json:"type" env:"CDSCORE_DATABASE_TYPE" default:"sqlite"`
	Path            string        `yaml:"path" json:"path" env:"CDSCORE_DATABASE_PATH" default:"./data/cdscore.db"`
	Host            string        `yaml:"host" json:"host" env:"CDSCORE_POSTGRES_HOST" default:"localhost"`
	Port            int           `yaml:"port" json:"port" env:"CDSCORE_POSTGRES_PORT" default:"5432"`
	Username        string        `yaml:"username" json:"username" env:"CDSCORE_POSTGRES_USER" default:"cdscore"`
	Password        string        `yaml:"password" json:"-" env:"CDSCORE_POSTGRES_PASSWORD"`
	Database        string        `yaml:"database" json:"database" env:"CDSCORE_POSTGRES_DB" default:"cdscore"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" env:"CDSCORE_DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" env:"CDSCORE_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"CDSCORE_DB_CONN_MAX_LIFETIME" default:"1h"`
}

// ScannerConfig configures the task scheduler and the add/rescan engines.
type ScannerConfig struct {
	FollowSymlinks       bool              `yaml:"follow_symlinks" json:"follow_symlinks" env:"CDSCORE_FOLLOW_SYMLINKS" default:"false"`
	IncludeHidden        bool              `yaml:"include_hidden" json:"include_hidden" env:"CDSCORE_INCLUDE_HIDDEN" default:"false"`
	UseEventWatcher      bool              `yaml:"use_event_watcher" json:"use_event_watcher" env:"CDSCORE_USE_EVENT_WATCHER" default:"true"`
	ProcessExisting      bool              `yaml:"process_existing" json:"process_existing" env:"CDSCORE_PROCESS_EXISTING" default:"false"`
	DefaultUpdateAtStart time.Duration     `yaml:"default_update_at_start" json:"default_update_at_start" env:"CDSCORE_DEFAULT_UPDATE_AT_START" default:"0s"`
	EventDebounce        time.Duration     `yaml:"event_debounce" json:"event_debounce" env:"CDSCORE_EVENT_DEBOUNCE" default:"750ms"`
	IgnorePatterns       []string          `yaml:"ignore_patterns" json:"ignore_patterns" env:"CDSCORE_IGNORE_PATTERNS"`
	MimetypeToContentType map[string]string `yaml:"mimetype_to_content_type" json:"mimetype_to_content_type"`
}

// LayoutMappingRule is one regex→replacement step applied, in order, to a
// virtual container chain before it is cached or persisted.
type LayoutMappingRule struct {
	Pattern     string `yaml:"pattern" json:"pattern"`
	Replacement string `yaml:"replacement" json:"replacement"`
}

// LayoutConfig configures the virtual layout and container-art assignment.
type LayoutConfig struct {
	Type                 string              `yaml:"layout_type" json:"layout_type" env:"CDSCORE_LAYOUT_TYPE" default:"builtin"`
	ReadableNames        bool                `yaml:"readable_names" json:"readable_names" env:"CDSCORE_READABLE_NAMES" default:"true"`
	ContainerArtParents  int                 `yaml:"container_art_parent_count" json:"container_art_parent_count" env:"CDSCORE_CONTAINER_ART_PARENTS" default:"3"`
	ContainerArtMinDepth int                 `yaml:"container_art_min_depth" json:"container_art_min_depth" env:"CDSCORE_CONTAINER_ART_MIN_DEPTH" default:"0"`
	Separator            string              `yaml:"virtual_container_separator" json:"virtual_container_separator" env:"CDSCORE_VCONTAINER_SEP" default:"/"`
	Escape               string              `yaml:"virtual_container_escape" json:"virtual_container_escape" env:"CDSCORE_VCONTAINER_ESCAPE" default:"\\"`
	Mapping              []LayoutMappingRule `yaml:"layout_mapping" json:"layout_mapping"`
}

// PlaybackConfig configures the play-hook.
type PlaybackConfig struct {
	MarkPlayedEnabled        bool     `yaml:"mark_played_enabled" json:"mark_played_enabled" env:"CDSCORE_MARK_PLAYED" default:"true"`
	MarkPlayedMimePrefixes   []string `yaml:"mark_played_mime_prefixes" json:"mark_played_mime_prefixes" env:"CDSCORE_MARK_PLAYED_PREFIXES"`
	SuppressUpdatesOnPlay    bool     `yaml:"suppress_cds_updates_on_play" json:"suppress_cds_updates_on_play" env:"CDSCORE_SUPPRESS_UPDATES_ON_PLAY" default:"false"`
	LastOpenedBound          int      `yaml:"last_opened_bound" json:"last_opened_bound" env:"CDSCORE_LAST_OPENED_BOUND" default:"5"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" env:"CDSCORE_LOG_LEVEL" default:"info"`
}

// DefaultConfig returns the default core configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Type:            "sqlite",
			Path:            "./data/cdscore.db",
			Port:            5432,
			Username:        "cdscore",
			Database:        "cdscore",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Scanner: ScannerConfig{
			UseEventWatcher: true,
			EventDebounce:   750 * time.Millisecond,
			IgnorePatterns:  []string{".*", "Thumbs.db", ".DS_Store"},
		},
		Layout: LayoutConfig{
			Type:                 "builtin",
			ReadableNames:        true,
			ContainerArtParents:  3,
			ContainerArtMinDepth: 0,
			Separator:            "/",
			Escape:               "\\",
		},
		Playback: PlaybackConfig{
			MarkPlayedEnabled:      true,
			MarkPlayedMimePrefixes: []string{"video", "audio"},
			LastOpenedBound:        5,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Manager loads and holds the process-wide configuration.
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
}

var (
	globalManager *Manager
	once          sync.Once
)

// GetManager returns the global configuration manager instance.
func GetManager() *Manager {
	once.Do(func() {
		globalManager = &Manager{config: DefaultConfig()}
	})
	return globalManager
}

// Load loads configuration from a YAML file (if present) and then from the
// environment, falling back to struct-tag defaults for anything unset.
func (m *Manager) Load(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.configPath = path
	cfg := DefaultConfig()
	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), true); err != nil {
		return fmt.Errorf("apply config defaults: %w", err)
	}

	if path != "" && fileExists(path) {
		if err := loadFromFile(path, cfg); err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), false); err != nil {
		return fmt.Errorf("load config from environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	m.config = cfg
	logger.SetLevel(cfg.Logging.Level)
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	return &cfg
}

// Load loads configuration into the global manager.
func Load(path string) error { return GetManager().Load(path) }

// Get returns the global configuration.
func Get() *Config { return GetManager().Get() }

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".json":
		return json.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config file format: %s", filepath.Ext(path))
	}
}

// loadStructFromEnv walks v's tagged fields. With defaultsOnly it fills
// each still-zero field from its default tag (run before the file is
// read); otherwise it sets each field whose environment variable is set.
func loadStructFromEnv(v reflect.Value, defaultsOnly bool) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, defaultsOnly); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		var value string
		if defaultsOnly {
			if !isZero(field) {
				continue
			}
			value = fieldType.Tag.Get("default")
		} else {
			value = os.Getenv(envTag)
		}
		if value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("field %s: %w", fieldType.Name, err)
		}
	}
	return nil
}

func isZero(v reflect.Value) bool {
	return v.IsZero()
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type: %v", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field kind: %v", field.Kind())
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Database.Type != "sqlite" && cfg.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
	switch cfg.Layout.Type {
	case "builtin", "js", "disabled":
	default:
		return fmt.Errorf("unsupported layout type: %s", cfg.Layout.Type)
	}
	if cfg.Playback.LastOpenedBound <= 0 {
		return fmt.Errorf("last_opened_bound must be positive")
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
