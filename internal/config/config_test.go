package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigPassesValidation(t *testing.T) {
	require.NoError(t, validate(DefaultConfig()))
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	m := &Manager{config: DefaultConfig()}
	require.NoError(t, m.Load(""))

	cfg := m.Get()
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.True(t, cfg.Scanner.UseEventWatcher)
	assert.Equal(t, 750*time.Millisecond, cfg.Scanner.EventDebounce)
}

func TestLoadFromYAMLFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  type: postgres
  host: db.internal
layout:
  readable_names: false
`), 0o644))

	m := &Manager{config: DefaultConfig()}
	require.NoError(t, m.Load(path))

	cfg := m.Get()
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.False(t, cfg.Layout.ReadableNames)
	// Untouched fields keep their defaults.
	assert.Equal(t, "cdscore", cfg.Database.Username)
}

func TestEnvironmentOverridesFileAndDefaults(t *testing.T) {
	t.Setenv("CDSCORE_DATABASE_TYPE", "postgres")
	t.Setenv("CDSCORE_IGNORE_PATTERNS", "*.tmp, .cache")

	m := &Manager{config: DefaultConfig()}
	require.NoError(t, m.Load(""))

	cfg := m.Get()
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, []string{"*.tmp", ".cache"}, cfg.Scanner.IgnorePatterns)
}

func TestLoadRejectsUnsupportedDatabaseType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  type: mysql\n"), 0o644))

	m := &Manager{config: DefaultConfig()}
	assert.Error(t, m.Load(path))
}

func TestDSNSwitchesByDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = "./data/cdscore.db"
	assert.Equal(t, "./data/cdscore.db", cfg.DSN())

	cfg.Database.Type = "postgres"
	cfg.Database.Host = "localhost"
	cfg.Database.Username = "cdscore"
	cfg.Database.Password = "secret"
	cfg.Database.Database = "cdscore"
	cfg.Database.Port = 5432
	assert.Contains(t, cfg.DSN(), "host=localhost")
	assert.Contains(t, cfg.DSN(), "dbname=cdscore")
}

func TestGetReturnsACopyNotASharedPointer(t *testing.T) {
	m := &Manager{config: DefaultConfig()}
	require.NoError(t, m.Load(""))

	a := m.Get()
	a.Database.Type = "mutated"

	b := m.Get()
	assert.Equal(t, "sqlite", b.Database.Type, "mutating a Get() result must not affect the manager's stored config")
}
