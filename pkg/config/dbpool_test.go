package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBPoolSharesConnectionPerDSN(t *testing.T) {
	cfg := &DatabaseConfig{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "pool.db")}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	pool := NewDBPool()
	defer pool.Close()

	first, err := pool.Get(cfg)
	require.NoError(t, err)
	second, err := pool.Get(cfg)
	require.NoError(t, err)
	assert.Same(t, first, second, "same DSN must share one pool")

	other := &DatabaseConfig{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "other.db")}
	other.SetDefaults()
	third, err := pool.Get(other)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestDBPoolSqliteSingleWriter(t *testing.T) {
	cfg := &DatabaseConfig{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "writer.db")}
	cfg.SetDefaults()

	pool := NewDBPool()
	defer pool.Close()

	db, err := pool.Get(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestDBPoolReusableAfterClose(t *testing.T) {
	cfg := &DatabaseConfig{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "reuse.db")}
	cfg.SetDefaults()

	pool := NewDBPool()
	_, err := pool.Get(cfg)
	require.NoError(t, err)
	require.NoError(t, pool.Close())

	db, err := pool.Get(cfg)
	require.NoError(t, err)
	assert.NoError(t, db.Ping())
	assert.NoError(t, pool.Close())
}
