package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSQLite(t *testing.T) {
	cfg := Config{Driver: "sqlite", DSN: "/tmp/evabot.db", MaxConnections: 8}
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, DriverSQLite, cfg.Driver)
	assert.Equal(t, 1, cfg.MaxConnections)
	assert.Equal(t, "migrations", cfg.MigrationsDir)
	assert.Equal(t, "sqlite3:///tmp/evabot.db", cfg.MigrateURL())
	assert.Equal(t, "/tmp/evabot.db", cfg.ConnString())
}

func TestNormalizePostgres(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "eva", Password: "p@ss", Name: "evabot"}
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, DriverPostgres, cfg.Driver)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 10, cfg.MaxConnections)
	assert.Equal(t, "postgres://eva:p%40ss@db:5432/evabot?sslmode=disable", cfg.MigrateURL())
	assert.Contains(t, cfg.ConnString(), "dbname=evabot")
}

func TestNormalizeRejects(t *testing.T) {
	cases := map[string]Config{
		"unknown driver":   {Driver: "mysql"},
		"sqlite no dsn":    {Driver: "sqlite3"},
		"postgres no host": {Driver: "postgres"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, cfg.Normalize())
		})
	}
}

func TestSelectApplied(t *testing.T) {
	files := []string{"0001_init.up.sql", "0002_lookups.up.sql", "0003_more.up.sql"}
	assert.Equal(t, []string{"0002_lookups.up.sql", "0003_more.up.sql"}, selectApplied(files, 1, 3))
	assert.Nil(t, selectApplied(files, 3, 3))
}
