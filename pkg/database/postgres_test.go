package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/pkg/config"
)

func TestDriverName(t *testing.T) {
	name, err := DriverName("")
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, name)

	name, err = DriverName("pgx")
	require.NoError(t, err)
	assert.Equal(t, DriverPgx, name)

	_, err = DriverName("mysql")
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "subs", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=subs sslmode=disable", dsn)
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationFiles()
	require.NoError(t, err)
	assert.Contains(t, entries, "00001_init.sql")
}
