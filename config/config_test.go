package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pocket-ledger/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "ledger.db", cfg.DBPath)
	assert.Equal(t, 10, cfg.PageSize)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("PAGE_SIZE", "3")
	t.Setenv("DB_PATH", "/tmp/test.db")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 3, cfg.PageSize)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
}

func TestLoad_InvalidPageSize(t *testing.T) {
	t.Setenv("PAGE_SIZE", "zero")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestValidate_PostgresNeedsDSN(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	_, err := config.Load()
	assert.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://localhost/ledger?sslmode=disable")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBDriver)
}

func TestValidate_UnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")
	_, err := config.Load()
	assert.Error(t, err)
}
