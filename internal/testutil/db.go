package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"helpdesk-autoreply/internal/config"
	"helpdesk-autoreply/internal/db"
)

// NewDB opens a migrated sqlite database in a per-test temp directory
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := db.Init(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "autoreply.db"),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return conn
}
