package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Repository is the durable queue store: drafts, the processed-message
// ledger, poller runs and operator settings.
type Repository struct {
	db *gorm.DB
}

// New creates a repository over an open gorm connection
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying connection for health checks
func (r *Repository) DB() *gorm.DB {
	return r.db
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}
