package cron

import (
	"context"

	"gorm.io/gorm"
)

// txRunner matches the shared database client's transaction entry point.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
