package database

import (
	"context"

	"gorm.io/gorm"
)

type gormAdapter struct {
	db *gorm.DB
}

// NewAdapter wraps a gorm handle in the Adapter interface
func NewAdapter(db *gorm.DB) Adapter {
	return &gormAdapter{db: db}
}

func (a *gormAdapter) Exec(ctx context.Context, stmt string, args ...interface{}) error {
	return a.db.WithContext(ctx).Exec(stmt, args...).Error
}

func (a *gormAdapter) Select(ctx context.Context, dest interface{}, stmt string, args ...interface{}) error {
	return a.db.WithContext(ctx).Raw(stmt, args...).Scan(dest).Error
}

func (a *gormAdapter) Transaction(ctx context.Context, fn func(tx Adapter) error) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormAdapter{db: tx})
	})
}
