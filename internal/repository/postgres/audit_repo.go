package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/pharmaops/doseflow/internal/domain"
)

type AuditRepo struct {
	db *gorm.DB
}

func NewAuditRepo(db *gorm.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Create always writes on the root handle. Audit entries arrive from an
// async worker and must not join a caller's transaction.
func (r *AuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
