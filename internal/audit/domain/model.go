// Package domain defines the append-only audit trail.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	OrgID      snowflake.ID      `gorm:"not null;index"`
	Action     string            `gorm:"type:text;not null;index"`
	TargetType string            `gorm:"type:text;not null"`
	TargetID   *string           `gorm:"type:text;index"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

type Service interface {
	// AuditLog appends an entry. Callers treat failures as
	// best-effort; the business operation never fails on audit.
	AuditLog(ctx context.Context, action, targetType string, targetID *string, details map[string]any) error
	List(ctx context.Context, targetType string, targetID string) ([]AuditLog, error)
}
