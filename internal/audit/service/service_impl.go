package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/mutualabs/mutua/internal/audit/domain"
	"github.com/mutualabs/mutua/internal/clock"
	"github.com/mutualabs/mutua/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) AuditLog(ctx context.Context, action, targetType string, targetID *string, details map[string]any) error {
	orgID, _ := orgcontext.OrgIDFromContext(ctx)

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		CreatedAt:  s.clock.Now(ctx),
	}
	if details != nil {
		entry.Metadata = datatypes.JSONMap(details)
	}

	return s.db.WithContext(ctx).Create(&entry).Error
}

func (s *Service) List(ctx context.Context, targetType string, targetID string) ([]auditdomain.AuditLog, error) {
	orgID, _ := orgcontext.OrgIDFromContext(ctx)

	query := s.db.WithContext(ctx).
		Model(&auditdomain.AuditLog{}).
		Where("org_id = ?", orgID)
	if targetType != "" {
		query = query.Where("target_type = ?", targetType)
	}
	if targetID != "" {
		query = query.Where("target_id = ?", targetID)
	}

	var items []auditdomain.AuditLog
	err := query.Order("created_at desc").Limit(500).Find(&items).Error
	return items, err
}
