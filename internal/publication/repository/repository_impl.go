package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	publicationdomain "github.com/mutualabs/mutua/internal/publication/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() publicationdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *publicationdomain.Publication) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*publicationdomain.Publication, error) {
	var p publicationdomain.Publication
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *repo) FindDraft(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*publicationdomain.Publication, error) {
	var p publicationdomain.Publication
	err := db.WithContext(ctx).
		Where("org_id = ? AND status = ?", orgID, publicationdomain.StatusDraft).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]publicationdomain.Publication, error) {
	var items []publicationdomain.Publication
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("id desc").
		Find(&items).Error
	return items, err
}

func (r *repo) TransitionFromDraft(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, to publicationdomain.Status, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	switch to {
	case publicationdomain.StatusPublished:
		updates["published_at"] = at
	case publicationdomain.StatusCancelled:
		updates["cancelled_at"] = at
	}

	res := db.WithContext(ctx).
		Model(&publicationdomain.Publication{}).
		Where("org_id = ? AND id = ? AND status = ?", orgID, id, publicationdomain.StatusDraft).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
