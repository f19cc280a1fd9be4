package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	organizationdomain "github.com/mutualabs/mutua/internal/organization/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) organizationdomain.Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*organizationdomain.Organization, error) {
	var org organizationdomain.Organization
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func (r *repository) FindFirst(ctx context.Context) (*organizationdomain.Organization, error) {
	var org organizationdomain.Organization
	err := r.db.WithContext(ctx).Order("id asc").First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func (r *repository) Insert(ctx context.Context, org *organizationdomain.Organization) error {
	return r.db.WithContext(ctx).Create(org).Error
}
