// Package domain contains the organization model and store contract.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Organization struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:text;not null"`
	Active    bool         `gorm:"not null;default:true"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	FindFirst(ctx context.Context) (*Organization, error)
	Insert(ctx context.Context, org *Organization) error
}
