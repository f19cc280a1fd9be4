// Package option provides composable gorm query modifiers.
package option

import (
	"time"

	"github.com/mutualabs/mutua/pkg/db/pagination"
	"gorm.io/gorm"
)

// Option mutates a gorm query.
type Option interface {
	Apply(*gorm.DB) *gorm.DB
}

type optionFunc func(*gorm.DB) *gorm.DB

func (f optionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// ApplyPagination translates a cursor token into keyset conditions and
// over-fetches one row so the caller can detect a following page.
func ApplyPagination(page pagination.Pagination) Option {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		if page.PageToken != "" {
			cursor, err := pagination.DecodeCursor(page.PageToken)
			if err == nil {
				if at, perr := time.Parse(time.RFC3339, cursor.CreatedAt); perr == nil {
					db = db.Where(
						"(created_at < ?) OR (created_at = ? AND id < ?)",
						at, at, cursor.ID,
					)
				}
			}
		}
		if page.PageSize > 0 {
			db = db.Limit(page.PageSize + 1)
		}
		return db
	})
}
