package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/mutualabs/mutua/internal/ledger/domain"
	"github.com/mutualabs/mutua/pkg/db/option"
	"github.com/mutualabs/mutua/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) InsertAccount(ctx context.Context, db *gorm.DB, account *ledgerdomain.Account) error {
	return db.WithContext(ctx).Create(account).Error
}

func (r *repo) FindAccountByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*ledgerdomain.Account, error) {
	var account ledgerdomain.Account
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) FindAccountByIdempotencyKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*ledgerdomain.Account, error) {
	var account ledgerdomain.Account
	err := db.WithContext(ctx).
		Where("org_id = ? AND idempotency_key = ?", orgID, key).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) FindAccountForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*ledgerdomain.Account, error) {
	query := db.WithContext(ctx)
	// sqlite has no FOR UPDATE; its single-writer transaction plus the
	// poster's keyed mutex give the same serialization.
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var account ledgerdomain.Account
	err := query.Where("org_id = ? AND id = ?", orgID, id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) ListAccountsByAffiliate(ctx context.Context, db *gorm.DB, orgID, affiliateID snowflake.ID) ([]ledgerdomain.Account, error) {
	var items []ledgerdomain.Account
	err := db.WithContext(ctx).
		Model(&ledgerdomain.Account{}).
		Where("org_id = ? AND affiliate_id = ?", orgID, affiliateID).
		Order("created_at asc").
		Find(&items).Error
	return items, err
}

func (r *repo) UpdateAccountBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID, balanceCents int64, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts SET current_balance_cents = ?, updated_at = ? WHERE id = ?`,
		balanceCents, at, accountID,
	).Error
}

func (r *repo) SaveAccount(ctx context.Context, db *gorm.DB, account *ledgerdomain.Account) error {
	return db.WithContext(ctx).Save(account).Error
}

func (r *repo) InsertMovement(ctx context.Context, db *gorm.DB, m *ledgerdomain.Movement) error {
	return db.WithContext(ctx).Create(m).Error
}

func (r *repo) FindMovementByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*ledgerdomain.Movement, error) {
	var m ledgerdomain.Movement
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *repo) ListMovements(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID, from, to time.Time) ([]ledgerdomain.Movement, error) {
	query := db.WithContext(ctx).
		Model(&ledgerdomain.Movement{}).
		Where("org_id = ? AND account_id = ?", orgID, accountID)
	if !from.IsZero() {
		query = query.Where("date >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("date <= ?", to)
	}

	var items []ledgerdomain.Movement
	err := query.Order("date asc, id asc").Find(&items).Error
	return items, err
}

func (r *repo) ListMovementsPage(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID, page pagination.Pagination) ([]ledgerdomain.Movement, error) {
	query := db.WithContext(ctx).
		Model(&ledgerdomain.Movement{}).
		Where("org_id = ? AND account_id = ?", orgID, accountID).
		Order("created_at desc, id desc")
	query = option.ApplyPagination(page).Apply(query)

	var items []ledgerdomain.Movement
	err := query.Find(&items).Error
	return items, err
}

func (r *repo) LastMovementBefore(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID, before time.Time) (*ledgerdomain.Movement, error) {
	var m ledgerdomain.Movement
	err := db.WithContext(ctx).
		Where("org_id = ? AND account_id = ? AND date < ?", orgID, accountID, before).
		Order("date desc, id desc").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}
