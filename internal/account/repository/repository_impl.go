package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditledger/internal/account/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, account *domain.Account) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(account)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Account, error) {
	return r.find(db.WithContext(ctx), "id = ?", id)
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID int64) (*domain.Account, error) {
	return r.find(db.WithContext(ctx), "user_id = ?", userID)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Account, error) {
	return r.find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

func (r *repo) FindByUserIDForUpdate(ctx context.Context, db *gorm.DB, userID int64) (*domain.Account, error) {
	return r.find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "user_id = ?", userID)
}

func (r *repo) FindByReferralCode(ctx context.Context, db *gorm.DB, code string) (*domain.Account, error) {
	return r.find(db.WithContext(ctx), "referral_code = ?", code)
}

func (r *repo) find(stmt *gorm.DB, query string, args ...any) (*domain.Account, error) {
	var account domain.Account
	err := stmt.Model(&domain.Account{}).Where(query, args...).Limit(1).Find(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) UpdateAttribution(ctx context.Context, db *gorm.DB, id snowflake.ID, a domain.Attribution) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET utm_source = ?, utm_medium = ?, utm_campaign = ?, utm_content = ?, utm_term = ?, updated_at = ?
		 WHERE id = ?`,
		a.Source, a.Medium, a.Campaign, a.Content, a.Term, time.Now().UTC(), id,
	).Error
}

func (r *repo) AddFreeCredits(ctx context.Context, db *gorm.DB, id snowflake.ID, delta int) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts SET free_credits = free_credits + ?, updated_at = ? WHERE id = ?`,
		delta, time.Now().UTC(), id,
	).Error
}

func (r *repo) IncrementLifetimeConsumed(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts SET lifetime_consumed = lifetime_consumed + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	).Error
}

func (r *repo) SetReferralCode(ctx context.Context, db *gorm.DB, id snowflake.ID, code string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE accounts SET referral_code = ?, updated_at = ? WHERE id = ? AND referral_code IS NULL`,
		code, time.Now().UTC(), id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) SetReferrer(ctx context.Context, db *gorm.DB, id, referrerID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE accounts SET referrer_id = ?, updated_at = ? WHERE id = ? AND referrer_id IS NULL AND id <> ?`,
		referrerID, time.Now().UTC(), id, referrerID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) IncrementReferralCount(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts SET referral_count = referral_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	).Error
}
