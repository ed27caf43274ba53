/**
 * @description
 * Durable, write-only log of resolved prices backed by PostgreSQL.
 * The core never reads these records back; downstream consumers do.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/jackc/pgx/v5/pgconn
 * - backend/internal/models
 */

package store

import (
	"context"
	"errors"

	"github.com/chronoprice-project/backend/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PriceStore struct {
	DB *gorm.DB
}

func NewPriceStore(db *gorm.DB) *PriceStore {
	return &PriceStore{DB: db}
}

// Append writes one resolved price. Conflicting (token, network, timestamp)
// rows are left untouched so concurrent resolutions of the same key stay
// idempotent.
func (s *PriceStore) Append(ctx context.Context, record models.PriceRecord) error {
	err := s.appendOnce(ctx, record)
	if err == nil {
		return nil
	}

	// Retry once on deadlock / serialization conflicts under concurrent backfill
	if retryableAppendErr(err) {
		return s.appendOnce(ctx, record)
	}
	return err
}

// retryableAppendErr reports whether err is a deadlock (40P01) or
// serialization failure (40001) that a single retry can clear.
func retryableAppendErr(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40P01" || pgErr.Code == "40001")
}

func (s *PriceStore) appendOnce(ctx context.Context, record models.PriceRecord) error {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "token"}, {Name: "network"}, {Name: "timestamp"},
		},
		DoNothing: true,
	}).Create(&record).Error
}
