/**
 * @description
 * Resolved price database model.
 * Maps to the 'price_records' table in PostgreSQL.
 *
 * @dependencies
 * - gorm.io/gorm
 */

package models

import (
	"time"
)

// PriceRecord is the durable log entry for a resolved price. The composite
// unique index makes concurrent backfill writes idempotent.
type PriceRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Token     string    `gorm:"column:token;uniqueIndex:idx_price_records_key" json:"token"`
	Network   string    `gorm:"column:network;uniqueIndex:idx_price_records_key" json:"network"`
	Timestamp time.Time `gorm:"column:timestamp;uniqueIndex:idx_price_records_key" json:"timestamp"`
	Price     float64   `gorm:"column:price;type:decimal(30,12)" json:"price"`
	Source    string    `gorm:"column:source" json:"source"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName overrides the table name used by PriceRecord to `price_records`
func (PriceRecord) TableName() string {
	return "price_records"
}
