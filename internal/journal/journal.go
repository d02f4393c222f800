// Package journal persists the client's own order attempts and observed
// fills to a local sqlite database. The backend remains the source of truth;
// the journal only feeds notifications and session statistics.
package journal

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/predikt/tradeclient/internal/types"
)

// Journal wraps the local database.
type Journal struct {
	db *gorm.DB
}

// OrderRecord is one submission attempt, successful or not.
type OrderRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	MarketID    int64  `gorm:"index"`
	OutcomeName string `gorm:"index"`
	Outcome     string
	OrderType   string
	Price       decimal.Decimal `gorm:"type:decimal(10,6)"`
	Quantity    int64
	Status      string // "placed" or "failed"
	Error       string
	BackendID   int64
	CreatedAt   time.Time
}

// FillRecord is one of the caller's own trades as reported by my-trades.
type FillRecord struct {
	TradeID     int64 `gorm:"primaryKey"`
	MarketID    int64 `gorm:"index"`
	OutcomeName string
	Outcome     string
	Price       decimal.Decimal `gorm:"type:decimal(10,6)"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,6)"`
	TradedAt    time.Time
	CreatedAt   time.Time
}

// Open creates or opens the journal at path, creating parent directories as
// needed.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&OrderRecord{}, &FillRecord{}); err != nil {
		return nil, err
	}

	log.Info().Str("path", path).Msg("💾 Trade journal opened")
	return &Journal{db: db}, nil
}

// RecordPlaced journals a successful submission.
func (j *Journal) RecordPlaced(req types.OrderRequest, placed *types.Order) error {
	rec := OrderRecord{
		MarketID:    req.MarketID,
		OutcomeName: req.OutcomeName,
		Outcome:     string(req.Outcome),
		OrderType:   string(req.OrderType),
		Price:       req.Price,
		Quantity:    req.Quantity,
		Status:      "placed",
	}
	if placed != nil {
		rec.BackendID = placed.ID
	}
	return j.db.Create(&rec).Error
}

// RecordFailed journals a rejected submission.
func (j *Journal) RecordFailed(req types.OrderRequest, submitErr error) error {
	rec := OrderRecord{
		MarketID:    req.MarketID,
		OutcomeName: req.OutcomeName,
		Outcome:     string(req.Outcome),
		OrderType:   string(req.OrderType),
		Price:       req.Price,
		Quantity:    req.Quantity,
		Status:      "failed",
		Error:       submitErr.Error(),
	}
	return j.db.Create(&rec).Error
}

// RecordFills upserts observed fills. Trades are keyed by the backend's
// trade id, so re-polling the same history is a no-op.
func (j *Journal) RecordFills(marketID int64, trades []types.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	records := make([]FillRecord, 0, len(trades))
	for _, t := range trades {
		records = append(records, FillRecord{
			TradeID:     t.ID,
			MarketID:    marketID,
			OutcomeName: t.OutcomeName,
			Outcome:     string(t.Outcome),
			Price:       t.Price,
			Quantity:    t.Quantity,
			TradedAt:    t.CreatedAt,
		})
	}
	return j.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&records).Error
}

// RecentOrders returns the latest order attempts, newest first.
func (j *Journal) RecentOrders(limit int) ([]OrderRecord, error) {
	var records []OrderRecord
	err := j.db.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

// Stats returns counts of placed and failed submissions.
func (j *Journal) Stats() (placed, failed int64, err error) {
	if err = j.db.Model(&OrderRecord{}).Where("status = ?", "placed").Count(&placed).Error; err != nil {
		return 0, 0, err
	}
	if err = j.db.Model(&OrderRecord{}).Where("status = ?", "failed").Count(&failed).Error; err != nil {
		return 0, 0, err
	}
	return placed, failed, nil
}
