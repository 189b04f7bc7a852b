package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vitwit/checkout/types"
)

var _ Store = (*GormStore)(nil)

type PaidOrder struct {
	ID          uint   `gorm:"primaryKey"`
	OrderKey    string `gorm:"uniqueIndex;not null"`
	Asset       string
	Network     string
	ObservedUSD float64
	TxHash      string
	Source      string
	PaidAt      time.Time
	CreatedAt   time.Time
}

// LastOrder holds a single row with ID lastOrderID.
type LastOrder struct {
	ID        uint `gorm:"primaryKey"`
	Total     decimal.Decimal
	Cart      []types.LineItem `gorm:"serializer:json"`
	Customer  types.Customer   `gorm:"serializer:json"`
	UpdatedAt time.Time
}

type Purchase struct {
	ID        string           `gorm:"primaryKey"`
	Email     string           `gorm:"uniqueIndex:idx_purchase_email_order;not null"`
	OrderKey  string           `gorm:"uniqueIndex:idx_purchase_email_order;not null"`
	Items     []types.LineItem `gorm:"serializer:json"`
	Total     decimal.Decimal
	Date      time.Time `gorm:"index"`
	Address   string
	Status    string
	CreatedAt time.Time
}

const lastOrderID = 1

// GormStore is the sqlite-backed Store.
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the sqlite database at path and migrates it.
func OpenSQLite(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; serialize instead of surfacing SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	return NewGormStore(db)
}

// NewGormStore migrates the ledger schema on db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&PaidOrder{}, &LastOrder{}, &Purchase{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) IsPaid(ctx context.Context, orderKey string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&PaidOrder{}).Where("order_key = ?", orderKey).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkPaid relies on the unique order_key index so concurrent producers race
// on a single insert.
func (s *GormStore) MarkPaid(ctx context.Context, outcome types.PaymentOutcome) (bool, error) {
	row := PaidOrder{
		OrderKey:    outcome.OrderKey,
		Asset:       string(outcome.Asset),
		Network:     string(outcome.Network),
		ObservedUSD: outcome.ObservedUSD,
		TxHash:      outcome.TxHash,
		Source:      string(outcome.Source),
		PaidAt:      outcome.Timestamp,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) Outcome(ctx context.Context, orderKey string) (types.PaymentOutcome, bool, error) {
	var row PaidOrder
	err := s.db.WithContext(ctx).Where("order_key = ?", orderKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.PaymentOutcome{}, false, nil
	}
	if err != nil {
		return types.PaymentOutcome{}, false, err
	}
	return types.PaymentOutcome{
		OrderKey:    row.OrderKey,
		Asset:       types.Asset(row.Asset),
		Network:     types.Network(row.Network),
		ObservedUSD: row.ObservedUSD,
		TxHash:      row.TxHash,
		Source:      types.OutcomeSource(row.Source),
		Timestamp:   row.PaidAt,
	}, true, nil
}

func (s *GormStore) LastOrder(ctx context.Context) (types.CompletedOrder, bool, error) {
	var row LastOrder
	err := s.db.WithContext(ctx).First(&row, lastOrderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.CompletedOrder{}, false, nil
	}
	if err != nil {
		return types.CompletedOrder{}, false, err
	}
	return types.CompletedOrder{Total: row.Total, Cart: row.Cart, Customer: row.Customer}, true, nil
}

func (s *GormStore) SaveLastOrder(ctx context.Context, order types.CompletedOrder) error {
	row := LastOrder{ID: lastOrderID, Total: order.Total, Cart: order.Cart, Customer: order.Customer}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *GormStore) SaveCustomer(ctx context.Context, customer types.Customer) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row LastOrder
		err := tx.First(&row, lastOrderID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		row.ID = lastOrderID
		row.Customer = customer
		return tx.Save(&row).Error
	})
}

func (s *GormStore) AppendPurchase(ctx context.Context, email string, rec types.PurchaseRecord) error {
	row := Purchase{
		ID:       rec.ID,
		Email:    email,
		OrderKey: rec.OrderKey,
		Items:    rec.Items,
		Total:    rec.Total,
		Date:     rec.Date,
		Address:  rec.Address,
		Status:   rec.Status,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

func (s *GormStore) Purchases(ctx context.Context, email string) ([]types.PurchaseRecord, error) {
	var rows []Purchase
	if err := s.db.WithContext(ctx).Where("email = ?", email).Order("date asc, created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.PurchaseRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.PurchaseRecord{
			ID:       r.ID,
			OrderKey: r.OrderKey,
			Items:    r.Items,
			Total:    r.Total,
			Date:     r.Date,
			Address:  r.Address,
			Status:   r.Status,
		})
	}
	return out, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
