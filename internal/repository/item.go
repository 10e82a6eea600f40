package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/safegear/services/ppe/internal/db"
	"example.com/safegear/services/ppe/internal/model"
)

// ItemRepository defines the interface for equipment item persistence
type ItemRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.EquipmentItem, error)
	Save(ctx context.Context, item *model.EquipmentItem) error
	AdjustOnHand(ctx context.Context, id uuid.UUID, delta int) error
	OutstandingLoanQuantity(ctx context.Context, itemID uuid.UUID) (int, error)
	RecordMovement(ctx context.Context, movement *model.StockMovement) error
}

// itemRepository implements ItemRepository
type itemRepository struct {
	db *gorm.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

// GetByID gets an equipment item by ID
func (r *itemRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.EquipmentItem, error) {
	var item model.EquipmentItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if db.IsRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// Save persists all fields of an item
func (r *itemRepository) Save(ctx context.Context, item *model.EquipmentItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// AdjustOnHand applies a delta to the item's on-hand quantity
func (r *itemRepository) AdjustOnHand(ctx context.Context, id uuid.UUID, delta int) error {
	result := r.db.WithContext(ctx).
		Model(&model.EquipmentItem{}).
		Where("id = ?", id).
		Update("on_hand", gorm.Expr("on_hand + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// OutstandingLoanQuantity sums the quantity of unreturned loans on the item
func (r *itemRepository) OutstandingLoanQuantity(ctx context.Context, itemID uuid.UUID) (int, error) {
	var loaned int64
	err := r.db.WithContext(ctx).
		Model(&model.Loan{}).
		Where("item_id = ?", itemID).
		Where("returned_at IS NULL").
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&loaned).Error
	if err != nil {
		return 0, err
	}
	return int(loaned), nil
}

// RecordMovement writes a stock accounting entry
func (r *itemRepository) RecordMovement(ctx context.Context, movement *model.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}
