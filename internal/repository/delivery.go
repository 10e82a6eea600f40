package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/safegear/services/ppe/internal/db"
	"example.com/safegear/services/ppe/internal/model"
)

// DeliveryFilter narrows List queries
type DeliveryFilter struct {
	WorkerID   *uuid.UUID
	ItemID     *uuid.UUID
	ScheduleID *uuid.UUID
	Status     *model.DeliveryStatus
}

// Page describes pagination and sorting for List queries
type Page struct {
	Offset int
	Limit  int
	Sort   string
}

// DeliveryRepository defines the interface for delivery persistence
type DeliveryRepository interface {
	Create(ctx context.Context, delivery *model.Delivery) error
	Save(ctx context.Context, delivery *model.Delivery) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Delivery, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.Delivery, error)
	List(ctx context.Context, filter DeliveryFilter, page Page) ([]*model.Delivery, int64, error)
	FindPending(ctx context.Context) ([]*model.Delivery, error)
	FindOverdue(ctx context.Context, now time.Time) ([]*model.Delivery, error)
	FindUpcoming(ctx context.Context, now time.Time, days int) ([]*model.Delivery, error)
	FindBySignatureKey(ctx context.Context, key string, statuses ...model.DeliveryStatus) ([]*model.Delivery, error)
	ReservedQuantity(ctx context.Context, itemID uuid.UUID, exclude *uuid.UUID) (int, error)
	CountByStatus(ctx context.Context) (map[model.DeliveryStatus]int64, error)
}

// deliveryRepository implements DeliveryRepository
type deliveryRepository struct {
	db *gorm.DB
}

// NewDeliveryRepository creates a new delivery repository. Pass a
// transaction handle to scope all calls to that transaction.
func NewDeliveryRepository(db *gorm.DB) DeliveryRepository {
	return &deliveryRepository{db: db}
}

// Create creates a new delivery
func (r *deliveryRepository) Create(ctx context.Context, delivery *model.Delivery) error {
	return r.db.WithContext(ctx).Omit("Worker", "Item", "Schedule", "Reviewer").Create(delivery).Error
}

// Save persists all fields of an existing delivery
func (r *deliveryRepository) Save(ctx context.Context, delivery *model.Delivery) error {
	return r.db.WithContext(ctx).Omit("Worker", "Item", "Schedule", "Reviewer").Save(delivery).Error
}

// GetByID gets a delivery by ID
func (r *deliveryRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Delivery, error) {
	var delivery model.Delivery
	err := r.db.WithContext(ctx).
		Preload("Worker").
		Preload("Item").
		Where("id = ?", id).
		First(&delivery).Error
	if err != nil {
		if db.IsRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &delivery, nil
}

// FindByIDs finds deliveries by a set of IDs
func (r *deliveryRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.Delivery, error) {
	var deliveries []*model.Delivery
	err := r.db.WithContext(ctx).
		Preload("Worker").
		Preload("Item").
		Where("id IN (?)", ids).
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

// List finds deliveries by filter with pagination
func (r *deliveryRepository) List(ctx context.Context, filter DeliveryFilter, page Page) ([]*model.Delivery, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Delivery{})
	if filter.WorkerID != nil {
		query = query.Where("worker_id = ?", *filter.WorkerID)
	}
	if filter.ItemID != nil {
		query = query.Where("item_id = ?", *filter.ItemID)
	}
	if filter.ScheduleID != nil {
		query = query.Where("schedule_id = ?", *filter.ScheduleID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sort := page.Sort
	if sort == "" {
		sort = "status_order, created_at DESC"
	}
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}

	var deliveries []*model.Delivery
	err := query.
		Preload("Worker").
		Preload("Item").
		Order(sort).
		Offset(page.Offset).
		Limit(limit).
		Find(&deliveries).Error
	if err != nil {
		return nil, 0, err
	}
	return deliveries, total, nil
}

// FindPending finds all pending deliveries
func (r *deliveryRepository) FindPending(ctx context.Context) ([]*model.Delivery, error) {
	var deliveries []*model.Delivery
	err := r.db.WithContext(ctx).
		Preload("Worker").
		Preload("Item").
		Where("status = ?", model.PendingStatus).
		Order("created_at").
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

// FindOverdue finds deliveries whose scheduled date has passed without a
// hand-off
func (r *deliveryRepository) FindOverdue(ctx context.Context, now time.Time) ([]*model.Delivery, error) {
	var deliveries []*model.Delivery
	err := r.db.WithContext(ctx).
		Preload("Worker").
		Preload("Item").
		Where("scheduled_date < ?", now).
		Where("status IN (?)", []model.DeliveryStatus{model.PendingStatus, model.ApprovedStatus}).
		Order("scheduled_date").
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

// FindUpcoming finds undelivered deliveries scheduled within the next N days
func (r *deliveryRepository) FindUpcoming(ctx context.Context, now time.Time, days int) ([]*model.Delivery, error) {
	var deliveries []*model.Delivery
	err := r.db.WithContext(ctx).
		Preload("Worker").
		Preload("Item").
		Where("scheduled_date >= ? AND scheduled_date <= ?", now, now.AddDate(0, 0, days)).
		Where("status IN (?)", []model.DeliveryStatus{model.PendingStatus, model.ApprovedStatus}).
		Order("scheduled_date").
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

// FindBySignatureKey finds the deliveries sharing one signature document,
// optionally narrowed to a set of statuses
func (r *deliveryRepository) FindBySignatureKey(ctx context.Context, key string, statuses ...model.DeliveryStatus) ([]*model.Delivery, error) {
	query := r.db.WithContext(ctx).
		Preload("Worker").
		Preload("Item").
		Where("signature_document_key = ?", key)
	if len(statuses) > 0 {
		query = query.Where("status IN (?)", statuses)
	}

	var deliveries []*model.Delivery
	if err := query.Find(&deliveries).Error; err != nil {
		return nil, err
	}
	return deliveries, nil
}

// ReservedQuantity sums the quantity of deliveries holding a reservation
// on the item. Delivered records already debited on-hand stock and are not
// counted. The exclude ID removes a delivery's own reservation when its
// quantity is being revalidated.
func (r *deliveryRepository) ReservedQuantity(ctx context.Context, itemID uuid.UUID, exclude *uuid.UUID) (int, error) {
	query := r.db.WithContext(ctx).
		Model(&model.Delivery{}).
		Where("item_id = ?", itemID).
		Where("status IN (?)", []model.DeliveryStatus{model.PendingStatus, model.ApprovedStatus})
	if exclude != nil {
		query = query.Where("id <> ?", *exclude)
	}

	var reserved int64
	err := query.Select("COALESCE(SUM(quantity), 0)").Scan(&reserved).Error
	if err != nil {
		return 0, err
	}
	return int(reserved), nil
}

// CountByStatus aggregates delivery counts per status
func (r *deliveryRepository) CountByStatus(ctx context.Context) (map[model.DeliveryStatus]int64, error) {
	type row struct {
		Status model.DeliveryStatus
		Total  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&model.Delivery{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.DeliveryStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}
