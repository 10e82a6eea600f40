package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/safegear/services/ppe/internal/db"
	"example.com/safegear/services/ppe/internal/model"
)

// ScheduleRepository defines the interface for schedule persistence
type ScheduleRepository interface {
	Create(ctx context.Context, schedule *model.Schedule) error
	Save(ctx context.Context, schedule *model.Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Schedule, error)
	List(ctx context.Context) ([]*model.Schedule, error)
	FindDue(ctx context.Context, now time.Time) ([]*model.Schedule, error)
}

// scheduleRepository implements ScheduleRepository
type scheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *gorm.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

// Create creates a new schedule with its line items
func (r *scheduleRepository) Create(ctx context.Context, schedule *model.Schedule) error {
	return r.db.WithContext(ctx).Create(schedule).Error
}

// Save persists all fields of a schedule
func (r *scheduleRepository) Save(ctx context.Context, schedule *model.Schedule) error {
	return r.db.WithContext(ctx).Omit("Items").Save(schedule).Error
}

// GetByID gets a schedule by ID with its line items
func (r *scheduleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	var schedule model.Schedule
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&schedule).Error
	if err != nil {
		if db.IsRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &schedule, nil
}

// List finds all schedules
func (r *scheduleRepository) List(ctx context.Context) ([]*model.Schedule, error) {
	var schedules []*model.Schedule
	err := r.db.WithContext(ctx).
		Preload("Items").
		Order("created_at DESC").
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

// FindDue finds active schedules whose next run has passed
func (r *scheduleRepository) FindDue(ctx context.Context, now time.Time) ([]*model.Schedule, error) {
	var schedules []*model.Schedule
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("is_active = ?", true).
		Where("next_run IS NOT NULL AND next_run <= ?", now).
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	return schedules, nil
}
