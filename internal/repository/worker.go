package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/safegear/services/ppe/internal/db"
	"example.com/safegear/services/ppe/internal/model"
)

// WorkerRepository defines the interface for worker persistence
type WorkerRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Worker, error)
	FindActive(ctx context.Context) ([]*model.Worker, error)
}

// workerRepository implements WorkerRepository
type workerRepository struct {
	db *gorm.DB
}

// NewWorkerRepository creates a new worker repository
func NewWorkerRepository(db *gorm.DB) WorkerRepository {
	return &workerRepository{db: db}
}

// GetByID gets a worker by ID
func (r *workerRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Worker, error) {
	var worker model.Worker
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&worker).Error
	if err != nil {
		if db.IsRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &worker, nil
}

// FindActive finds all active workers
func (r *workerRepository) FindActive(ctx context.Context) ([]*model.Worker, error) {
	var workers []*model.Worker
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("name").
		Find(&workers).Error
	if err != nil {
		return nil, err
	}
	return workers, nil
}
