package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"example.com/safegear/services/ppe/internal/model"
	"example.com/safegear/services/ppe/internal/repository"
)

type mockDeliveryRepo struct {
	mock.Mock
}

func (m *mockDeliveryRepo) Create(ctx context.Context, delivery *model.Delivery) error {
	args := m.Called(ctx, delivery)
	return args.Error(0)
}

func (m *mockDeliveryRepo) Save(ctx context.Context, delivery *model.Delivery) error {
	args := m.Called(ctx, delivery)
	return args.Error(0)
}

func (m *mockDeliveryRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Delivery, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Delivery), args.Error(1)
}

func (m *mockDeliveryRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.Delivery, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Delivery), args.Error(1)
}

func (m *mockDeliveryRepo) List(ctx context.Context, filter repository.DeliveryFilter, page repository.Page) ([]*model.Delivery, int64, error) {
	args := m.Called(ctx, filter, page)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*model.Delivery), args.Get(1).(int64), args.Error(2)
}

func (m *mockDeliveryRepo) FindPending(ctx context.Context) ([]*model.Delivery, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Delivery), args.Error(1)
}

func (m *mockDeliveryRepo) FindOverdue(ctx context.Context, now time.Time) ([]*model.Delivery, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Delivery), args.Error(1)
}

func (m *mockDeliveryRepo) FindUpcoming(ctx context.Context, now time.Time, days int) ([]*model.Delivery, error) {
	args := m.Called(ctx, now, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Delivery), args.Error(1)
}

func (m *mockDeliveryRepo) FindBySignatureKey(ctx context.Context, key string, statuses ...model.DeliveryStatus) ([]*model.Delivery, error) {
	args := m.Called(ctx, key, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Delivery), args.Error(1)
}

func (m *mockDeliveryRepo) ReservedQuantity(ctx context.Context, itemID uuid.UUID, exclude *uuid.UUID) (int, error) {
	args := m.Called(ctx, itemID, exclude)
	return args.Int(0), args.Error(1)
}

func (m *mockDeliveryRepo) CountByStatus(ctx context.Context) (map[model.DeliveryStatus]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.DeliveryStatus]int64), args.Error(1)
}

type mockItemRepo struct {
	mock.Mock
}

func (m *mockItemRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.EquipmentItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EquipmentItem), args.Error(1)
}

func (m *mockItemRepo) Save(ctx context.Context, item *model.EquipmentItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *mockItemRepo) AdjustOnHand(ctx context.Context, id uuid.UUID, delta int) error {
	args := m.Called(ctx, id, delta)
	return args.Error(0)
}

func (m *mockItemRepo) OutstandingLoanQuantity(ctx context.Context, itemID uuid.UUID) (int, error) {
	args := m.Called(ctx, itemID)
	return args.Int(0), args.Error(1)
}

func (m *mockItemRepo) RecordMovement(ctx context.Context, movement *model.StockMovement) error {
	args := m.Called(ctx, movement)
	return args.Error(0)
}

type mockWorkerRepo struct {
	mock.Mock
}

func (m *mockWorkerRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Worker, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Worker), args.Error(1)
}

func (m *mockWorkerRepo) FindActive(ctx context.Context) ([]*model.Worker, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Worker), args.Error(1)
}

type mockScheduleRepo struct {
	mock.Mock
}

func (m *mockScheduleRepo) Create(ctx context.Context, schedule *model.Schedule) error {
	args := m.Called(ctx, schedule)
	return args.Error(0)
}

func (m *mockScheduleRepo) Save(ctx context.Context, schedule *model.Schedule) error {
	args := m.Called(ctx, schedule)
	return args.Error(0)
}

func (m *mockScheduleRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Schedule), args.Error(1)
}

func (m *mockScheduleRepo) List(ctx context.Context) ([]*model.Schedule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Schedule), args.Error(1)
}

func (m *mockScheduleRepo) FindDue(ctx context.Context, now time.Time) ([]*model.Schedule, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Schedule), args.Error(1)
}
