package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/safegear/services/ppe/internal/model"
)

func TestComputeAvailability(t *testing.T) {
	ctx := context.Background()
	item := &model.EquipmentItem{OnHand: 10}
	item.ID = uuid.New()

	deliveries := new(mockDeliveryRepo)
	items := new(mockItemRepo)
	deliveries.On("ReservedQuantity", ctx, item.ID, (*uuid.UUID)(nil)).Return(4, nil)
	items.On("OutstandingLoanQuantity", ctx, item.ID).Return(2, nil)

	avail, err := computeAvailability(ctx, deliveries, items, item, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, avail.OnHand)
	assert.Equal(t, 4, avail.Reserved)
	assert.Equal(t, 2, avail.Loaned)
	assert.Equal(t, 4, avail.Available)
}

func TestEnsureAvailableRejectsOverCommitment(t *testing.T) {
	ctx := context.Background()
	item := &model.EquipmentItem{OnHand: 5}
	item.ID = uuid.New()

	deliveries := new(mockDeliveryRepo)
	items := new(mockItemRepo)
	deliveries.On("ReservedQuantity", ctx, item.ID, (*uuid.UUID)(nil)).Return(5, nil)
	items.On("OutstandingLoanQuantity", ctx, item.ID).Return(0, nil)

	err := ensureAvailable(ctx, deliveries, items, item, 1, nil)
	require.Error(t, err)

	var conflict *StockConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, item.ID, conflict.ItemID)
	assert.Equal(t, 5, conflict.OnHand)
	assert.Equal(t, 5, conflict.Reserved)
	assert.Equal(t, 1, conflict.Requested)
	assert.Equal(t, 0, conflict.Available)
}

func TestEnsureAvailableExactFitPasses(t *testing.T) {
	ctx := context.Background()
	item := &model.EquipmentItem{OnHand: 5}
	item.ID = uuid.New()

	deliveries := new(mockDeliveryRepo)
	items := new(mockItemRepo)
	deliveries.On("ReservedQuantity", ctx, item.ID, (*uuid.UUID)(nil)).Return(3, nil)
	items.On("OutstandingLoanQuantity", ctx, item.ID).Return(0, nil)

	assert.NoError(t, ensureAvailable(ctx, deliveries, items, item, 2, nil))
}

func TestEnsureAvailableExcludesOwnReservation(t *testing.T) {
	ctx := context.Background()
	item := &model.EquipmentItem{OnHand: 5}
	item.ID = uuid.New()
	own := uuid.New()

	deliveries := new(mockDeliveryRepo)
	items := new(mockItemRepo)
	// The repository receives the exclusion so the delivery's current
	// quantity does not count against its own revalidation
	deliveries.On("ReservedQuantity", ctx, item.ID, &own).Return(0, nil)
	items.On("OutstandingLoanQuantity", ctx, item.ID).Return(0, nil)

	assert.NoError(t, ensureAvailable(ctx, deliveries, items, item, 5, &own))
	deliveries.AssertCalled(t, "ReservedQuantity", ctx, item.ID, &own)
}

func TestEnsureAvailableLoansReserveStock(t *testing.T) {
	ctx := context.Background()
	item := &model.EquipmentItem{OnHand: 10}
	item.ID = uuid.New()

	deliveries := new(mockDeliveryRepo)
	items := new(mockItemRepo)
	deliveries.On("ReservedQuantity", ctx, item.ID, mock.Anything).Return(0, nil)
	items.On("OutstandingLoanQuantity", ctx, item.ID).Return(8, nil)

	err := ensureAvailable(ctx, deliveries, items, item, 3, nil)
	var conflict *StockConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 2, conflict.Available)
	assert.Equal(t, 8, conflict.Reserved)
}
