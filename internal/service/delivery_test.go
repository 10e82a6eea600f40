package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/safegear/services/ppe/internal/model"
	"example.com/safegear/services/ppe/internal/repository"
)

func newTestService() *deliveryService {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &deliveryService{
		events: NewNopPublisher(),
		log:    log,
	}
}

type testRepos struct {
	deliveries *mockDeliveryRepo
	items      *mockItemRepo
	workers    *mockWorkerRepo
	schedules  *mockScheduleRepo
}

func newTestRepos() (testRepos, txRepos) {
	m := testRepos{
		deliveries: new(mockDeliveryRepo),
		items:      new(mockItemRepo),
		workers:    new(mockWorkerRepo),
		schedules:  new(mockScheduleRepo),
	}
	return m, txRepos{
		deliveries: m.deliveries,
		items:      m.items,
		workers:    m.workers,
		schedules:  m.schedules,
	}
}

func activeWorker() *model.Worker {
	w := &model.Worker{Name: "Maria Souza", Email: "maria@example.com", Active: true}
	w.ID = uuid.New()
	return w
}

func stockedItem(onHand int) *model.EquipmentItem {
	i := &model.EquipmentItem{Name: "Safety boot", OnHand: onHand}
	i.ID = uuid.New()
	return i
}

func TestCreateDelivery(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	worker := activeWorker()
	item := stockedItem(10)

	m.workers.On("GetByID", ctx, worker.ID).Return(worker, nil)
	m.items.On("GetByID", ctx, item.ID).Return(item, nil)
	m.deliveries.On("ReservedQuantity", ctx, item.ID, (*uuid.UUID)(nil)).Return(0, nil)
	m.items.On("OutstandingLoanQuantity", ctx, item.ID).Return(0, nil)
	m.deliveries.On("Create", ctx, mock.AnythingOfType("*model.Delivery")).Return(nil)

	result, err := s.createInTx(ctx, r, &CreateDeliveryRequest{
		WorkerID: worker.ID,
		ItemID:   item.ID,
		Quantity: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PendingStatus, result.Delivery.Status)
	assert.Equal(t, 1, result.Delivery.StatusOrder)
	assert.Equal(t, 2, result.Delivery.Quantity)
	assert.Empty(t, result.Warnings)
	m.deliveries.AssertExpectations(t)
}

func TestCreateDeliveryQuantityBounds(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	_, r := newTestRepos()

	for _, quantity := range []int{0, -1, 101} {
		_, err := s.createInTx(ctx, r, &CreateDeliveryRequest{
			WorkerID: uuid.New(),
			ItemID:   uuid.New(),
			Quantity: quantity,
		})
		var validation *ValidationError
		require.ErrorAs(t, err, &validation, "quantity %d", quantity)
	}
}

func TestCreateDeliveryScheduledDateWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	_, r := newTestRepos()

	farFuture := time.Now().AddDate(2, 0, 0)
	_, err := s.createInTx(ctx, r, &CreateDeliveryRequest{
		WorkerID:      uuid.New(),
		ItemID:        uuid.New(),
		Quantity:      1,
		ScheduledDate: &farFuture,
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestCreateDeliveryInactiveWorker(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	worker := activeWorker()
	worker.Active = false
	m.workers.On("GetByID", ctx, worker.ID).Return(worker, nil)

	_, err := s.createInTx(ctx, r, &CreateDeliveryRequest{
		WorkerID: worker.ID,
		ItemID:   uuid.New(),
		Quantity: 1,
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	m.deliveries.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateDeliveryStockConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	worker := activeWorker()
	item := stockedItem(5)

	m.workers.On("GetByID", ctx, worker.ID).Return(worker, nil)
	m.items.On("GetByID", ctx, item.ID).Return(item, nil)
	m.deliveries.On("ReservedQuantity", ctx, item.ID, (*uuid.UUID)(nil)).Return(5, nil)
	m.items.On("OutstandingLoanQuantity", ctx, item.ID).Return(0, nil)

	_, err := s.createInTx(ctx, r, &CreateDeliveryRequest{
		WorkerID: worker.ID,
		ItemID:   item.ID,
		Quantity: 1,
	})
	var conflict *StockConflictError
	require.ErrorAs(t, err, &conflict)
	m.deliveries.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateDeliverySizeMismatchWarns(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	worker := activeWorker()
	worker.BootSize = "42"
	item := stockedItem(10)
	item.Size = "40"
	item.SizeKind = model.SizeBoot

	m.workers.On("GetByID", ctx, worker.ID).Return(worker, nil)
	m.items.On("GetByID", ctx, item.ID).Return(item, nil)
	m.deliveries.On("ReservedQuantity", ctx, item.ID, (*uuid.UUID)(nil)).Return(0, nil)
	m.items.On("OutstandingLoanQuantity", ctx, item.ID).Return(0, nil)
	m.deliveries.On("Create", ctx, mock.AnythingOfType("*model.Delivery")).Return(nil)

	result, err := s.createInTx(ctx, r, &CreateDeliveryRequest{
		WorkerID: worker.ID,
		ItemID:   item.ID,
		Quantity: 1,
	})
	require.NoError(t, err)
	// The mismatch is advisory; the delivery is still created
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "42")
	assert.Contains(t, result.Warnings[0], "40")
}

func TestApproveDelivery(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	reviewer := activeWorker()
	delivery := &model.Delivery{Status: model.PendingStatus}
	delivery.ID = uuid.New()

	m.deliveries.On("GetByID", ctx, delivery.ID).Return(delivery, nil)
	m.workers.On("GetByID", ctx, reviewer.ID).Return(reviewer, nil)
	m.deliveries.On("Save", ctx, delivery).Return(nil)

	got, err := s.reviewInTx(ctx, r, delivery.ID, reviewer.ID, model.ApprovedStatus, "")
	require.NoError(t, err)
	assert.Equal(t, model.ApprovedStatus, got.Status)
	require.NotNil(t, got.ReviewerID)
	assert.Equal(t, reviewer.ID, *got.ReviewerID)
}

func TestReproveKeepsNote(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	reviewer := activeWorker()
	delivery := &model.Delivery{Status: model.PendingStatus}
	delivery.ID = uuid.New()

	m.deliveries.On("GetByID", ctx, delivery.ID).Return(delivery, nil)
	m.workers.On("GetByID", ctx, reviewer.ID).Return(reviewer, nil)
	m.deliveries.On("Save", ctx, delivery).Return(nil)

	got, err := s.reviewInTx(ctx, r, delivery.ID, reviewer.ID, model.ReprovedStatus, "wrong size requested")
	require.NoError(t, err)
	assert.Equal(t, model.ReprovedStatus, got.Status)
	require.NotNil(t, got.ReviewNote)
	assert.Equal(t, "wrong size requested", *got.ReviewNote)
}

func TestReviewRejectsInactiveReviewer(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	reviewer := activeWorker()
	reviewer.Active = false
	delivery := &model.Delivery{Status: model.PendingStatus}
	delivery.ID = uuid.New()

	m.deliveries.On("GetByID", ctx, delivery.ID).Return(delivery, nil)
	m.workers.On("GetByID", ctx, reviewer.ID).Return(reviewer, nil)

	_, err := s.reviewInTx(ctx, r, delivery.ID, reviewer.ID, model.ApprovedStatus, "")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestReviewRejectsIllegalTransition(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	reviewer := activeWorker()
	delivery := &model.Delivery{Status: model.CompletedStatus}
	delivery.ID = uuid.New()

	m.deliveries.On("GetByID", ctx, delivery.ID).Return(delivery, nil)
	m.workers.On("GetByID", ctx, reviewer.ID).Return(reviewer, nil)

	_, err := s.reviewInTx(ctx, r, delivery.ID, reviewer.ID, model.ApprovedStatus, "")
	var invalid *model.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	m.deliveries.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestMarkDeliveredDebitsStock(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	item := stockedItem(10)
	delivery := &model.Delivery{Status: model.ApprovedStatus, ItemID: item.ID, Quantity: 3}
	delivery.ID = uuid.New()

	m.deliveries.On("GetByID", ctx, delivery.ID).Return(delivery, nil)
	m.items.On("GetByID", ctx, item.ID).Return(item, nil)
	m.items.On("AdjustOnHand", ctx, item.ID, -3).Return(nil)
	m.items.On("RecordMovement", ctx, mock.MatchedBy(func(mv *model.StockMovement) bool {
		return mv.Type == model.MovementOut && mv.Quantity == 3
	})).Return(nil)
	m.deliveries.On("Save", ctx, delivery).Return(nil)

	got, err := s.markDeliveredInTx(ctx, r, delivery.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveredStatus, got.Status)
	require.NotNil(t, got.ActualDeliveryDate)
	require.NotNil(t, got.DeliveredMarkedAt)
	m.items.AssertExpectations(t)
}

func TestMarkDeliveredRejectsFutureDate(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	delivery := &model.Delivery{Status: model.ApprovedStatus, Quantity: 1}
	delivery.ID = uuid.New()
	m.deliveries.On("GetByID", ctx, delivery.ID).Return(delivery, nil)

	future := time.Now().Add(48 * time.Hour)
	_, err := s.markDeliveredInTx(ctx, r, delivery.ID, &future)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestMarkDeliveredInsufficientOnHand(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	item := stockedItem(2)
	delivery := &model.Delivery{Status: model.ApprovedStatus, ItemID: item.ID, Quantity: 3}
	delivery.ID = uuid.New()

	m.deliveries.On("GetByID", ctx, delivery.ID).Return(delivery, nil)
	m.items.On("GetByID", ctx, item.ID).Return(item, nil)

	_, err := s.markDeliveredInTx(ctx, r, delivery.ID, nil)
	var conflict *StockConflictError
	require.ErrorAs(t, err, &conflict)
	m.items.AssertNotCalled(t, "AdjustOnHand", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkDeliveredFromPendingRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	delivery := &model.Delivery{Status: model.PendingStatus, Quantity: 1}
	delivery.ID = uuid.New()
	m.deliveries.On("GetByID", ctx, delivery.ID).Return(delivery, nil)

	_, err := s.markDeliveredInTx(ctx, r, delivery.ID, nil)
	var invalid *model.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestMarkDeliveredCreatesRenewal(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	item := stockedItem(10)
	scheduleID := uuid.New()
	schedule := &model.Schedule{
		Frequency: model.FrequencyMonthly,
		Count:     1,
		IsActive:  true,
	}
	schedule.ID = scheduleID

	delivery := &model.Delivery{
		Status:     model.ApprovedStatus,
		ItemID:     item.ID,
		WorkerID:   uuid.New(),
		ScheduleID: &scheduleID,
		Quantity:   2,
	}
	delivery.ID = uuid.New()

	m.deliveries.On("GetByID", ctx, delivery.ID).Return(delivery, nil)
	m.items.On("GetByID", ctx, item.ID).Return(item, nil)
	m.items.On("AdjustOnHand", ctx, item.ID, -2).Return(nil)
	m.items.On("RecordMovement", ctx, mock.Anything).Return(nil)
	m.deliveries.On("Save", ctx, delivery).Return(nil)
	m.schedules.On("GetByID", ctx, scheduleID).Return(schedule, nil)
	m.deliveries.On("ReservedQuantity", ctx, item.ID, (*uuid.UUID)(nil)).Return(0, nil)
	m.items.On("OutstandingLoanQuantity", ctx, item.ID).Return(0, nil)

	var renewal *model.Delivery
	m.deliveries.On("Create", ctx, mock.AnythingOfType("*model.Delivery")).
		Run(func(args mock.Arguments) {
			renewal = args.Get(1).(*model.Delivery)
		}).Return(nil)
	m.schedules.On("Save", ctx, schedule).Return(nil)

	// A fixed mid-month anchor keeps the expected renewal date stable
	// regardless of the day the test runs on
	base := time.Now().AddDate(0, 0, -45)
	actual := time.Date(base.Year(), base.Month(), 15, 12, 0, 0, 0, time.UTC)

	got, err := s.markDeliveredInTx(ctx, r, delivery.ID, &actual)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveredStatus, got.Status)
	require.NotNil(t, got.ActualDeliveryDate)
	assert.Equal(t, actual, *got.ActualDeliveryDate)

	require.NotNil(t, renewal)
	assert.Equal(t, model.PendingStatus, renewal.Status)
	assert.Equal(t, delivery.WorkerID, renewal.WorkerID)
	assert.Equal(t, 2, renewal.Quantity)
	require.NotNil(t, renewal.ScheduledDate)
	assert.Equal(t, actual.AddDate(0, 1, 0), *renewal.ScheduledDate)
	require.NotNil(t, schedule.NextRun)
}

func TestMarkDeliveredRenewalFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	item := stockedItem(10)
	scheduleID := uuid.New()
	delivery := &model.Delivery{
		Status:     model.ApprovedStatus,
		ItemID:     item.ID,
		ScheduleID: &scheduleID,
		Quantity:   1,
	}
	delivery.ID = uuid.New()

	m.deliveries.On("GetByID", ctx, delivery.ID).Return(delivery, nil)
	m.items.On("GetByID", ctx, item.ID).Return(item, nil)
	m.items.On("AdjustOnHand", ctx, item.ID, -1).Return(nil)
	m.deliveries.On("Save", ctx, delivery).Return(nil)
	m.schedules.On("GetByID", ctx, scheduleID).Return(nil, repository.ErrNotFound)

	// The out movement and the failure note both land
	m.items.On("RecordMovement", ctx, mock.MatchedBy(func(mv *model.StockMovement) bool {
		return mv.Type == model.MovementOut
	})).Return(nil)
	m.items.On("RecordMovement", ctx, mock.MatchedBy(func(mv *model.StockMovement) bool {
		return mv.Type == model.MovementNote
	})).Return(nil)

	got, err := s.markDeliveredInTx(ctx, r, delivery.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveredStatus, got.Status)
	m.items.AssertExpectations(t)
}

func TestRenewalSkipsOneShotAndInactive(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	scheduleID := uuid.New()
	delivery := &model.Delivery{ScheduleID: &scheduleID, Quantity: 1}

	once := &model.Schedule{Frequency: model.FrequencyOnce, IsActive: true}
	once.ID = scheduleID
	m.schedules.On("GetByID", ctx, scheduleID).Return(once, nil).Once()
	require.NoError(t, s.renewFromSchedule(ctx, r, delivery, time.Now()))

	inactive := &model.Schedule{Frequency: model.FrequencyMonthly, IsActive: false}
	inactive.ID = scheduleID
	m.schedules.On("GetByID", ctx, scheduleID).Return(inactive, nil).Once()
	require.NoError(t, s.renewFromSchedule(ctx, r, delivery, time.Now()))

	m.deliveries.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestUpdateQuantityOnDeliveredAdjustsStock(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	itemID := uuid.New()
	delivery := &model.Delivery{Status: model.DeliveredStatus, ItemID: itemID, Quantity: 2}
	delivery.ID = uuid.New()

	// Raising 2 -> 5 debits three more units
	m.items.On("AdjustOnHand", ctx, itemID, -3).Return(nil)
	m.items.On("RecordMovement", ctx, mock.MatchedBy(func(mv *model.StockMovement) bool {
		return mv.Type == model.MovementAdjust && mv.Quantity == 3
	})).Return(nil)

	require.NoError(t, s.applyQuantityChange(ctx, r, delivery, 5))
	assert.Equal(t, 5, delivery.Quantity)
	m.items.AssertExpectations(t)
}

func TestUpdateQuantityRevalidatesReservation(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	item := stockedItem(5)
	delivery := &model.Delivery{Status: model.ApprovedStatus, ItemID: item.ID, Quantity: 2}
	delivery.ID = uuid.New()

	m.items.On("GetByID", ctx, item.ID).Return(item, nil)
	m.deliveries.On("ReservedQuantity", ctx, item.ID, &delivery.ID).Return(3, nil)
	m.items.On("OutstandingLoanQuantity", ctx, item.ID).Return(0, nil)

	// 5 on hand minus 3 reserved by others leaves 2; asking 3 fails
	err := s.applyQuantityChange(ctx, r, delivery, 3)
	var conflict *StockConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 2, delivery.Quantity)
}

func TestUpdateItemChangeRevalidatesStock(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	m, r := newTestRepos()

	empty := stockedItem(0)
	delivery := &model.Delivery{Status: model.PendingStatus, ItemID: uuid.New(), Quantity: 5}
	delivery.ID = uuid.New()

	m.deliveries.On("GetByID", ctx, delivery.ID).Return(delivery, nil)
	m.items.On("GetByID", ctx, empty.ID).Return(empty, nil)
	// No self-exclusion: the prior reservation sits on the old item
	m.deliveries.On("ReservedQuantity", ctx, empty.ID, (*uuid.UUID)(nil)).Return(0, nil)
	m.items.On("OutstandingLoanQuantity", ctx, empty.ID).Return(0, nil)

	originalItemID := delivery.ItemID
	_, err := s.updateInTx(ctx, r, &UpdateDeliveryRequest{ID: delivery.ID, ItemID: &empty.ID})
	var conflict *StockConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, empty.ID, conflict.ItemID)
	assert.Equal(t, 5, conflict.Requested)
	assert.Equal(t, originalItemID, delivery.ItemID)
	m.deliveries.AssertCalled(t, "ReservedQuantity", ctx, empty.ID, (*uuid.UUID)(nil))
}

func TestBatchReportsPartialFailure(t *testing.T) {
	s := newTestService()
	ok := uuid.New()
	bad := uuid.New()

	result := s.batch([]uuid.UUID{ok, bad}, func(id uuid.UUID) error {
		if id == bad {
			return validationErrorf("boom")
		}
		return nil
	})

	assert.Equal(t, []uuid.UUID{ok}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, bad, result.Failed[0].ID)
	assert.Equal(t, "boom", result.Failed[0].Error)
}

func TestSizeWarnings(t *testing.T) {
	worker := activeWorker()
	worker.GloveSize = "M"

	unsized := &model.EquipmentItem{Name: "Helmet"}
	assert.Nil(t, sizeWarnings(worker, unsized))

	matching := &model.EquipmentItem{Name: "Glove", Size: "M", SizeKind: model.SizeGlove}
	assert.Nil(t, sizeWarnings(worker, matching))

	mismatch := &model.EquipmentItem{Name: "Glove", Size: "L", SizeKind: model.SizeGlove}
	assert.Len(t, sizeWarnings(worker, mismatch), 1)

	// Workers without a recorded size never warn
	blank := activeWorker()
	assert.Nil(t, sizeWarnings(blank, mismatch))
}
