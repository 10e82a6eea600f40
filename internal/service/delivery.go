package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"example.com/safegear/services/ppe/internal/cache"
	"example.com/safegear/services/ppe/internal/metrics"
	"example.com/safegear/services/ppe/internal/model"
	"example.com/safegear/services/ppe/internal/repository"
	"example.com/safegear/services/ppe/internal/search"
)

const (
	// MaxDeliveryQuantity caps the quantity of a single delivery
	MaxDeliveryQuantity = 100
	// dateSanityWindow bounds scheduled/actual dates to a rolling year
	dateSanityWindow = 365 * 24 * time.Hour
	// deliveryDateGrace is how long the actual delivery date stays editable
	deliveryDateGrace = 30 * 24 * time.Hour
)

// CreateDeliveryRequest defines the request to create a delivery
type CreateDeliveryRequest struct {
	WorkerID      uuid.UUID  `json:"worker_id" binding:"required"`
	ItemID        uuid.UUID  `json:"item_id" binding:"required"`
	Quantity      int        `json:"quantity" binding:"required"`
	ScheduledDate *time.Time `json:"scheduled_date"`
	ScheduleID    *uuid.UUID `json:"schedule_id"`
}

// UpdateDeliveryRequest defines a partial update; nil fields are untouched
type UpdateDeliveryRequest struct {
	ID                 uuid.UUID  `json:"id"`
	WorkerID           *uuid.UUID `json:"worker_id"`
	ItemID             *uuid.UUID `json:"item_id"`
	ScheduleID         *uuid.UUID `json:"schedule_id"`
	Quantity           *int       `json:"quantity"`
	ScheduledDate      *time.Time `json:"scheduled_date"`
	ActualDeliveryDate *time.Time `json:"actual_delivery_date"`
}

// CreateDeliveryResult carries the created delivery plus non-fatal
// advisory warnings (size mismatches)
type CreateDeliveryResult struct {
	Delivery *model.Delivery `json:"delivery"`
	Warnings []string        `json:"warnings,omitempty"`
}

// BatchError reports one failed ID of a batch operation
type BatchError struct {
	ID    uuid.UUID `json:"id"`
	Error string    `json:"error"`
}

// BatchResult reports per-ID success and failure of a batch operation.
// Each ID runs in its own transaction; one failure does not abort the rest.
type BatchResult struct {
	Succeeded []uuid.UUID  `json:"succeeded"`
	Failed    []BatchError `json:"failed"`
}

// DeliveryService defines the delivery lifecycle operations
type DeliveryService interface {
	Create(ctx context.Context, req *CreateDeliveryRequest) (*CreateDeliveryResult, error)
	Update(ctx context.Context, req *UpdateDeliveryRequest) (*model.Delivery, error)
	Approve(ctx context.Context, id, reviewerID uuid.UUID) (*model.Delivery, error)
	Reprove(ctx context.Context, id, reviewerID uuid.UUID, note string) (*model.Delivery, error)
	Cancel(ctx context.Context, id uuid.UUID) (*model.Delivery, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, actualDate *time.Time, actor *uuid.UUID) (*model.Delivery, error)
	RevertDelivered(ctx context.Context, id uuid.UUID) (*model.Delivery, error)
	BatchApprove(ctx context.Context, ids []uuid.UUID, reviewerID uuid.UUID) *BatchResult
	BatchReprove(ctx context.Context, ids []uuid.UUID, reviewerID uuid.UUID, note string) *BatchResult
	BatchMarkDelivered(ctx context.Context, ids []uuid.UUID, actor *uuid.UUID) *BatchResult
	GetByID(ctx context.Context, id uuid.UUID) (*model.Delivery, error)
	List(ctx context.Context, filter repository.DeliveryFilter, page repository.Page) ([]*model.Delivery, int64, error)
	FindPending(ctx context.Context) ([]*model.Delivery, error)
	FindOverdue(ctx context.Context) ([]*model.Delivery, error)
	FindUpcoming(ctx context.Context, days int) ([]*model.Delivery, error)
	StatsByStatus(ctx context.Context) (map[model.DeliveryStatus]int64, error)
	ItemAvailability(ctx context.Context, itemID uuid.UUID) (*Availability, error)
	GetWorker(ctx context.Context, id uuid.UUID) (*model.Worker, error)
	GetItem(ctx context.Context, id uuid.UUID) (*model.EquipmentItem, error)
}

// txRepos bundles the transaction-scoped repositories a lifecycle
// operation works through
type txRepos struct {
	deliveries repository.DeliveryRepository
	items      repository.ItemRepository
	workers    repository.WorkerRepository
	schedules  repository.ScheduleRepository
}

// deliveryService implements DeliveryService
type deliveryService struct {
	db     *gorm.DB
	cache  cache.Client
	events EventPublisher
	search search.Client
	log    *logrus.Logger
}

// NewDeliveryService creates a new delivery service
func NewDeliveryService(
	db *gorm.DB,
	cacheClient cache.Client,
	events EventPublisher,
	searchClient search.Client,
	log *logrus.Logger,
) DeliveryService {
	return &deliveryService{
		db:     db,
		cache:  cacheClient,
		events: events,
		search: searchClient,
		log:    log,
	}
}

func reposFor(tx *gorm.DB) txRepos {
	return txRepos{
		deliveries: repository.NewDeliveryRepository(tx),
		items:      repository.NewItemRepository(tx),
		workers:    repository.NewWorkerRepository(tx),
		schedules:  repository.NewScheduleRepository(tx),
	}
}

// Create creates a new pending delivery, validating stock availability
// inside the same transaction that records the reservation
func (s *deliveryService) Create(ctx context.Context, req *CreateDeliveryRequest) (*CreateDeliveryResult, error) {
	var result *CreateDeliveryResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.createInTx(ctx, reposFor(tx), req)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	metrics.GetCollector().RecordDeliveryOperation(metrics.DeliveryOpCreated)
	s.events.PublishDelivery(ctx, DeliveryRequestedEvent, result.Delivery, nil)
	s.indexAsync(result.Delivery)
	return result, nil
}

func (s *deliveryService) createInTx(ctx context.Context, r txRepos, req *CreateDeliveryRequest) (*CreateDeliveryResult, error) {
	if err := validateQuantity(req.Quantity); err != nil {
		return nil, err
	}
	now := time.Now()
	if req.ScheduledDate != nil {
		if err := validateDateWindow(*req.ScheduledDate, now); err != nil {
			return nil, err
		}
	}

	worker, err := r.workers.GetByID(ctx, req.WorkerID)
	if err != nil {
		return nil, err
	}
	if !worker.Active {
		return nil, validationErrorf("worker %s is not active", worker.ID)
	}

	item, err := r.items.GetByID(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}

	if err := ensureAvailable(ctx, r.deliveries, r.items, item, req.Quantity, nil); err != nil {
		return nil, err
	}

	delivery := &model.Delivery{
		WorkerID:      req.WorkerID,
		ItemID:        req.ItemID,
		ScheduleID:    req.ScheduleID,
		Quantity:      req.Quantity,
		ScheduledDate: req.ScheduledDate,
		Status:        model.PendingStatus,
		StatusOrder:   model.PendingStatus.Order(),
	}
	if err := r.deliveries.Create(ctx, delivery); err != nil {
		return nil, err
	}
	delivery.Worker = worker
	delivery.Item = item

	return &CreateDeliveryResult{
		Delivery: delivery,
		Warnings: sizeWarnings(worker, item),
	}, nil
}

// sizeWarnings returns advisory size-mismatch notes; they never block
func sizeWarnings(worker *model.Worker, item *model.EquipmentItem) []string {
	if item.SizeKind == model.SizeNone || item.Size == "" {
		return nil
	}
	workerSize, ok := worker.SizeFor(item.SizeKind)
	if !ok || workerSize == "" || workerSize == item.Size {
		return nil
	}
	return []string{
		"item " + item.Name + " has " + item.SizeKind.String() + " size " + item.Size +
			" but worker " + worker.Name + " is recorded as " + workerSize,
	}
}

// Update applies a partial edit under the field-immutability and grace
// window rules
func (s *deliveryService) Update(ctx context.Context, req *UpdateDeliveryRequest) (*model.Delivery, error) {
	var delivery *model.Delivery
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		delivery, txErr = s.updateInTx(ctx, reposFor(tx), req)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	s.invalidateItem(ctx, delivery.ItemID)
	s.indexAsync(delivery)
	return delivery, nil
}

func (s *deliveryService) updateInTx(ctx context.Context, r txRepos, req *UpdateDeliveryRequest) (*model.Delivery, error) {
	delivery, err := r.deliveries.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if delivery.Status.Terminal() {
		return nil, validationErrorf("delivery %s is %s and can no longer be edited", delivery.ID, delivery.Status)
	}

	now := time.Now()
	delivered := delivery.ActualDeliveryDate != nil

	// Recipient, item and originating schedule freeze once the hand-off
	// date is set
	if delivered {
		if req.WorkerID != nil && *req.WorkerID != delivery.WorkerID {
			return nil, validationErrorf("recipient cannot be changed after delivery")
		}
		if req.ItemID != nil && *req.ItemID != delivery.ItemID {
			return nil, validationErrorf("item cannot be changed after delivery")
		}
		if req.ScheduleID != nil && (delivery.ScheduleID == nil || *req.ScheduleID != *delivery.ScheduleID) {
			return nil, validationErrorf("originating schedule cannot be changed after delivery")
		}
	} else {
		if req.WorkerID != nil {
			worker, err := r.workers.GetByID(ctx, *req.WorkerID)
			if err != nil {
				return nil, err
			}
			if !worker.Active {
				return nil, validationErrorf("worker %s is not active", worker.ID)
			}
			delivery.WorkerID = *req.WorkerID
		}
		if req.ItemID != nil && *req.ItemID != delivery.ItemID {
			item, err := r.items.GetByID(ctx, *req.ItemID)
			if err != nil {
				return nil, err
			}
			// The reservation moves to the new item; its stock is checked
			// without self-exclusion since the prior hold sits on the old one
			if delivery.Reserving() {
				quantity := delivery.Quantity
				if req.Quantity != nil {
					quantity = *req.Quantity
				}
				if err := ensureAvailable(ctx, r.deliveries, r.items, item, quantity, nil); err != nil {
					return nil, err
				}
			}
			delivery.ItemID = *req.ItemID
		}
		if req.ScheduleID != nil {
			delivery.ScheduleID = req.ScheduleID
		}
	}

	if req.Quantity != nil && *req.Quantity != delivery.Quantity {
		if err := s.applyQuantityChange(ctx, r, delivery, *req.Quantity); err != nil {
			return nil, err
		}
	}

	if req.ScheduledDate != nil {
		if err := validateDateWindow(*req.ScheduledDate, now); err != nil {
			return nil, err
		}
		delivery.ScheduledDate = req.ScheduledDate
	}

	if req.ActualDeliveryDate != nil {
		if !delivered {
			return nil, validationErrorf("actual delivery date is set by the delivered transition")
		}
		if delivery.DeliveredMarkedAt != nil && now.Sub(*delivery.DeliveredMarkedAt) > deliveryDateGrace {
			return nil, validationErrorf("actual delivery date can only be edited within %d days of delivery", int(deliveryDateGrace.Hours()/24))
		}
		if err := validateActualDate(*req.ActualDeliveryDate, now); err != nil {
			return nil, err
		}
		delivery.ActualDeliveryDate = req.ActualDeliveryDate
	}

	if err := r.deliveries.Save(ctx, delivery); err != nil {
		return nil, err
	}
	return delivery, nil
}

// applyQuantityChange revalidates stock for reserving deliveries and
// applies the delta with an adjustment entry for delivered ones
func (s *deliveryService) applyQuantityChange(ctx context.Context, r txRepos, delivery *model.Delivery, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}

	switch {
	case delivery.Reserving():
		item, err := r.items.GetByID(ctx, delivery.ItemID)
		if err != nil {
			return err
		}
		// The delivery's own reservation is excluded before validating
		// its new quantity
		id := delivery.ID
		if err := ensureAvailable(ctx, r.deliveries, r.items, item, quantity, &id); err != nil {
			return err
		}
	case delivery.Status == model.DeliveredStatus:
		delta := quantity - delivery.Quantity
		if err := r.items.AdjustOnHand(ctx, delivery.ItemID, -delta); err != nil {
			return err
		}
		id := delivery.ID
		if err := r.items.RecordMovement(ctx, &model.StockMovement{
			ItemID:     delivery.ItemID,
			DeliveryID: &id,
			Type:       model.MovementAdjust,
			Quantity:   delta,
			Note:       "delivered quantity corrected",
		}); err != nil {
			return err
		}
	default:
		return validationErrorf("quantity cannot be changed while delivery is %s", delivery.Status)
	}

	delivery.Quantity = quantity
	return nil
}

// Approve transitions a pending delivery to approved after validating the
// reviewer
func (s *deliveryService) Approve(ctx context.Context, id, reviewerID uuid.UUID) (*model.Delivery, error) {
	var delivery *model.Delivery
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		delivery, txErr = s.reviewInTx(ctx, reposFor(tx), id, reviewerID, model.ApprovedStatus, "")
		return txErr
	})
	if err != nil {
		return nil, err
	}

	metrics.GetCollector().RecordDeliveryOperation(metrics.DeliveryOpApproved)
	s.events.PublishDelivery(ctx, DeliveryApprovedEvent, delivery, &reviewerID)
	s.indexAsync(delivery)
	return delivery, nil
}

// Reprove transitions a delivery to the terminal reviewer-rejected status
func (s *deliveryService) Reprove(ctx context.Context, id, reviewerID uuid.UUID, note string) (*model.Delivery, error) {
	var delivery *model.Delivery
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		delivery, txErr = s.reviewInTx(ctx, reposFor(tx), id, reviewerID, model.ReprovedStatus, note)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	metrics.GetCollector().RecordDeliveryOperation(metrics.DeliveryOpReproved)
	s.events.PublishDelivery(ctx, DeliveryReprovedEvent, delivery, &reviewerID)
	s.indexAsync(delivery)
	return delivery, nil
}

func (s *deliveryService) reviewInTx(ctx context.Context, r txRepos, id, reviewerID uuid.UUID, to model.DeliveryStatus, note string) (*model.Delivery, error) {
	delivery, err := r.deliveries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	reviewer, err := r.workers.GetByID(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	if !reviewer.Active {
		return nil, validationErrorf("reviewer %s is not active", reviewer.ID)
	}

	if err := delivery.Transition(to); err != nil {
		return nil, err
	}
	delivery.ReviewerID = &reviewerID
	if note != "" {
		delivery.ReviewNote = &note
	}

	if err := r.deliveries.Save(ctx, delivery); err != nil {
		return nil, err
	}
	return delivery, nil
}

// Cancel transitions a not-yet-delivered delivery to cancelled
func (s *deliveryService) Cancel(ctx context.Context, id uuid.UUID) (*model.Delivery, error) {
	var delivery *model.Delivery
	err := s.db.Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		var txErr error
		delivery, txErr = r.deliveries.GetByID(ctx, id)
		if txErr != nil {
			return txErr
		}
		if txErr = delivery.Transition(model.CancelledStatus); txErr != nil {
			return txErr
		}
		return r.deliveries.Save(ctx, delivery)
	})
	if err != nil {
		return nil, err
	}

	metrics.GetCollector().RecordDeliveryOperation(metrics.DeliveryOpCancelled)
	s.indexAsync(delivery)
	return delivery, nil
}

// MarkDelivered records the physical hand-off: the transition performs the
// real on-hand debit and triggers schedule auto-renewal
func (s *deliveryService) MarkDelivered(ctx context.Context, id uuid.UUID, actualDate *time.Time, actor *uuid.UUID) (*model.Delivery, error) {
	var delivery *model.Delivery
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		delivery, txErr = s.markDeliveredInTx(ctx, reposFor(tx), id, actualDate)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	metrics.GetCollector().RecordDeliveryOperation(metrics.DeliveryOpDelivered)
	s.events.PublishDelivery(ctx, DeliveryDeliveredEvent, delivery, actor)
	s.invalidateItem(ctx, delivery.ItemID)
	s.indexAsync(delivery)
	return delivery, nil
}

func (s *deliveryService) markDeliveredInTx(ctx context.Context, r txRepos, id uuid.UUID, actualDate *time.Time) (*model.Delivery, error) {
	delivery, err := r.deliveries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	when := now
	if actualDate != nil {
		when = *actualDate
	}
	if err := validateActualDate(when, now); err != nil {
		return nil, err
	}

	if err := delivery.Transition(model.DeliveredStatus); err != nil {
		return nil, err
	}

	// This transition performs the real debit, so the check is against
	// current on-hand stock, not just reservations
	item, err := r.items.GetByID(ctx, delivery.ItemID)
	if err != nil {
		return nil, err
	}
	if delivery.Quantity > item.OnHand {
		metrics.GetCollector().IncrementCounter(metrics.CounterStockConflicts)
		return nil, &StockConflictError{
			ItemID:    item.ID,
			OnHand:    item.OnHand,
			Requested: delivery.Quantity,
			Available: item.OnHand,
		}
	}

	if err := r.items.AdjustOnHand(ctx, delivery.ItemID, -delivery.Quantity); err != nil {
		return nil, err
	}
	deliveryID := delivery.ID
	if err := r.items.RecordMovement(ctx, &model.StockMovement{
		ItemID:     delivery.ItemID,
		DeliveryID: &deliveryID,
		Type:       model.MovementOut,
		Quantity:   delivery.Quantity,
		Note:       "delivered to worker",
	}); err != nil {
		return nil, err
	}

	delivery.ActualDeliveryDate = &when
	delivery.DeliveredMarkedAt = &now

	if err := r.deliveries.Save(ctx, delivery); err != nil {
		return nil, err
	}

	// Auto-renewal must never block a hand-off that already physically
	// happened; failures degrade to a logged accounting note
	if renewErr := s.renewFromSchedule(ctx, r, delivery, when); renewErr != nil {
		metrics.GetCollector().IncrementCounter(metrics.CounterRenewalsFailed)
		s.log.WithError(renewErr).WithField("delivery_id", delivery.ID).Warn("Auto-renewal failed")
		note := &model.StockMovement{
			ItemID:     delivery.ItemID,
			DeliveryID: &deliveryID,
			Type:       model.MovementNote,
			Note:       "auto-renewal failed: " + renewErr.Error(),
		}
		if noteErr := r.items.RecordMovement(ctx, note); noteErr != nil {
			s.log.WithError(noteErr).Warn("Failed to record renewal failure note")
		}
	}

	return delivery, nil
}

// RevertDelivered undoes a mistaken delivered mark, crediting stock back
func (s *deliveryService) RevertDelivered(ctx context.Context, id uuid.UUID) (*model.Delivery, error) {
	var delivery *model.Delivery
	err := s.db.Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		var txErr error
		delivery, txErr = r.deliveries.GetByID(ctx, id)
		if txErr != nil {
			return txErr
		}
		if txErr = delivery.Transition(model.ApprovedStatus); txErr != nil {
			return txErr
		}

		if txErr = r.items.AdjustOnHand(ctx, delivery.ItemID, delivery.Quantity); txErr != nil {
			return txErr
		}
		deliveryID := delivery.ID
		if txErr = r.items.RecordMovement(ctx, &model.StockMovement{
			ItemID:     delivery.ItemID,
			DeliveryID: &deliveryID,
			Type:       model.MovementIn,
			Quantity:   delivery.Quantity,
			Note:       "delivered mark reverted",
		}); txErr != nil {
			return txErr
		}

		delivery.ActualDeliveryDate = nil
		delivery.DeliveredMarkedAt = nil
		return r.deliveries.Save(ctx, delivery)
	})
	if err != nil {
		return nil, err
	}

	metrics.GetCollector().RecordDeliveryOperation(metrics.DeliveryOpReverted)
	s.invalidateItem(ctx, delivery.ItemID)
	s.indexAsync(delivery)
	return delivery, nil
}

// BatchApprove approves each ID independently
func (s *deliveryService) BatchApprove(ctx context.Context, ids []uuid.UUID, reviewerID uuid.UUID) *BatchResult {
	return s.batch(ids, func(id uuid.UUID) error {
		_, err := s.Approve(ctx, id, reviewerID)
		return err
	})
}

// BatchReprove reproves each ID independently
func (s *deliveryService) BatchReprove(ctx context.Context, ids []uuid.UUID, reviewerID uuid.UUID, note string) *BatchResult {
	return s.batch(ids, func(id uuid.UUID) error {
		_, err := s.Reprove(ctx, id, reviewerID, note)
		return err
	})
}

// BatchMarkDelivered marks each ID delivered independently and emits one
// batch event for the successes
func (s *deliveryService) BatchMarkDelivered(ctx context.Context, ids []uuid.UUID, actor *uuid.UUID) *BatchResult {
	result := s.batch(ids, func(id uuid.UUID) error {
		_, err := s.MarkDelivered(ctx, id, nil, actor)
		return err
	})
	s.events.PublishBatchDelivered(ctx, result.Succeeded, actor)
	return result
}

// batch runs an operation per ID in its own transaction so one failure
// does not abort unrelated successes
func (s *deliveryService) batch(ids []uuid.UUID, fn func(uuid.UUID) error) *BatchResult {
	result := &BatchResult{}
	for _, id := range ids {
		if err := fn(id); err != nil {
			result.Failed = append(result.Failed, BatchError{ID: id, Error: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result
}

// GetByID gets a delivery by ID
func (s *deliveryService) GetByID(ctx context.Context, id uuid.UUID) (*model.Delivery, error) {
	return repository.NewDeliveryRepository(s.db).GetByID(ctx, id)
}

// List finds deliveries by filter with pagination
func (s *deliveryService) List(ctx context.Context, filter repository.DeliveryFilter, page repository.Page) ([]*model.Delivery, int64, error) {
	return repository.NewDeliveryRepository(s.db).List(ctx, filter, page)
}

// FindPending finds all pending deliveries
func (s *deliveryService) FindPending(ctx context.Context) ([]*model.Delivery, error) {
	return repository.NewDeliveryRepository(s.db).FindPending(ctx)
}

// FindOverdue finds deliveries whose scheduled date passed undelivered
func (s *deliveryService) FindOverdue(ctx context.Context) ([]*model.Delivery, error) {
	return repository.NewDeliveryRepository(s.db).FindOverdue(ctx, time.Now())
}

// FindUpcoming finds deliveries scheduled within the next N days
func (s *deliveryService) FindUpcoming(ctx context.Context, days int) ([]*model.Delivery, error) {
	return repository.NewDeliveryRepository(s.db).FindUpcoming(ctx, time.Now(), days)
}

// StatsByStatus aggregates delivery counts per status
func (s *deliveryService) StatsByStatus(ctx context.Context) (map[model.DeliveryStatus]int64, error) {
	return repository.NewDeliveryRepository(s.db).CountByStatus(ctx)
}

// ItemAvailability reports the stock picture of one item
func (s *deliveryService) ItemAvailability(ctx context.Context, itemID uuid.UUID) (*Availability, error) {
	items := repository.NewItemRepository(s.db)
	item, err := items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return computeAvailability(ctx, repository.NewDeliveryRepository(s.db), items, item, nil)
}

// renewFromSchedule creates the next scheduled instance after a delivered
// transition. Runs inside the triggering transaction; the caller swallows
// its errors.
func (s *deliveryService) renewFromSchedule(ctx context.Context, r txRepos, delivery *model.Delivery, deliveredAt time.Time) error {
	if delivery.ScheduleID == nil {
		return nil
	}

	schedule, err := r.schedules.GetByID(ctx, *delivery.ScheduleID)
	if err != nil {
		return err
	}
	if !schedule.IsActive || schedule.Frequency == model.FrequencyOnce {
		return nil
	}
	if !schedule.Frequency.Known() {
		s.log.WithFields(logrus.Fields{
			"schedule_id": schedule.ID,
			"frequency":   schedule.Frequency,
		}).Error("Unknown schedule frequency, defaulting to monthly")
	}

	next := model.NextOccurrence(schedule.Frequency, schedule.Count, deliveredAt)
	if next == nil {
		return nil
	}

	item, err := r.items.GetByID(ctx, delivery.ItemID)
	if err != nil {
		return err
	}
	if err := ensureAvailable(ctx, r.deliveries, r.items, item, delivery.Quantity, nil); err != nil {
		return err
	}

	renewal := &model.Delivery{
		WorkerID:      delivery.WorkerID,
		ItemID:        delivery.ItemID,
		ScheduleID:    delivery.ScheduleID,
		Quantity:      delivery.Quantity,
		ScheduledDate: next,
		Status:        model.PendingStatus,
		StatusOrder:   model.PendingStatus.Order(),
	}
	if err := r.deliveries.Create(ctx, renewal); err != nil {
		return err
	}

	now := time.Now()
	schedule.LastRun = &now
	schedule.NextRun = next
	if err := r.schedules.Save(ctx, schedule); err != nil {
		return err
	}

	metrics.GetCollector().IncrementCounter(metrics.CounterRenewalsCreated)
	return nil
}

// GetWorker reads a worker profile through the cache
func (s *deliveryService) GetWorker(ctx context.Context, id uuid.UUID) (*model.Worker, error) {
	if s.cache != nil {
		worker, err := s.cache.GetWorker(ctx, id)
		if err == nil {
			return worker, nil
		}
		if err != cache.Nil {
			s.log.WithError(err).Warn("Worker cache read failed")
		}
	}

	worker, err := repository.NewWorkerRepository(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetWorker(ctx, worker); err != nil {
			s.log.WithError(err).Warn("Worker cache write failed")
		}
	}
	return worker, nil
}

// GetItem reads an equipment item through the cache
func (s *deliveryService) GetItem(ctx context.Context, id uuid.UUID) (*model.EquipmentItem, error) {
	if s.cache != nil {
		item, err := s.cache.GetItem(ctx, id)
		if err == nil {
			return item, nil
		}
		if err != cache.Nil {
			s.log.WithError(err).Warn("Item cache read failed")
		}
	}

	item, err := repository.NewItemRepository(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetItem(ctx, item); err != nil {
			s.log.WithError(err).Warn("Item cache write failed")
		}
	}
	return item, nil
}

// indexAsync pushes the delivery document to the search index without
// blocking the caller
func (s *deliveryService) indexAsync(delivery *model.Delivery) {
	if s.search == nil {
		return
	}
	go func() {
		idxCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.search.IndexDelivery(idxCtx, delivery); err != nil {
			s.log.WithError(err).WithField("delivery_id", delivery.ID).Warn("Failed to index delivery")
		}
	}()
}

// invalidateItem drops the cached item profile after a stock change
func (s *deliveryService) invalidateItem(ctx context.Context, itemID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.ItemKey(itemID)); err != nil {
		s.log.WithError(err).Warn("Failed to invalidate item cache")
	}
}

func validateQuantity(quantity int) error {
	if quantity <= 0 {
		return validationErrorf("quantity must be positive")
	}
	if quantity > MaxDeliveryQuantity {
		return validationErrorf("quantity exceeds the per-delivery cap of %d", MaxDeliveryQuantity)
	}
	return nil
}

func validateDateWindow(t, now time.Time) error {
	if t.Before(now.Add(-dateSanityWindow)) || t.After(now.Add(dateSanityWindow)) {
		return validationErrorf("date %s is outside the accepted one-year window", t.Format("2006-01-02"))
	}
	return nil
}

func validateActualDate(t, now time.Time) error {
	if t.After(now) {
		return validationErrorf("actual delivery date cannot be in the future")
	}
	return validateDateWindow(t, now)
}
