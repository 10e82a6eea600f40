package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"example.com/safegear/services/ppe/internal/model"
	"example.com/safegear/services/ppe/internal/repository"
)

// CreateScheduleRequest defines the request to create a schedule
type CreateScheduleRequest struct {
	Name              string                `json:"name" binding:"required"`
	Frequency         model.Frequency       `json:"frequency" binding:"required"`
	Count             int                   `json:"count"`
	AssignmentMode    model.AssignmentMode  `json:"assignment_mode" binding:"required"`
	IncludedWorkerIDs []uuid.UUID           `json:"included_worker_ids"`
	ExcludedWorkerIDs []uuid.UUID           `json:"excluded_worker_ids"`
	FirstRun          *time.Time            `json:"first_run"`
	Items             []ScheduleItemRequest `json:"items" binding:"required"`
}

// ScheduleItemRequest is one equipment line of a schedule request
type ScheduleItemRequest struct {
	ItemID   uuid.UUID `json:"item_id" binding:"required"`
	Quantity int       `json:"quantity" binding:"required"`
}

// UpdateScheduleRequest defines a partial schedule update
type UpdateScheduleRequest struct {
	ID                uuid.UUID             `json:"id"`
	Name              *string               `json:"name"`
	Frequency         *model.Frequency      `json:"frequency"`
	Count             *int                  `json:"count"`
	AssignmentMode    *model.AssignmentMode `json:"assignment_mode"`
	IncludedWorkerIDs []uuid.UUID           `json:"included_worker_ids"`
	ExcludedWorkerIDs []uuid.UUID           `json:"excluded_worker_ids"`
	NextRun           *time.Time            `json:"next_run"`
}

// RunReport summarizes one firing pass over due schedules
type RunReport struct {
	SchedulesRun      int          `json:"schedules_run"`
	DeliveriesCreated int          `json:"deliveries_created"`
	Failures          []BatchError `json:"failures,omitempty"`
}

// ScheduleService defines the recurring issuance operations
type ScheduleService interface {
	Create(ctx context.Context, req *CreateScheduleRequest) (*model.Schedule, error)
	Update(ctx context.Context, req *UpdateScheduleRequest) (*model.Schedule, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*model.Schedule, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Schedule, error)
	List(ctx context.Context) ([]*model.Schedule, error)
	RunDue(ctx context.Context) (*RunReport, error)
}

// scheduleService implements ScheduleService
type scheduleService struct {
	db  *gorm.DB
	log *logrus.Logger
}

// NewScheduleService creates a new schedule service
func NewScheduleService(db *gorm.DB, log *logrus.Logger) ScheduleService {
	return &scheduleService{db: db, log: log}
}

// Create creates a new schedule with its line items
func (s *scheduleService) Create(ctx context.Context, req *CreateScheduleRequest) (*model.Schedule, error) {
	if !req.Frequency.Known() {
		return nil, validationErrorf("unknown frequency %q", req.Frequency)
	}
	if len(req.Items) == 0 {
		return nil, validationErrorf("schedule needs at least one item")
	}
	for _, item := range req.Items {
		if err := validateQuantity(item.Quantity); err != nil {
			return nil, err
		}
	}
	if req.AssignmentMode == model.AssignSpecific && len(req.IncludedWorkerIDs) == 0 {
		return nil, validationErrorf("specific assignment needs at least one included worker")
	}

	count := req.Count
	if count <= 0 {
		count = 1
	}
	firstRun := req.FirstRun
	if firstRun == nil {
		now := time.Now()
		firstRun = &now
	}

	schedule := &model.Schedule{
		Name:              req.Name,
		Frequency:         req.Frequency,
		Count:             count,
		AssignmentMode:    req.AssignmentMode,
		IncludedWorkerIDs: req.IncludedWorkerIDs,
		ExcludedWorkerIDs: req.ExcludedWorkerIDs,
		IsActive:          true,
		NextRun:           firstRun,
	}
	for _, item := range req.Items {
		schedule.Items = append(schedule.Items, model.ScheduleItem{
			ItemID:   item.ItemID,
			Quantity: item.Quantity,
		})
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		for _, item := range req.Items {
			if _, err := r.items.GetByID(ctx, item.ItemID); err != nil {
				return err
			}
		}
		return r.schedules.Create(ctx, schedule)
	})
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

// Update applies a partial edit to a schedule definition
func (s *scheduleService) Update(ctx context.Context, req *UpdateScheduleRequest) (*model.Schedule, error) {
	var schedule *model.Schedule
	err := s.db.Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		var txErr error
		schedule, txErr = r.schedules.GetByID(ctx, req.ID)
		if txErr != nil {
			return txErr
		}

		if req.Name != nil {
			schedule.Name = *req.Name
		}
		if req.Frequency != nil {
			if !req.Frequency.Known() {
				return validationErrorf("unknown frequency %q", *req.Frequency)
			}
			schedule.Frequency = *req.Frequency
		}
		if req.Count != nil {
			if *req.Count <= 0 {
				return validationErrorf("count must be positive")
			}
			schedule.Count = *req.Count
		}
		if req.AssignmentMode != nil {
			schedule.AssignmentMode = *req.AssignmentMode
		}
		if req.IncludedWorkerIDs != nil {
			schedule.IncludedWorkerIDs = req.IncludedWorkerIDs
		}
		if req.ExcludedWorkerIDs != nil {
			schedule.ExcludedWorkerIDs = req.ExcludedWorkerIDs
		}
		if req.NextRun != nil {
			schedule.NextRun = req.NextRun
		}
		if schedule.AssignmentMode == model.AssignSpecific && len(schedule.IncludedWorkerIDs) == 0 {
			return validationErrorf("specific assignment needs at least one included worker")
		}

		return r.schedules.Save(ctx, schedule)
	})
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

// Deactivate stops a schedule from firing or renewing. Deliveries already
// created from it are untouched.
func (s *scheduleService) Deactivate(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	var schedule *model.Schedule
	err := s.db.Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		var txErr error
		schedule, txErr = r.schedules.GetByID(ctx, id)
		if txErr != nil {
			return txErr
		}
		schedule.IsActive = false
		schedule.NextRun = nil
		return r.schedules.Save(ctx, schedule)
	})
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

// GetByID gets a schedule by ID
func (s *scheduleService) GetByID(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	return repository.NewScheduleRepository(s.db).GetByID(ctx, id)
}

// List finds all schedules
func (s *scheduleService) List(ctx context.Context) ([]*model.Schedule, error) {
	return repository.NewScheduleRepository(s.db).List(ctx)
}

// RunDue fires every active schedule whose next run has passed, expanding
// it into pending deliveries for the covered workers. Each schedule runs
// in its own transaction; a failing expansion line is skipped and reported
// rather than aborting the pass.
func (s *scheduleService) RunDue(ctx context.Context) (*RunReport, error) {
	now := time.Now()
	due, err := repository.NewScheduleRepository(s.db).FindDue(ctx, now)
	if err != nil {
		return nil, err
	}

	report := &RunReport{}
	for _, schedule := range due {
		created, runErr := s.runOne(ctx, schedule, now)
		report.DeliveriesCreated += created
		if runErr != nil {
			report.Failures = append(report.Failures, BatchError{ID: schedule.ID, Error: runErr.Error()})
			s.log.WithError(runErr).WithField("schedule_id", schedule.ID).Error("Schedule run failed")
			continue
		}
		report.SchedulesRun++
	}
	return report, nil
}

func (s *scheduleService) runOne(ctx context.Context, schedule *model.Schedule, now time.Time) (int, error) {
	created := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)

		workers, err := r.workers.FindActive(ctx)
		if err != nil {
			return err
		}

		if !schedule.Frequency.Known() {
			s.log.WithFields(logrus.Fields{
				"schedule_id": schedule.ID,
				"frequency":   schedule.Frequency,
			}).Error("Unknown schedule frequency, defaulting to monthly")
		}

		scheduledDate := now
		if schedule.NextRun != nil {
			scheduledDate = *schedule.NextRun
		}

		for _, worker := range workers {
			if !schedule.AppliesTo(worker.ID) {
				continue
			}
			for _, line := range schedule.Items {
				item, err := r.items.GetByID(ctx, line.ItemID)
				if err != nil {
					s.log.WithError(err).WithFields(logrus.Fields{
						"schedule_id": schedule.ID,
						"item_id":     line.ItemID,
					}).Warn("Skipping schedule line, item lookup failed")
					continue
				}
				if err := ensureAvailable(ctx, r.deliveries, r.items, item, line.Quantity, nil); err != nil {
					s.log.WithError(err).WithFields(logrus.Fields{
						"schedule_id": schedule.ID,
						"worker_id":   worker.ID,
						"item_id":     line.ItemID,
					}).Warn("Skipping schedule line, stock unavailable")
					continue
				}

				scheduleID := schedule.ID
				date := scheduledDate
				delivery := &model.Delivery{
					WorkerID:      worker.ID,
					ItemID:        line.ItemID,
					ScheduleID:    &scheduleID,
					Quantity:      line.Quantity,
					ScheduledDate: &date,
					Status:        model.PendingStatus,
					StatusOrder:   model.PendingStatus.Order(),
				}
				if err := r.deliveries.Create(ctx, delivery); err != nil {
					return err
				}
				created++
			}
		}

		schedule.LastRun = &now
		schedule.NextRun = model.NextOccurrence(schedule.Frequency, schedule.Count, scheduledDate)
		if schedule.NextRun == nil {
			// One-shot schedules retire after firing
			schedule.IsActive = false
		}
		return r.schedules.Save(ctx, schedule)
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}
