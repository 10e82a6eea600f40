package model

import (
	"time"

	"github.com/google/uuid"
)

// Frequency defines how often a schedule fires
type Frequency string

const (
	FrequencyOnce          Frequency = "ONCE"
	FrequencyDaily         Frequency = "DAILY"
	FrequencyWeekly        Frequency = "WEEKLY"
	FrequencyBiweekly      Frequency = "BIWEEKLY"
	FrequencyMonthly       Frequency = "MONTHLY"
	FrequencyBimonthly     Frequency = "BIMONTHLY"
	FrequencyQuarterly     Frequency = "QUARTERLY"
	FrequencyTriannual     Frequency = "TRIANNUAL"
	FrequencyQuadrimestral Frequency = "QUADRIMESTRAL"
	FrequencySemiAnnual    Frequency = "SEMI_ANNUAL"
	FrequencyAnnual        Frequency = "ANNUAL"
	FrequencyCustom        Frequency = "CUSTOM"
)

// Known reports whether the frequency is a recognized value. Unknown
// frequencies fall back to one month in NextOccurrence; callers log the
// anomaly.
func (f Frequency) Known() bool {
	switch f {
	case FrequencyOnce, FrequencyDaily, FrequencyWeekly, FrequencyBiweekly,
		FrequencyMonthly, FrequencyBimonthly, FrequencyQuarterly,
		FrequencyTriannual, FrequencyQuadrimestral, FrequencySemiAnnual,
		FrequencyAnnual, FrequencyCustom:
		return true
	}
	return false
}

// NextOccurrence computes the next firing date of a schedule anchored at
// the given date. It returns nil for one-shot schedules. Month and year
// arithmetic is calendar-aware: an anchor on the 31st rolls to the last
// valid day of a shorter target month.
func NextOccurrence(f Frequency, count int, anchor time.Time) *time.Time {
	if count <= 0 {
		count = 1
	}

	var next time.Time
	switch f {
	case FrequencyOnce:
		return nil
	case FrequencyDaily:
		next = anchor.AddDate(0, 0, count)
	case FrequencyWeekly:
		next = anchor.AddDate(0, 0, 7*count)
	case FrequencyBiweekly:
		next = anchor.AddDate(0, 0, 14*count)
	case FrequencyMonthly:
		next = addMonths(anchor, count)
	case FrequencyBimonthly:
		next = addMonths(anchor, 2*count)
	case FrequencyQuarterly:
		next = addMonths(anchor, 3*count)
	case FrequencyTriannual, FrequencyQuadrimestral:
		next = addMonths(anchor, 4*count)
	case FrequencySemiAnnual:
		next = addMonths(anchor, 6*count)
	case FrequencyAnnual:
		next = addMonths(anchor, 12*count)
	case FrequencyCustom:
		// count is the user-defined interval length in days
		next = anchor.AddDate(0, 0, count)
	default:
		next = addMonths(anchor, 1)
	}
	return &next
}

// addMonths adds calendar months, clamping the day to the last valid day
// of the target month instead of overflowing into the next one.
func addMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	day := t.Day()
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// AssignmentMode defines which workers a schedule applies to
type AssignmentMode string

const (
	// AssignAll applies to every worker not explicitly excluded
	AssignAll AssignmentMode = "ALL"
	// AssignAllExcept applies to every worker not in the excluded list
	AssignAllExcept AssignmentMode = "ALL_EXCEPT"
	// AssignSpecific applies only to workers in the included list
	AssignSpecific AssignmentMode = "SPECIFIC"
)

// Schedule represents a recurring issuance definition
type Schedule struct {
	Base
	Name              string         `json:"name"`
	Frequency         Frequency      `json:"frequency"`
	Count             int            `json:"count" gorm:"default:1"`
	AssignmentMode    AssignmentMode `json:"assignment_mode"`
	IncludedWorkerIDs UUIDList       `json:"included_worker_ids" gorm:"type:jsonb"`
	ExcludedWorkerIDs UUIDList       `json:"excluded_worker_ids" gorm:"type:jsonb"`
	IsActive          bool           `json:"is_active" gorm:"default:true"`
	LastRun           *time.Time     `json:"last_run"`
	NextRun           *time.Time     `json:"next_run"`
	Items             []ScheduleItem `json:"items" gorm:"foreignKey:ScheduleID"`
}

// ScheduleItem is one equipment line of a schedule
type ScheduleItem struct {
	Base
	ScheduleID uuid.UUID      `json:"schedule_id" gorm:"type:uuid;index"`
	ItemID     uuid.UUID      `json:"item_id" gorm:"type:uuid"`
	Item       *EquipmentItem `json:"-" gorm:"foreignKey:ItemID"`
	Quantity   int            `json:"quantity"`
}

// AppliesTo resolves whether the schedule covers the given worker
func (s *Schedule) AppliesTo(workerID uuid.UUID) bool {
	switch s.AssignmentMode {
	case AssignAll, AssignAllExcept:
		return !s.ExcludedWorkerIDs.Contains(workerID)
	case AssignSpecific:
		return s.IncludedWorkerIDs.Contains(workerID)
	}
	return false
}
