package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryStatus defines the status of a delivery
type DeliveryStatus string

const (
	// PendingStatus is the initial status of a requested delivery
	PendingStatus DeliveryStatus = "PENDING"
	// ApprovedStatus means a reviewer accepted the request
	ApprovedStatus DeliveryStatus = "APPROVED"
	// DeliveredStatus means the equipment physically changed hands
	DeliveredStatus DeliveryStatus = "DELIVERED"
	// WaitingSignatureStatus means a signature request is out with the signer service
	WaitingSignatureStatus DeliveryStatus = "WAITING_SIGNATURE"
	// SignatureRejectedStatus means the signer rejected the document; retryable
	SignatureRejectedStatus DeliveryStatus = "SIGNATURE_REJECTED"
	// CompletedStatus is the terminal signed-off status
	CompletedStatus DeliveryStatus = "COMPLETED"
	// ReprovedStatus is the terminal reviewer-rejected status
	ReprovedStatus DeliveryStatus = "REPROVED"
	// CancelledStatus is the terminal cancelled status
	CancelledStatus DeliveryStatus = "CANCELLED"
)

// statusOrder is the canonical rank of each status, mirrored into the
// delivery's status_order column for sorting.
var statusOrder = map[DeliveryStatus]int{
	PendingStatus:           1,
	ApprovedStatus:          2,
	DeliveredStatus:         3,
	WaitingSignatureStatus:  4,
	SignatureRejectedStatus: 5,
	CompletedStatus:         6,
	ReprovedStatus:          7,
	CancelledStatus:         8,
}

// transitions is the single source of truth for legal status changes.
// Anything not listed here is rejected.
var transitions = map[DeliveryStatus][]DeliveryStatus{
	PendingStatus:           {ApprovedStatus, ReprovedStatus, CancelledStatus},
	ApprovedStatus:          {DeliveredStatus, ReprovedStatus, CancelledStatus},
	DeliveredStatus:         {WaitingSignatureStatus, ApprovedStatus},
	WaitingSignatureStatus:  {CompletedStatus, SignatureRejectedStatus},
	SignatureRejectedStatus: {WaitingSignatureStatus},
	CompletedStatus:         {},
	ReprovedStatus:          {},
	CancelledStatus:         {},
}

// Order returns the canonical rank of the status
func (s DeliveryStatus) Order() int {
	return statusOrder[s]
}

// Valid reports whether the status is a known status
func (s DeliveryStatus) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// Terminal reports whether the status admits no further transitions
func (s DeliveryStatus) Terminal() bool {
	return len(transitions[s]) == 0 && s.Valid()
}

// CanTransitionTo reports whether the transition s -> to is legal
func (s DeliveryStatus) CanTransitionTo(to DeliveryStatus) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the legal target statuses from s
func (s DeliveryStatus) AllowedTransitions() []DeliveryStatus {
	return transitions[s]
}

// InvalidTransitionError is returned when a transition outside the table
// is attempted. The record is left untouched.
type InvalidTransitionError struct {
	From    DeliveryStatus
	To      DeliveryStatus
	Allowed []DeliveryStatus
}

// Error implements the error interface
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s (allowed: %v)", e.From, e.To, e.Allowed)
}

// Delivery represents one issuance of equipment to one worker
type Delivery struct {
	Base
	WorkerID   uuid.UUID      `json:"worker_id" gorm:"type:uuid;index"`
	Worker     *Worker        `json:"worker,omitempty" gorm:"foreignKey:WorkerID"`
	ItemID     uuid.UUID      `json:"item_id" gorm:"type:uuid;index"`
	Item       *EquipmentItem `json:"item,omitempty" gorm:"foreignKey:ItemID"`
	ScheduleID *uuid.UUID     `json:"schedule_id" gorm:"type:uuid;index"`
	Schedule   *Schedule      `json:"-" gorm:"foreignKey:ScheduleID"`
	ReviewerID *uuid.UUID     `json:"reviewer_id" gorm:"type:uuid"`
	Reviewer   *Worker        `json:"-" gorm:"foreignKey:ReviewerID"`

	Quantity           int            `json:"quantity"`
	ScheduledDate      *time.Time     `json:"scheduled_date"`
	ActualDeliveryDate *time.Time     `json:"actual_delivery_date"`
	DeliveredMarkedAt  *time.Time     `json:"delivered_marked_at"`
	Status             DeliveryStatus `json:"status" gorm:"index"`
	StatusOrder        int            `json:"status_order" gorm:"index"`
	ReviewNote         *string        `json:"review_note"`

	SignatureEnvelopeID  *string    `json:"signature_envelope_id"`
	SignatureDocumentKey *string    `json:"signature_document_key" gorm:"index"`
	SignatureSignerID    *string    `json:"signature_signer_id"`
	SignedAt             *time.Time `json:"signed_at"`
	DraftDocumentFileID  *string    `json:"draft_document_file_id"`
	SignedDocumentFileID *string    `json:"signed_document_file_id"`
	RejectionReason      *string    `json:"rejection_reason"`
}

// BeforeSave keeps the status_order mirror in sync with status
func (d *Delivery) BeforeSave(tx *gorm.DB) error {
	d.StatusOrder = d.Status.Order()
	return nil
}

// Transition applies a legal status change in place, returning
// InvalidTransitionError otherwise. Side effects belong to the caller.
func (d *Delivery) Transition(to DeliveryStatus) error {
	if !d.Status.CanTransitionTo(to) {
		return &InvalidTransitionError{
			From:    d.Status,
			To:      to,
			Allowed: d.Status.AllowedTransitions(),
		}
	}
	d.Status = to
	d.StatusOrder = to.Order()
	return nil
}

// Reserving reports whether the delivery currently holds a stock
// reservation. Delivered and later statuses already debited on-hand stock
// at the transition, so they no longer reserve.
func (d *Delivery) Reserving() bool {
	return d.Status == PendingStatus || d.Status == ApprovedStatus
}
