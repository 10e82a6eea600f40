package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model fields shared by all models
type Base struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an ID when one was not provided
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// SizeKind identifies which size field of a worker profile an equipment
// item is fitted against.
type SizeKind uint

const (
	// SizeNone means the item is not size-fitted
	SizeNone SizeKind = iota
	// SizeShirt fits against the worker's shirt size
	SizeShirt
	// SizePants fits against the worker's pants size
	SizePants
	// SizeBoot fits against the worker's boot size
	SizeBoot
	// SizeGlove fits against the worker's glove size
	SizeGlove
)

// String returns a string representation of SizeKind
func (k SizeKind) String() string {
	switch k {
	case SizeNone:
		return "none"
	case SizeShirt:
		return "shirt"
	case SizePants:
		return "pants"
	case SizeBoot:
		return "boot"
	case SizeGlove:
		return "glove"
	}
	return "unknown"
}

// Worker represents an employee that receives equipment
type Worker struct {
	Base
	Name      string `json:"name"`
	Email     string `json:"email"`
	Active    bool   `json:"active" gorm:"default:true"`
	ShirtSize string `json:"shirt_size"`
	PantsSize string `json:"pants_size"`
	BootSize  string `json:"boot_size"`
	GloveSize string `json:"glove_size"`
}

// SizeFor returns the worker's recorded size for the given kind. The second
// return is false when the kind is not size-fitted.
func (w *Worker) SizeFor(kind SizeKind) (string, bool) {
	switch kind {
	case SizeShirt:
		return w.ShirtSize, true
	case SizePants:
		return w.PantsSize, true
	case SizeBoot:
		return w.BootSize, true
	case SizeGlove:
		return w.GloveSize, true
	}
	return "", false
}

// EquipmentItem represents one equipment catalog entry with its stock
type EquipmentItem struct {
	Base
	Name     string   `json:"name"`
	CANumber string   `json:"ca_number" gorm:"column:ca_number"`
	OnHand   int      `json:"on_hand"`
	Size     string   `json:"size"`
	SizeKind SizeKind `json:"size_kind"`
	Unit     string   `json:"unit"`
}

// Loan represents equipment lent out temporarily. Unreturned loans reserve
// stock the same way pending deliveries do.
type Loan struct {
	Base
	WorkerID   uuid.UUID      `json:"worker_id" gorm:"type:uuid"`
	Worker     *Worker        `json:"-" gorm:"foreignKey:WorkerID"`
	ItemID     uuid.UUID      `json:"item_id" gorm:"type:uuid"`
	Item       *EquipmentItem `json:"-" gorm:"foreignKey:ItemID"`
	Quantity   int            `json:"quantity"`
	ReturnedAt *time.Time     `json:"returned_at"`
}

// MovementType defines the type of stock movement
type MovementType string

const (
	// MovementOut records the debit applied when a delivery is handed out
	MovementOut MovementType = "out"
	// MovementIn records the credit applied when a delivery is reverted
	MovementIn MovementType = "in"
	// MovementAdjust records a quantity correction on a delivered record
	MovementAdjust MovementType = "adjust"
	// MovementNote records a non-fatal accounting note, no quantity effect
	MovementNote MovementType = "note"
)

// StockMovement is the accounting trail for on-hand quantity changes
type StockMovement struct {
	Base
	ItemID     uuid.UUID    `json:"item_id" gorm:"type:uuid"`
	DeliveryID *uuid.UUID   `json:"delivery_id" gorm:"type:uuid"`
	Type       MovementType `json:"type"`
	Quantity   int          `json:"quantity"`
	Note       string       `json:"note"`
}

// UUIDList stores a set of worker IDs as a jsonb column
type UUIDList []uuid.UUID

// Value implements driver.Valuer
func (l UUIDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (l *UUIDList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return fmt.Errorf("unsupported type for UUIDList: %T", value)
}

// Contains reports whether the list contains the given ID
func (l UUIDList) Contains(id uuid.UUID) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}
