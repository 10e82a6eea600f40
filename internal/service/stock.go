package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"example.com/safegear/services/ppe/internal/metrics"
	"example.com/safegear/services/ppe/internal/model"
	"example.com/safegear/services/ppe/internal/repository"
)

// StockConflictError reports a rejected commitment against insufficient
// stock. Reserved counts pending/approved deliveries plus unreturned loans.
type StockConflictError struct {
	ItemID    uuid.UUID
	OnHand    int
	Reserved  int
	Requested int
	Available int
}

// Error implements the error interface
func (e *StockConflictError) Error() string {
	return fmt.Sprintf(
		"insufficient stock for item %s: requested %d, available %d (on hand %d, reserved %d)",
		e.ItemID, e.Requested, e.Available, e.OnHand, e.Reserved,
	)
}

// Availability is the stock picture of one item at a committed point
type Availability struct {
	ItemID    uuid.UUID `json:"item_id"`
	OnHand    int       `json:"on_hand"`
	Reserved  int       `json:"reserved"`
	Loaned    int       `json:"loaned"`
	Available int       `json:"available"`
}

// computeAvailability derives the quantity open for new commitments. It
// must run inside the same transaction as the write it gates; the exclude
// ID removes a delivery's own reservation when revalidating its quantity.
func computeAvailability(ctx context.Context, deliveries repository.DeliveryRepository, items repository.ItemRepository, item *model.EquipmentItem, exclude *uuid.UUID) (*Availability, error) {
	reserved, err := deliveries.ReservedQuantity(ctx, item.ID, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to sum reservations: %w", err)
	}

	loaned, err := items.OutstandingLoanQuantity(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum outstanding loans: %w", err)
	}

	return &Availability{
		ItemID:    item.ID,
		OnHand:    item.OnHand,
		Reserved:  reserved,
		Loaned:    loaned,
		Available: item.OnHand - reserved - loaned,
	}, nil
}

// ensureAvailable rejects the requested quantity when it exceeds what is
// open for commitment. The operation is never partially applied.
func ensureAvailable(ctx context.Context, deliveries repository.DeliveryRepository, items repository.ItemRepository, item *model.EquipmentItem, requested int, exclude *uuid.UUID) error {
	avail, err := computeAvailability(ctx, deliveries, items, item, exclude)
	if err != nil {
		return err
	}

	if requested > avail.Available {
		metrics.GetCollector().IncrementCounter(metrics.CounterStockConflicts)
		return &StockConflictError{
			ItemID:    item.ID,
			OnHand:    avail.OnHand,
			Reserved:  avail.Reserved + avail.Loaned,
			Requested: requested,
			Available: avail.Available,
		}
	}
	return nil
}
