package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"example.com/safegear/services/ppe/internal/messagebus"
	"example.com/safegear/services/ppe/internal/model"
)

// EventType defines the type of lifecycle event
type EventType string

const (
	// DeliveryRequestedEvent fires when a delivery is created
	DeliveryRequestedEvent EventType = "delivery-requested"
	// DeliveryApprovedEvent fires when a reviewer approves a delivery
	DeliveryApprovedEvent EventType = "delivery-approved"
	// DeliveryReprovedEvent fires when a reviewer rejects a delivery
	DeliveryReprovedEvent EventType = "delivery-reproved"
	// DeliveryDeliveredEvent fires when a delivery is marked handed out
	DeliveryDeliveredEvent EventType = "delivery-delivered"
	// DeliveryBatchDeliveredEvent fires once per successful batch hand-out
	DeliveryBatchDeliveredEvent EventType = "delivery-batch-delivered"
)

// Event is the message emitted for external notification consumers
type Event struct {
	Type        EventType   `json:"type"`
	DeliveryID  *uuid.UUID  `json:"delivery_id,omitempty"`
	DeliveryIDs []uuid.UUID `json:"delivery_ids,omitempty"`
	WorkerID    *uuid.UUID  `json:"worker_id,omitempty"`
	ItemID      *uuid.UUID  `json:"item_id,omitempty"`
	ActorID     *uuid.UUID  `json:"actor_id,omitempty"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// EventPublisher fans lifecycle transitions out to external consumers.
// Publishing happens after the transaction commits and never fails the
// triggering operation.
type EventPublisher interface {
	PublishDelivery(ctx context.Context, eventType EventType, delivery *model.Delivery, actor *uuid.UUID)
	PublishBatchDelivered(ctx context.Context, deliveryIDs []uuid.UUID, actor *uuid.UUID)
}

// busPublisher implements EventPublisher over the message bus
type busPublisher struct {
	bus   messagebus.Client
	queue string
	log   *logrus.Logger
}

// NewEventPublisher creates a new message bus backed event publisher
func NewEventPublisher(bus messagebus.Client, queue string, log *logrus.Logger) EventPublisher {
	return &busPublisher{bus: bus, queue: queue, log: log}
}

// PublishDelivery emits a single-delivery lifecycle event
func (p *busPublisher) PublishDelivery(ctx context.Context, eventType EventType, delivery *model.Delivery, actor *uuid.UUID) {
	deliveryID := delivery.ID
	workerID := delivery.WorkerID
	itemID := delivery.ItemID
	p.publish(Event{
		Type:       eventType,
		DeliveryID: &deliveryID,
		WorkerID:   &workerID,
		ItemID:     &itemID,
		ActorID:    actor,
		OccurredAt: time.Now(),
	})
}

// PublishBatchDelivered emits one event covering a whole batch hand-out
func (p *busPublisher) PublishBatchDelivered(ctx context.Context, deliveryIDs []uuid.UUID, actor *uuid.UUID) {
	if len(deliveryIDs) == 0 {
		return
	}
	p.publish(Event{
		Type:        DeliveryBatchDeliveredEvent,
		DeliveryIDs: deliveryIDs,
		ActorID:     actor,
		OccurredAt:  time.Now(),
	})
}

// publish sends asynchronously so emission cannot block or fail the
// emitting transaction
func (p *busPublisher) publish(event Event) {
	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := messagebus.RetryWithBackoff(pubCtx, func() error {
			return p.bus.PublishMessage(pubCtx, event, p.queue)
		}, 3)
		if err != nil {
			p.log.WithError(err).WithField("event_type", event.Type).Warn("Failed to publish lifecycle event")
		}
	}()
}

// nopPublisher discards events; used when no message bus is configured
type nopPublisher struct{}

// NewNopPublisher creates a publisher that drops all events
func NewNopPublisher() EventPublisher { return nopPublisher{} }

func (nopPublisher) PublishDelivery(ctx context.Context, eventType EventType, delivery *model.Delivery, actor *uuid.UUID) {
}
func (nopPublisher) PublishBatchDelivered(ctx context.Context, deliveryIDs []uuid.UUID, actor *uuid.UUID) {
}
