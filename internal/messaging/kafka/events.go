package kafka

import (
	"time"

	"github.com/galpao/wms/internal/domain"
)

// EventType classifies messages published to the order events topic.
type EventType string

const (
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeOrderDispatched    EventType = "order.dispatched"
)

// Kafka topics.
const (
	TopicOrderEvents     = "wms.order.events"
	TopicDeadLetterQueue = "wms.dlq"
)

// Headers attached to dead-lettered messages.
const (
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEventPayload is the wire shape of one order event.
type OrderEventPayload struct {
	EventType  EventType              `json:"event_type"`
	OrderID    string                 `json:"order_id"`
	CustomerID string                 `json:"customer_id,omitempty"`
	FromStatus domain.OrderStatus     `json:"from_status,omitempty"`
	ToStatus   domain.OrderStatus     `json:"to_status"`
	ActorID    string                 `json:"actor_id,omitempty"`
	ActorRole  domain.ActorRole       `json:"actor_role,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// NewTransitionPayload builds the payload for one accepted transition.
func NewTransitionPayload(transition domain.OrderTransition) OrderEventPayload {
	eventType := EventTypeOrderStatusChanged
	if transition.ToStatus == domain.OrderStatusDespachado {
		eventType = EventTypeOrderDispatched
	}
	return OrderEventPayload{
		EventType:  eventType,
		OrderID:    transition.OrderID,
		FromStatus: transition.FromStatus,
		ToStatus:   transition.ToStatus,
		ActorID:    transition.ActorID,
		ActorRole:  transition.ActorRole,
		Reason:     transition.Reason,
		Metadata:   transition.Metadata,
		Timestamp:  transition.OccurredAt,
	}
}
