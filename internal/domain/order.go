package domain

import (
	"strings"
	"time"
)

// OrderStatus describes the warehouse lifecycle of an order, from creation
// to dispatch. Status names follow the warehouse floor vocabulary.
type OrderStatus string

const (
	// OrderStatusASeparar — order created, picking not yet started.
	OrderStatusASeparar OrderStatus = "A_SEPARAR"
	// OrderStatusEmSeparacao — picking in progress on the floor.
	OrderStatusEmSeparacao OrderStatus = "EM_SEPARACAO"
	// OrderStatusConferido — picking finished and double-checked.
	OrderStatusConferido OrderStatus = "CONFERIDO"
	// OrderStatusAguardandoCotacao — waiting for a freight quotation.
	OrderStatusAguardandoCotacao OrderStatus = "AGUARDANDO_COTACAO"
	// OrderStatusAguardandoColeta — quotation confirmed, waiting for carrier pickup.
	OrderStatusAguardandoColeta OrderStatus = "AGUARDANDO_COLETA"
	// OrderStatusDespachado — handed to the carrier. Terminal.
	OrderStatusDespachado OrderStatus = "DESPACHADO"
)

// Terminal reports whether no further transitions are defined out of the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDespachado
}

// ItemsLocked reports whether the order's items may no longer change.
// Once picking has started the physical separation works off a fixed list.
func (s OrderStatus) ItemsLocked() bool {
	return s == OrderStatusEmSeparacao || s == OrderStatusConferido
}

// OrderEventType identifies an intention to transition an order.
type OrderEventType string

const (
	EventIniciarSeparacao   OrderEventType = "INICIAR_SEPARACAO"
	EventFinalizarSeparacao OrderEventType = "FINALIZAR_SEPARACAO"
	EventSolicitarCotacao   OrderEventType = "SOLICITAR_COTACAO"
	EventConfirmarCotacao   OrderEventType = "CONFIRMAR_COTACAO"
	EventDespachar          OrderEventType = "DESPACHAR"
)

// ActorRole classifies the operator issuing an event.
type ActorRole string

const (
	RolePicker     ActorRole = "PICKER"
	RoleChecker    ActorRole = "CHECKER"
	RoleShipper    ActorRole = "SHIPPER"
	RoleSupervisor ActorRole = "SUPERVISOR"
)

// Metadata is an opaque key-value payload carried through events and
// transitions unchanged. The core never interprets its contents.
type Metadata map[string]any

// OrderItem is one ordered line: what to pick and how much.
type OrderItem struct {
	SKU      string
	Quantity int64
}

// Order aggregates the state of a warehouse order. Orders are treated as
// values: every accepted mutation returns a new Order with Version+1; the
// caller's copy is never mutated in place.
type Order struct {
	ID          string
	ExternalRef string
	CustomerID  string
	ShipAddress string
	Items       []OrderItem
	Status      OrderStatus
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// ErpSyncedAt marks when the dispatch was reported to the ERP. Zero
	// until the sync scheduler confirms the push.
	ErpSyncedAt time.Time
}

// OrderEvent carries an intention to transition an Order. Transient; only
// its fingerprint survives, inside an IdempotencyRecord.
type OrderEvent struct {
	Type           OrderEventType
	ActorID        string
	ActorRole      ActorRole
	IdempotencyKey string
	Reason         string
	Metadata       Metadata
	OccurredAt     time.Time
}

// OrderTransition is the immutable audit record of one accepted event.
type OrderTransition struct {
	ID             string
	OrderID        string
	FromStatus     OrderStatus
	ToStatus       OrderStatus
	EventType      OrderEventType
	ActorID        string
	ActorRole      ActorRole
	IdempotencyKey string
	Reason         string
	Metadata       Metadata
	OccurredAt     time.Time
}

// OrderEventResult pairs the new order value with its audit record.
type OrderEventResult struct {
	Order      Order
	Transition OrderTransition
}

// CloneItems returns an independent copy of the item list.
func CloneItems(items []OrderItem) []OrderItem {
	if items == nil {
		return nil
	}
	out := make([]OrderItem, len(items))
	copy(out, items)
	return out
}

// ReplaceItems returns a copy of the order with a new item list, bumping the
// version. Fails once picking has locked the items.
func (o Order) ReplaceItems(items []OrderItem, now time.Time) (Order, error) {
	if o.Status.ItemsLocked() {
		return Order{}, ErrItemsLocked
	}
	next := o
	next.Items = CloneItems(items)
	next.Version++
	next.UpdatedAt = now
	return next, nil
}

// ValidateInvariants checks basic order invariants and returns every violation.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(o.CustomerID) == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	for _, item := range o.Items {
		if strings.TrimSpace(item.SKU) == "" {
			errs = append(errs, ErrItemSKURequired)
		}
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
	}

	return errs
}

// NormalizeSKU canonicalizes a SKU for lookups: trimmed, uppercased.
// The double-check validator and the task workflow apply the same
// normalization so scans and lines always agree.
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}
