// Package httpapi exposes the warehouse operations over a thin JSON API.
// It translates requests into service calls and error kinds into HTTP
// status codes; all the rules live below it.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/galpao/wms/internal/domain"
	"github.com/galpao/wms/internal/service/doublecheck"
	"github.com/galpao/wms/internal/service/orders"
)

// Request headers carrying actor identity and concurrency control.
const (
	headerActorID         = "X-Actor-Id"
	headerActorRole       = "X-Actor-Role"
	headerIdempotencyKey  = "Idempotency-Key"
	headerExpectedVersion = "X-Expected-Version"
)

// Handler serves the order API.
type Handler struct {
	service *orders.Service
	logger  *log.Entry
}

// NewHandler builds the API handler.
func NewHandler(service *orders.Service, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	return &Handler{service: service, logger: logger}
}

// Router builds the mux router with all API routes.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", h.createOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders", h.listOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", h.getOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/events", h.applyEvent).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/transitions", h.listTransitions).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/tasks", h.listTasks).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/scans", h.recordScan).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/check", h.checkStatus).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}/start", h.startTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}/complete", h.completeTask).Methods(http.MethodPost)

	return router
}

type orderItemDTO struct {
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
}

type createOrderRequest struct {
	ExternalRef string         `json:"external_ref,omitempty"`
	CustomerID  string         `json:"customer_id"`
	ShipAddress string         `json:"ship_address"`
	Items       []orderItemDTO `json:"items"`
}

type orderResponse struct {
	ID          string         `json:"id"`
	ExternalRef string         `json:"external_ref,omitempty"`
	CustomerID  string         `json:"customer_id"`
	ShipAddress string         `json:"ship_address"`
	Items       []orderItemDTO `json:"items"`
	Status      string         `json:"status"`
	Version     int64          `json:"version"`
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDTO{SKU: item.SKU, Quantity: item.Quantity})
	}
	return orderResponse{
		ID:          order.ID,
		ExternalRef: order.ExternalRef,
		CustomerID:  order.CustomerID,
		ShipAddress: order.ShipAddress,
		Items:       items,
		Status:      string(order.Status),
		Version:     order.Version,
	}
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.OrderItem{SKU: item.SKU, Quantity: item.Quantity})
	}

	order, err := h.service.CreateOrder(r.Context(), orders.CreateOrderInput{
		ExternalRef: req.ExternalRef,
		CustomerID:  req.CustomerID,
		ShipAddress: req.ShipAddress,
		Items:       items,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	status := domain.OrderStatus(r.URL.Query().Get("status"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	list, err := h.service.ListOrders(r.Context(), status, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]orderResponse, 0, len(list))
	for _, order := range list {
		out = append(out, toOrderResponse(order))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type applyEventRequest struct {
	Type     string          `json:"type"`
	Reason   string          `json:"reason,omitempty"`
	Metadata domain.Metadata `json:"metadata,omitempty"`
}

type applyEventResponse struct {
	Order      orderResponse `json:"order"`
	Transition transitionDTO `json:"transition"`
}

type transitionDTO struct {
	ID         string          `json:"id"`
	FromStatus string          `json:"from_status"`
	ToStatus   string          `json:"to_status"`
	EventType  string          `json:"event_type"`
	ActorID    string          `json:"actor_id,omitempty"`
	ActorRole  string          `json:"actor_role,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Metadata   domain.Metadata `json:"metadata,omitempty"`
	OccurredAt string          `json:"occurred_at"`
}

func toTransitionDTO(t domain.OrderTransition) transitionDTO {
	return transitionDTO{
		ID:         t.ID,
		FromStatus: string(t.FromStatus),
		ToStatus:   string(t.ToStatus),
		EventType:  string(t.EventType),
		ActorID:    t.ActorID,
		ActorRole:  string(t.ActorRole),
		Reason:     t.Reason,
		Metadata:   t.Metadata,
		OccurredAt: t.OccurredAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func (h *Handler) applyEvent(w http.ResponseWriter, r *http.Request) {
	var req applyEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var expectedVersion *int64
	if raw := strings.TrimSpace(r.Header.Get(headerExpectedVersion)); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid "+headerExpectedVersion+" header")
			return
		}
		expectedVersion = &parsed
	}

	event := domain.OrderEvent{
		Type:           domain.OrderEventType(req.Type),
		ActorID:        r.Header.Get(headerActorID),
		ActorRole:      domain.ActorRole(r.Header.Get(headerActorRole)),
		IdempotencyKey: r.Header.Get(headerIdempotencyKey),
		Reason:         req.Reason,
		Metadata:       req.Metadata,
	}

	result, err := h.service.ApplyEvent(r.Context(), mux.Vars(r)["id"], event, expectedVersion)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, applyEventResponse{
		Order:      toOrderResponse(result.Order),
		Transition: toTransitionDTO(result.Transition),
	})
}

func (h *Handler) listTransitions(w http.ResponseWriter, r *http.Request) {
	transitions, err := h.service.ListTransitions(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]transitionDTO, 0, len(transitions))
	for _, t := range transitions {
		out = append(out, toTransitionDTO(t))
	}
	h.writeJSON(w, http.StatusOK, out)
}

type taskLineDTO struct {
	SKU             string  `json:"sku"`
	Quantity        float64 `json:"quantity"`
	ScannedQuantity float64 `json:"scanned_quantity"`
}

type taskDTO struct {
	ID        string        `json:"id"`
	OrderID   string        `json:"order_id"`
	Type      string        `json:"type"`
	Status    string        `json:"status"`
	DependsOn string        `json:"depends_on,omitempty"`
	Lines     []taskLineDTO `json:"lines,omitempty"`
}

func toTaskDTO(task domain.Task) taskDTO {
	lines := make([]taskLineDTO, 0, len(task.Lines))
	for _, line := range task.Lines {
		lines = append(lines, taskLineDTO{
			SKU:             line.SKU,
			Quantity:        line.Quantity,
			ScannedQuantity: line.ScannedQuantity,
		})
	}
	return taskDTO{
		ID:        task.ID,
		OrderID:   task.OrderID,
		Type:      string(task.Type),
		Status:    string(task.Status),
		DependsOn: task.DependsOn,
		Lines:     lines,
	}
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.ListTasks(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]taskDTO, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, toTaskDTO(task))
	}
	h.writeJSON(w, http.StatusOK, out)
}

type recordScanRequest struct {
	TaskID   string   `json:"task_id,omitempty"`
	Type     string   `json:"type"`
	Value    string   `json:"value,omitempty"`
	Quantity *float64 `json:"quantity,omitempty"`
}

type checkResultResponse struct {
	Ok         bool               `json:"ok"`
	IsComplete bool               `json:"is_complete"`
	Errors     []string           `json:"errors,omitempty"`
	Remaining  map[string]float64 `json:"remaining"`
}

func toCheckResponse(result doublecheck.Result) checkResultResponse {
	return checkResultResponse{
		Ok:         result.Ok,
		IsComplete: result.IsComplete,
		Errors:     result.Errors,
		Remaining:  result.Remaining,
	}
}

func (h *Handler) recordScan(w http.ResponseWriter, r *http.Request) {
	var req recordScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.service.RecordScan(r.Context(), orders.ScanInput{
		OrderID:        mux.Vars(r)["id"],
		TaskID:         req.TaskID,
		Type:           domain.ScanType(req.Type),
		Value:          req.Value,
		Quantity:       req.Quantity,
		ActorID:        r.Header.Get(headerActorID),
		IdempotencyKey: r.Header.Get(headerIdempotencyKey),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toCheckResponse(result))
}

func (h *Handler) checkStatus(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.CheckStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toCheckResponse(result))
}

func (h *Handler) startTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.StartTask(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTaskDTO(task))
}

func (h *Handler) completeTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.CompleteTask(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTaskDTO(task))
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Warn("failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps error kinds to HTTP statuses: missing aggregates to
// 404, permission to 403, concurrency and state conflicts to 409, bad
// input to 400.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case domain.IsVersionConflict(err),
		errors.Is(err, domain.ErrIdempotencyConflict),
		errors.Is(err, domain.ErrOrderAlreadyExists),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrDependencyNotReady),
		errors.Is(err, domain.ErrIncompleteLines),
		errors.Is(err, domain.ErrItemsLocked):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnknownEvent),
		errors.Is(err, domain.ErrCustomerRequired),
		errors.Is(err, domain.ErrItemsRequired),
		errors.Is(err, domain.ErrItemSKURequired),
		errors.Is(err, domain.ErrItemQtyInvalid):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.logger.WithError(err).Error("request failed")
	}
	h.writeError(w, status, err.Error())
}
