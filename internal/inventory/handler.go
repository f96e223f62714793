package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cellarkeep/cellarkeep/internal/platform/httpx"
	"github.com/cellarkeep/cellarkeep/internal/shared"
)

const idempotencyHeader = "Idempotency-Key"

// Handler wires HTTP endpoints for stock operations and inventory reads.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receive", h.receive)
	r.Post("/transfer", h.transfer)
	r.Post("/remove", h.remove)
	r.Get("/quantity", h.quantity)
	r.Get("/movements", h.movements)
	r.Get("/warehouses/{id}", h.warehouseDetail)
	r.Get("/reconciliation", h.reconciliation)
}

type receiveRequest struct {
	WarehouseID    int64  `json:"warehouse_id" validate:"required,gt=0"`
	ProductID      int64  `json:"product_id" validate:"required,gt=0"`
	Quantity       int64  `json:"quantity" validate:"required,gt=0"`
	RelatedOrderID string `json:"related_order_id" validate:"omitempty,uuid"`
	Notes          string `json:"notes" validate:"max=500"`
}

type transferRequest struct {
	SourceWarehouseID int64  `json:"source_warehouse_id" validate:"required,gt=0"`
	DestWarehouseID   int64  `json:"dest_warehouse_id" validate:"required,gt=0"`
	ProductID         int64  `json:"product_id" validate:"required,gt=0"`
	Quantity          int64  `json:"quantity" validate:"required,gt=0"`
	Notes             string `json:"notes" validate:"max=500"`
}

type removeRequest struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	Quantity    int64  `json:"quantity" validate:"required,gt=0"`
	Notes       string `json:"notes" validate:"max=500"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	qty, err := h.service.Receive(r.Context(), ReceiveInput{
		WarehouseID:    req.WarehouseID,
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		RelatedOrderID: req.RelatedOrderID,
		Notes:          req.Notes,
		ActorID:        actor.UserID,
		IdempotencyKey: r.Header.Get(idempotencyHeader),
	})
	if err != nil {
		h.logger.Error("receive stock failed", slog.Any("error", err), slog.Int64("warehouse_id", req.WarehouseID), slog.Int64("product_id", req.ProductID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"quantity": qty})
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	result, err := h.service.Transfer(r.Context(), TransferInput{
		SourceWarehouseID: req.SourceWarehouseID,
		DestWarehouseID:   req.DestWarehouseID,
		ProductID:         req.ProductID,
		Quantity:          req.Quantity,
		Notes:             req.Notes,
		ActorID:           actor.UserID,
		IdempotencyKey:    r.Header.Get(idempotencyHeader),
	})
	if err != nil {
		h.logger.Error("transfer stock failed", slog.Any("error", err), slog.Int64("source", req.SourceWarehouseID), slog.Int64("dest", req.DestWarehouseID), slog.Int64("product_id", req.ProductID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	var req removeRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	qty, err := h.service.Remove(r.Context(), RemoveInput{
		WarehouseID:    req.WarehouseID,
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		Notes:          req.Notes,
		ActorID:        actor.UserID,
		IdempotencyKey: r.Header.Get(idempotencyHeader),
	})
	if err != nil {
		h.logger.Error("remove stock failed", slog.Any("error", err), slog.Int64("warehouse_id", req.WarehouseID), slog.Int64("product_id", req.ProductID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"quantity": qty})
}

func (h *Handler) quantity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	warehouseID, _ := strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	productID, _ := strconv.ParseInt(q.Get("product_id"), 10, 64)
	qty, err := h.service.GetQuantity(r.Context(), warehouseID, productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"quantity": qty})
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{Type: MovementType(q.Get("type"))}
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	filter.ProductID, _ = strconv.ParseInt(q.Get("product_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, string(shared.KindValidation), "invalid from timestamp")
			return
		}
		filter.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, string(shared.KindValidation), "invalid to timestamp")
			return
		}
		filter.To = t
	}

	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string][]StockMovement{"movements": movements})
}

func (h *Handler) warehouseDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, string(shared.KindValidation), "invalid warehouse id")
		return
	}
	detail, err := h.service.WarehouseDetail(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) reconciliation(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.service.Reconcile(r.Context())
	if err != nil {
		h.logger.Error("reconciliation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"drifts": drifts, "consistent": len(drifts) == 0})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Error(w, http.StatusBadRequest, string(shared.KindValidation), "invalid request body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Error(w, http.StatusBadRequest, string(shared.KindValidation), validationDetail(err))
		return false
	}
	return true
}

func validationDetail(err error) string {
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "gt":
			return fe.Field() + " must be positive"
		case "uuid":
			return fe.Field() + " must be a valid uuid"
		case "max":
			return fe.Field() + " is too long"
		default:
			return fe.Field() + " is invalid"
		}
	}
	return "validation failed"
}
