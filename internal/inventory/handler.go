package inventory

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stocksense/stocksense/internal/platform/httpx"
	"github.com/stocksense/stocksense/internal/shared"
)

// AddIntent is a product creation parsed from a spoken add command.
type AddIntent struct {
	Name     string
	Quantity int64
	Unit     string
}

// AddParser extracts an AddIntent from free text. The boolean is false when
// no product name could be recognized.
type AddParser interface {
	ParseAdd(command string) (AddIntent, bool)
}

// Handler wires HTTP endpoints for inventory operations.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	addParser AddParser
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. addParser may be nil, which
// disables the spoken-add endpoint.
func NewHandler(logger *slog.Logger, service *Service, addParser AddParser) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		addParser: addParser,
		validator: validator.New(),
	}
}

// MountRoutes registers product routes on the provided router. The routes
// assume an authenticated owner in the request context.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/stats", h.stats)
	r.Get("/totals/summary", h.totals)
	r.Get("/deleted/list", h.listArchived)
	r.Post("/voice", h.voiceAdd)
	r.Post("/voice-delete", h.voiceDelete)
	r.Post("/multi-delete", h.multiDelete)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Post("/{id}/adjust", h.adjustQuantity)
	r.Delete("/{id}", h.remove)
	r.Post("/restore/{id}", h.restore)
	r.Delete("/permanent/{id}", h.permanentDelete)
}

func ownerFrom(w http.ResponseWriter, r *http.Request) (int64, bool) {
	ownerID := shared.OwnerFromContext(r.Context())
	if ownerID == 0 {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return 0, false
	}
	return ownerID, true
}

func idParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

type createRequest struct {
	Name          string  `json:"name" validate:"required"`
	SKU           string  `json:"sku"`
	Category      string  `json:"category"`
	Unit          string  `json:"unit"`
	Price         float64 `json:"price" validate:"gte=0"`
	Quantity      int64   `json:"quantity" validate:"gte=0"`
	MinStockLevel int64   `json:"minStockLevel" validate:"gte=0"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	product, err := h.service.Create(r.Context(), ownerID, CreateInput{
		Name:          req.Name,
		SKU:           req.SKU,
		Category:      req.Category,
		Unit:          req.Unit,
		Price:         req.Price,
		Quantity:      req.Quantity,
		MinStockLevel: req.MinStockLevel,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filter := ListFilter{
		Query:    q.Get("q"),
		Category: q.Get("category"),
		LowStock: q.Get("lowStock") == "true",
		Page:     page,
		Limit:    limit,
	}

	products, err := h.service.List(r.Context(), ownerID, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if products == nil {
		products = []Product{}
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	product, err := h.service.Get(r.Context(), ownerID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

type updateRequest struct {
	Name          *string  `json:"name"`
	SKU           *string  `json:"sku"`
	Category      *string  `json:"category"`
	Unit          *string  `json:"unit"`
	Price         *float64 `json:"price" validate:"omitempty,gte=0"`
	Quantity      *int64   `json:"quantity" validate:"omitempty,gte=0"`
	MinStockLevel *int64   `json:"minStockLevel" validate:"omitempty,gte=0"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	product, err := h.service.Update(r.Context(), ownerID, id, UpdateInput{
		Name:          req.Name,
		SKU:           req.SKU,
		Category:      req.Category,
		Unit:          req.Unit,
		Price:         req.Price,
		Quantity:      req.Quantity,
		MinStockLevel: req.MinStockLevel,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

type adjustRequest struct {
	Delta int64 `json:"delta" validate:"required"`
}

func (h *Handler) adjustQuantity(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "delta must be a non-zero integer")
		return
	}

	product, err := h.service.AdjustQuantity(r.Context(), ownerID, id, req.Delta)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	archived, err := h.service.Delete(r.Context(), ownerID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message":  "product archived",
		"archived": archived,
	})
}

type multiDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,uuid"`
}

func (h *Handler) multiDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	var req multiDeleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "ids must be a non-empty list of UUIDs")
		return
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid ID", raw+" is not a UUID")
			return
		}
		ids = append(ids, id)
	}

	result, err := h.service.MultiDelete(r.Context(), ownerID, ids)
	if err != nil {
		h.logger.Error("multi delete", slog.Any("error", err), slog.Int("archived", result.ArchivedCount))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type voiceRequest struct {
	Command string `json:"command" validate:"required"`
}

func (h *Handler) voiceAdd(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	var req voiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "command is required")
		return
	}
	if h.addParser == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "voice add is not enabled")
		return
	}

	intent, ok := h.addParser.ParseAdd(req.Command)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Could Not Parse", "no product name recognized in command")
		return
	}

	product, err := h.service.Create(r.Context(), ownerID, CreateInput{
		Name:     intent.Name,
		Quantity: intent.Quantity,
		Unit:     intent.Unit,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) voiceDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	var req voiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "command is required")
		return
	}

	result, err := h.service.VoiceDelete(r.Context(), ownerID, req.Command)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listArchived(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	units, err := h.service.ListArchived(r.Context(), ownerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if units == nil {
		units = []ArchivedUnit{}
	}
	httpx.JSON(w, http.StatusOK, units)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	product, err := h.service.Restore(r.Context(), ownerID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) permanentDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.service.PermanentDelete(r.Context(), ownerID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "archived entry removed"})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	stats, err := h.service.Stats(r.Context(), ownerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if stats.Recent == nil {
		stats.Recent = []Product{}
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) totals(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Summary(r.Context(), ownerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
