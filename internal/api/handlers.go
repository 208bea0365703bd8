package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bulksender/internal/engine"
	"bulksender/internal/model"
	"bulksender/internal/repo"
)

// Dispatcher is the slice of the engine the HTTP surface needs.
type Dispatcher interface {
	CreateAndRun(ctx context.Context, ownerID, groupTag string, spec model.MessageSpec, recipients []string) (string, error)
	GetStatus(ctx context.Context, operationID string) (*model.Operation, error)
	List(ctx context.Context, f repo.OperationFilter, p repo.Page) ([]model.Operation, int, error)
	ListDispatches(ctx context.Context, operationID string, status model.DispatchStatus, p repo.Page) ([]model.DispatchRecord, int, error)
}

type Handler struct {
	dispatcher Dispatcher
}

func NewHandler(d Dispatcher) *Handler {
	return &Handler{dispatcher: d}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type createOperationRequest struct {
	OwnerID    string            `json:"ownerId"`
	GroupTag   string            `json:"groupTag"`
	Message    model.MessageSpec `json:"message"`
	Recipients []string          `json:"recipients"`
}

func (h *Handler) CreateOperation(w http.ResponseWriter, r *http.Request) {
	var req createOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.OwnerID == "" {
		http.Error(w, "ownerId is required", http.StatusBadRequest)
		return
	}

	id, err := h.dispatcher.CreateAndRun(r.Context(), req.OwnerID, req.GroupTag, req.Message, req.Recipients)
	if err != nil {
		if errors.Is(err, engine.ErrNoRecipients) || errors.Is(err, engine.ErrInvalidSpec) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"operationId": id})
}

func (h *Handler) GetOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	op, err := h.dispatcher.GetStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrOperationNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, op)
}

func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.OperationFilter{
		OwnerID:  q.Get("owner"),
		GroupTag: q.Get("group"),
		Status:   model.OperationStatus(q.Get("status")),
	}
	page := repo.Page{
		Limit:  parseInt(q.Get("limit"), 50),
		Offset: parseInt(q.Get("offset"), 0),
	}

	items, total, err := h.dispatcher.List(r.Context(), filter, page)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) ListOperationMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()
	page := repo.Page{
		Limit:  parseInt(q.Get("limit"), 50),
		Offset: parseInt(q.Get("offset"), 0),
	}

	items, total, err := h.dispatcher.ListDispatches(r.Context(), id, model.DispatchStatus(q.Get("status")), page)
	if err != nil {
		if errors.Is(err, repo.ErrOperationNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
