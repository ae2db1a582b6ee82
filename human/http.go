package human

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Handler serves the pending requests of a Queue over HTTP.
type Handler struct {
	queue *Queue
}

// NewHandler creates a handler backed by q.
func NewHandler(q *Queue) *Handler {
	return &Handler{queue: q}
}

// RegisterRoutes mounts the decision endpoints on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/human", func(r chi.Router) {
		r.Get("/requests", h.ListRequests)
		r.Get("/requests/{id}", h.GetRequest)
		r.Post("/requests/{id}/decision", h.Decide)
	})
}

// Router returns a standalone router with the decision endpoints.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	h.RegisterRoutes(r)
	return r
}

// ListRequests returns every waiting request.
func (h *Handler) ListRequests(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.queue.Pending())
}

// GetRequest returns one waiting request.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := h.queue.Get(chi.URLParam(r, "id"))
	if !ok {
		Error(w, http.StatusNotFound, "request not found")
		return
	}
	JSON(w, http.StatusOK, req)
}

// Decide resolves a waiting request with the posted decision.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var d Decision
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.queue.Resolve(id, d); err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			Error(w, http.StatusNotFound, "request not found")
			return
		}
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	JSON(w, http.StatusOK, map[string]any{"id": id, "approved": d.Approved})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
