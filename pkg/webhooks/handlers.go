package webhooks

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/hearthcrm/hearth/pkg/httputil"
)

// Handlers provides HTTP handlers for webhook management
type Handlers struct {
	store   *Store
	manager *Manager
	logger  *logrus.Logger
}

// NewHandlers creates webhook handlers
func NewHandlers(store *Store, manager *Manager, logger *logrus.Logger) *Handlers {
	return &Handlers{store: store, manager: manager, logger: logger}
}

// RegisterRoutes registers webhook routes on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhooks", h.Create).Methods("POST")
	router.HandleFunc("/webhooks", h.List).Methods("GET")
	router.HandleFunc("/webhooks/{id}", h.Get).Methods("GET")
	router.HandleFunc("/webhooks/{id}", h.Update).Methods("PATCH")
	router.HandleFunc("/webhooks/{id}", h.Delete).Methods("DELETE")
	router.HandleFunc("/webhooks/{id}/activate", h.Activate).Methods("POST")
	router.HandleFunc("/webhooks/{id}/deactivate", h.Deactivate).Methods("POST")
	router.HandleFunc("/webhooks/{id}/deliveries", h.Deliveries).Methods("GET")
	router.HandleFunc("/webhooks/{id}/stats", h.Stats).Methods("GET")
}

type webhookRequest struct {
	URL         string      `json:"url"`
	Events      []EventType `json:"events"`
	Secret      string      `json:"secret,omitempty"`
	Description string      `json:"description,omitempty"`
}

// Create handles POST /webhooks
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	hook := &Webhook{
		URL:         req.URL,
		Events:      req.Events,
		Secret:      req.Secret,
		Description: req.Description,
	}
	if err := h.store.Create(r.Context(), hook); err != nil {
		if errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrNoEvents) {
			httputil.WriteValidationError(w, err.Error())
			return
		}
		h.logger.WithError(err).Error("failed to create webhook")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, hook)
}

// List handles GET /webhooks
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.store.List(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list webhooks")
		httputil.WriteInternalError(w, err)
		return
	}
	if hooks == nil {
		hooks = []Webhook{}
	}
	httputil.WriteSuccess(w, hooks)
}

// Get handles GET /webhooks/{id}
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	hook, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "webhook not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, hook)
}

// Update handles PATCH /webhooks/{id}
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req webhookRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	hook, err := h.store.Update(r.Context(), id, &Webhook{
		URL:         req.URL,
		Events:      req.Events,
		Secret:      req.Secret,
		Description: req.Description,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httputil.WriteNotFoundError(w, "webhook not found")
		case errors.Is(err, ErrInvalidURL), errors.Is(err, ErrNoEvents):
			httputil.WriteValidationError(w, err.Error())
		default:
			h.logger.WithError(err).Error("failed to update webhook")
			httputil.WriteInternalError(w, err)
		}
		return
	}
	httputil.WriteSuccess(w, hook)
}

// Delete handles DELETE /webhooks/{id}
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "webhook not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// Activate handles POST /webhooks/{id}/activate
func (h *Handlers) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// Deactivate handles POST /webhooks/{id}/deactivate
func (h *Handlers) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handlers) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.SetActive(r.Context(), id, active); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "webhook not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// Deliveries handles GET /webhooks/{id}/deliveries
func (h *Handlers) Deliveries(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	deliveries := h.manager.Deliveries(id, limit)
	if deliveries == nil {
		deliveries = []*Delivery{}
	}
	httputil.WriteSuccess(w, deliveries)
}

// Stats handles GET /webhooks/{id}/stats
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	httputil.WriteSuccess(w, h.manager.DeliveryStats(id))
}
