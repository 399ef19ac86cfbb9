package records

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/hearthcrm/hearth/pkg/auth"
	"github.com/hearthcrm/hearth/pkg/httputil"
	"github.com/hearthcrm/hearth/pkg/metadata"
	"github.com/hearthcrm/hearth/pkg/sharing"
)

// Handlers provides HTTP handlers for record operations
type Handlers struct {
	service *Service
	logger  *logrus.Logger
}

// NewHandlers creates record handlers
func NewHandlers(service *Service, logger *logrus.Logger) *Handlers {
	return &Handlers{service: service, logger: logger}
}

// RegisterRoutes registers record routes on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/records/{object}", h.Create).Methods("POST")
	router.HandleFunc("/records/{object}", h.List).Methods("GET")
	router.HandleFunc("/records/{object}/{id}", h.Get).Methods("GET")
	router.HandleFunc("/records/{object}/{id}", h.Update).Methods("PATCH")
	router.HandleFunc("/records/{object}/{id}", h.Delete).Methods("DELETE")
	router.HandleFunc("/records/{object}/{id}/shares", h.Share).Methods("POST")
	router.HandleFunc("/records/{object}/{id}/shares", h.ListShares).Methods("GET")
	router.HandleFunc("/records/{object}/{id}/shares/{shareID}", h.Unshare).Methods("DELETE")
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, metadata.ErrNotFound):
		httputil.WriteNotFoundError(w, "record not found")
	case errors.Is(err, ErrAccessDenied):
		httputil.WriteForbidden(w, "access denied")
	case errors.Is(err, sharing.ErrInvalidAccessLevel), errors.Is(err, sharing.ErrNoGrantee):
		httputil.WriteValidationError(w, err.Error())
	default:
		h.logger.WithError(err).Error("record operation failed")
		httputil.WriteInternalError(w, err)
	}
}

// Create handles POST /records/{object}
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	object, ok := httputil.ParsePathStringOrError(w, r, "object")
	if !ok {
		return
	}

	var payload map[string]interface{}
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}

	view, err := h.service.Create(r.Context(), object, auth.UserID(r.Context()), payload)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, view)
}

// List handles GET /records/{object}
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	object, ok := httputil.ParsePathStringOrError(w, r, "object")
	if !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	views, err := h.service.List(r.Context(), object, auth.UserID(r.Context()), limit, offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if views == nil {
		views = []RecordView{}
	}
	httputil.WriteSuccess(w, views)
}

// Get handles GET /records/{object}/{id}
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	object, ok := httputil.ParsePathStringOrError(w, r, "object")
	if !ok {
		return
	}
	recordID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	view, err := h.service.Get(r.Context(), object, recordID, auth.UserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, view)
}

// Update handles PATCH /records/{object}/{id}
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	object, ok := httputil.ParsePathStringOrError(w, r, "object")
	if !ok {
		return
	}
	recordID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var payload map[string]interface{}
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}

	view, err := h.service.Update(r.Context(), object, recordID, auth.UserID(r.Context()), payload)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, view)
}

// Delete handles DELETE /records/{object}/{id}
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	object, ok := httputil.ParsePathStringOrError(w, r, "object")
	if !ok {
		return
	}
	recordID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), object, recordID, auth.UserID(r.Context())); err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// Share handles POST /records/{object}/{id}/shares
func (h *Handlers) Share(w http.ResponseWriter, r *http.Request) {
	object, ok := httputil.ParsePathStringOrError(w, r, "object")
	if !ok {
		return
	}
	recordID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var share sharing.ManualShare
	if !httputil.ParseJSONOrError(w, r, &share) {
		return
	}

	if err := h.service.Share(r.Context(), object, recordID, auth.UserID(r.Context()), &share); err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, share)
}

// ListShares handles GET /records/{object}/{id}/shares
func (h *Handlers) ListShares(w http.ResponseWriter, r *http.Request) {
	object, ok := httputil.ParsePathStringOrError(w, r, "object")
	if !ok {
		return
	}
	recordID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	shares, err := h.service.ListShares(r.Context(), object, recordID, auth.UserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if shares == nil {
		shares = []sharing.ManualShare{}
	}
	httputil.WriteSuccess(w, shares)
}

// Unshare handles DELETE /records/{object}/{id}/shares/{shareID}
func (h *Handlers) Unshare(w http.ResponseWriter, r *http.Request) {
	object, ok := httputil.ParsePathStringOrError(w, r, "object")
	if !ok {
		return
	}
	recordID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	shareID, ok := httputil.ParsePathInt64OrError(w, r, "shareID")
	if !ok {
		return
	}

	if err := h.service.Unshare(r.Context(), object, recordID, auth.UserID(r.Context()), shareID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
