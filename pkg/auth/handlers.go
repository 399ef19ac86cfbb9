package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/hearthcrm/hearth/pkg/audit"
	"github.com/hearthcrm/hearth/pkg/httputil"
)

// Handlers provides HTTP handlers for API key management
type Handlers struct {
	store  *Store
	logger *logrus.Logger
	audit  audit.Logger
}

// NewHandlers creates API key handlers
func NewHandlers(store *Store, logger *logrus.Logger, auditLogger audit.Logger) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Handlers{store: store, logger: logger, audit: auditLogger}
}

// RegisterRoutes registers API key routes on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/apikeys", h.CreateKey).Methods("POST")
	router.HandleFunc("/apikeys", h.ListKeys).Methods("GET")
	router.HandleFunc("/apikeys/{id}", h.RevokeKey).Methods("DELETE")
}

type createKeyRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type createKeyResponse struct {
	Key   *APIKey `json:"key"`
	Token string  `json:"token"`
}

// CreateKey handles POST /apikeys. The plaintext token appears in the
// response exactly once and is never retrievable afterwards.
func (h *Handlers) CreateKey(w http.ResponseWriter, r *http.Request) {
	caller := FromContext(r.Context())
	if caller == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req createKeyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if len(req.Scopes) == 0 {
		req.Scopes = []string{ScopeRecordsRead}
	}
	for _, scope := range req.Scopes {
		if scope != ScopeRecordsRead && scope != ScopeRecordsWrite && scope != ScopeAdmin {
			httputil.WriteValidationError(w, "unknown scope: "+scope)
			return
		}
	}

	key, token, err := h.store.CreateKey(r.Context(), caller.UserID, req.Name, req.Scopes, req.ExpiresAt)
	if err != nil {
		h.logger.WithError(err).Error("failed to create api key")
		httputil.WriteInternalError(w, err)
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeKeyCreate, audit.EventStatusSuccess,
		&caller.UserID, "api_key", key.ID, "api key created: "+key.Name)
	if err := h.audit.Log(r.Context(), event); err != nil {
		h.logger.WithError(err).Warn("failed to write audit event")
	}

	httputil.WriteCreated(w, createKeyResponse{Key: key, Token: token})
}

// ListKeys handles GET /apikeys
func (h *Handlers) ListKeys(w http.ResponseWriter, r *http.Request) {
	caller := FromContext(r.Context())
	if caller == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	keys, err := h.store.ListKeys(r.Context(), caller.UserID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list api keys")
		httputil.WriteInternalError(w, err)
		return
	}
	if keys == nil {
		keys = []APIKey{}
	}
	httputil.WriteSuccess(w, keys)
}

// RevokeKey handles DELETE /apikeys/{id}. Keys can only be revoked by
// their owner and revocation is permanent.
func (h *Handlers) RevokeKey(w http.ResponseWriter, r *http.Request) {
	caller := FromContext(r.Context())
	if caller == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	keyID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.RevokeKey(r.Context(), keyID, caller.UserID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "api key not found")
			return
		}
		h.logger.WithError(err).Error("failed to revoke api key")
		httputil.WriteInternalError(w, err)
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeKeyRevoke, audit.EventStatusSuccess,
		&caller.UserID, "api_key", keyID, "api key revoked")
	if err := h.audit.Log(r.Context(), event); err != nil {
		h.logger.WithError(err).Warn("failed to write audit event")
	}

	httputil.WriteNoContent(w)
}
