package sharing

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/hearthcrm/hearth/pkg/audit"
	"github.com/hearthcrm/hearth/pkg/httputil"
)

// Handlers provides HTTP handlers for sharing administration
type Handlers struct {
	store       *Store
	logger      *logrus.Logger
	auditLogger audit.Logger
}

// NewHandlers creates sharing handlers
func NewHandlers(store *Store, logger *logrus.Logger, auditLogger audit.Logger) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Handlers{
		store:       store,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// RegisterRoutes registers sharing routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sharing/rules", h.CreateRule).Methods("POST")
	router.HandleFunc("/sharing/rules", h.ListRules).Methods("GET")
	router.HandleFunc("/sharing/rules/{id}", h.DeleteRule).Methods("DELETE")

	router.HandleFunc("/sharing/shares/{object}/{record_id}", h.ListShares).Methods("GET")
}

// CreateRule creates a sharing rule
func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string `json:"name"`
		ObjectAPIName string `json:"object_api_name"`
		OwnerTeamID   *int64 `json:"owner_team_id,omitempty"`
		GranteeTeamID *int64 `json:"grantee_team_id,omitempty"`
		GranteeRoleID *int64 `json:"grantee_role_id,omitempty"`
		AccessLevel   string `json:"access_level"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ObjectAPIName, "object_api_name") {
		return
	}

	rule := &SharingRule{
		Name:          req.Name,
		ObjectAPIName: req.ObjectAPIName,
		OwnerTeamID:   req.OwnerTeamID,
		GranteeTeamID: req.GranteeTeamID,
		GranteeRoleID: req.GranteeRoleID,
		AccessLevel:   req.AccessLevel,
	}
	if err := h.store.CreateRule(r.Context(), rule); err != nil {
		if errors.Is(err, ErrInvalidAccessLevel) || errors.Is(err, ErrNoGrantee) {
			httputil.WriteValidationError(w, err.Error())
			return
		}
		h.logger.WithError(err).Error("failed to create sharing rule")
		httputil.WriteInternalError(w, err)
		return
	}

	h.auditLogger.Log(r.Context(), audit.NewEvent(r.Context(),
		audit.EventTypeShareGrant, audit.EventStatusSuccess, rule.CreatedBy, "sharing_rule", rule.Name, "sharing rule created"))
	httputil.WriteCreated(w, rule)
}

// ListRules lists sharing rules, optionally filtered by object
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	object := httputil.ParseQueryString(r, "object", "")

	rules, err := h.store.ListRules(r.Context(), object)
	if err != nil {
		h.logger.WithError(err).Error("failed to list sharing rules")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

// DeleteRule deletes a sharing rule
func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteRule(r.Context(), ruleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "rule not found")
			return
		}
		h.logger.WithError(err).Error("failed to delete sharing rule")
		httputil.WriteInternalError(w, err)
		return
	}

	h.auditLogger.Log(r.Context(), audit.NewEvent(r.Context(),
		audit.EventTypeShareRevoke, audit.EventStatusSuccess, nil, "sharing_rule", "", "sharing rule deleted"))
	httputil.WriteNoContent(w)
}

// ListShares lists the unexpired shares on one record
func (h *Handlers) ListShares(w http.ResponseWriter, r *http.Request) {
	object, ok := httputil.ParsePathStringOrError(w, r, "object")
	if !ok {
		return
	}
	recordID, ok := httputil.ParsePathStringOrError(w, r, "record_id")
	if !ok {
		return
	}

	shares, err := h.store.ListSharesForRecord(r.Context(), object, recordID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list shares")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"shares": shares})
}
