package roles

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/hearthcrm/hearth/pkg/audit"
	"github.com/hearthcrm/hearth/pkg/httputil"
)

// EventNotifier receives permission-change notifications for webhook
// dispatch. May be nil.
type EventNotifier interface {
	NotifyPermissionChanged(ctx context.Context, roleID int64, objectAPIName string)
}

// Handlers provides HTTP handlers for role and permission administration
type Handlers struct {
	store       *Store
	logger      *logrus.Logger
	auditLogger audit.Logger
	notifier    EventNotifier
}

// NewHandlers creates new role handlers. notifier may be nil.
func NewHandlers(store *Store, logger *logrus.Logger, auditLogger audit.Logger, notifier EventNotifier) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Handlers{
		store:       store,
		logger:      logger,
		auditLogger: auditLogger,
		notifier:    notifier,
	}
}

// RegisterRoutes registers all role routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/roles/{id}", h.GetRole).Methods("GET")
	router.HandleFunc("/roles/{id}", h.UpdateRole).Methods("PUT")
	router.HandleFunc("/roles/{id}", h.DeleteRole).Methods("DELETE")

	router.HandleFunc("/users/{id}/roles", h.AssignRole).Methods("POST")
	router.HandleFunc("/users/{id}/roles", h.ListUserRoles).Methods("GET")
	router.HandleFunc("/users/{id}/roles/{role_id}", h.RevokeRole).Methods("DELETE")

	router.HandleFunc("/teams", h.CreateTeam).Methods("POST")
	router.HandleFunc("/teams", h.ListTeams).Methods("GET")
	router.HandleFunc("/teams/{id}", h.DeleteTeam).Methods("DELETE")
	router.HandleFunc("/teams/{id}/members", h.AddTeamMember).Methods("POST")
	router.HandleFunc("/teams/{id}/members", h.ListTeamMembers).Methods("GET")
	router.HandleFunc("/teams/{id}/members/{user_id}", h.RemoveTeamMember).Methods("DELETE")

	router.HandleFunc("/roles/{id}/field-permissions/{object}", h.GetFieldPermissions).Methods("GET")
	router.HandleFunc("/roles/{id}/field-permissions/{object}", h.SetFieldPermissions).Methods("PUT")
	router.HandleFunc("/roles/{id}/field-permissions/{object}", h.ResetFieldPermissions).Methods("DELETE")
}

// CreateRole creates a new custom role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string              `json:"name"`
		Label       string              `json:"label"`
		Description string              `json:"description"`
		Permissions map[string][]string `json:"permissions"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Label, "label") {
		return
	}

	role := &Role{
		Name:        req.Name,
		Label:       req.Label,
		Description: req.Description,
		Permissions: req.Permissions,
	}
	if err := h.store.CreateRole(r.Context(), role); err != nil {
		h.logger.WithError(err).Error("failed to create role")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, role)
}

// ListRoles lists all roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	result, err := h.store.ListRoles(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list roles")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"roles": result})
}

// GetRole returns a role by ID
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(r.Context(), roleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "role not found")
			return
		}
		h.logger.WithError(err).Error("failed to get role")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, role)
}

// UpdateRole updates a custom role
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Label       string              `json:"label"`
		Description string              `json:"description"`
		Permissions map[string][]string `json:"permissions"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role := &Role{
		ID:          roleID,
		Label:       req.Label,
		Description: req.Description,
		Permissions: req.Permissions,
	}
	if err := h.store.UpdateRole(r.Context(), role); err != nil {
		if errors.Is(err, ErrBuiltIn) {
			httputil.WriteForbidden(w, "built-in roles cannot be modified")
			return
		}
		h.logger.WithError(err).Error("failed to update role")
		httputil.WriteInternalError(w, err)
		return
	}

	h.auditLogger.Log(r.Context(), audit.NewEvent(r.Context(),
		audit.EventTypeRoleChange, audit.EventStatusSuccess, nil, "role", role.Name, "role updated"))
	httputil.WriteJSON(w, http.StatusOK, role)
}

// DeleteRole deletes a custom role
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteRole(r.Context(), roleID); err != nil {
		if errors.Is(err, ErrBuiltIn) {
			httputil.WriteForbidden(w, "built-in roles cannot be deleted")
			return
		}
		h.logger.WithError(err).Error("failed to delete role")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// AssignRole grants a role to a user
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		RoleID    int64      `json:"role_id"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RoleID == 0 {
		httputil.WriteValidationError(w, "role_id is required")
		return
	}

	assignment := &UserRole{
		UserID:    userID,
		RoleID:    req.RoleID,
		ExpiresAt: req.ExpiresAt,
	}
	if err := h.store.AssignRole(r.Context(), assignment); err != nil {
		h.logger.WithError(err).Error("failed to assign role")
		httputil.WriteInternalError(w, err)
		return
	}

	h.auditLogger.Log(r.Context(), audit.NewEvent(r.Context(),
		audit.EventTypeRoleChange, audit.EventStatusSuccess, &userID, "user_role", "", "role assigned"))
	httputil.WriteCreated(w, assignment)
}

// ListUserRoles lists a user's unexpired roles
func (h *Handlers) ListUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	result, err := h.store.ListUserRoles(r.Context(), userID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list user roles")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"roles": result})
}

// RevokeRole removes a role from a user
func (h *Handlers) RevokeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "role_id")
	if !ok {
		return
	}

	if err := h.store.RevokeRole(r.Context(), userID, roleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "assignment not found")
			return
		}
		h.logger.WithError(err).Error("failed to revoke role")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// CreateTeam creates a new team
func (h *Handlers) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Label       string `json:"label"`
		Description string `json:"description"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	team := &Team{Name: req.Name, Label: req.Label, Description: req.Description}
	if err := h.store.CreateTeam(r.Context(), team); err != nil {
		h.logger.WithError(err).Error("failed to create team")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, team)
}

// ListTeams lists all teams
func (h *Handlers) ListTeams(w http.ResponseWriter, r *http.Request) {
	result, err := h.store.ListTeams(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list teams")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"teams": result})
}

// DeleteTeam deletes a team
func (h *Handlers) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteTeam(r.Context(), teamID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "team not found")
			return
		}
		h.logger.WithError(err).Error("failed to delete team")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// AddTeamMember adds a user to a team
func (h *Handlers) AddTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		UserID int64 `json:"user_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == 0 {
		httputil.WriteValidationError(w, "user_id is required")
		return
	}

	member := &TeamMember{TeamID: teamID, UserID: req.UserID}
	if err := h.store.AddTeamMember(r.Context(), member); err != nil {
		h.logger.WithError(err).Error("failed to add team member")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, member)
}

// ListTeamMembers lists a team's members
func (h *Handlers) ListTeamMembers(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	result, err := h.store.ListTeamMembers(r.Context(), teamID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list team members")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"members": result})
}

// RemoveTeamMember removes a user from a team
func (h *Handlers) RemoveTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.store.RemoveTeamMember(r.Context(), teamID, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "membership not found")
			return
		}
		h.logger.WithError(err).Error("failed to remove team member")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// GetFieldPermissions returns the stored matrix rows for a role and object.
// Fields without a row are default-allow and are not materialized here.
func (h *Handlers) GetFieldPermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	object, ok := httputil.ParsePathStringOrError(w, r, "object")
	if !ok {
		return
	}

	result, err := h.store.GetFieldPermissions(r.Context(), roleID, object)
	if err != nil {
		h.logger.WithError(err).Error("failed to get field permissions")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"permissions": result})
}

// SetFieldPermissions upserts matrix rows for a role and object
func (h *Handlers) SetFieldPermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	object, ok := httputil.ParsePathStringOrError(w, r, "object")
	if !ok {
		return
	}

	var req struct {
		Permissions []FieldPermissionRow `json:"permissions"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.store.SetFieldPermissions(r.Context(), roleID, req.Permissions); err != nil {
		if errors.Is(err, ErrEditableInvisible) {
			httputil.WriteValidationError(w, err.Error())
			return
		}
		h.logger.WithError(err).Error("failed to set field permissions")
		httputil.WriteInternalError(w, err)
		return
	}

	h.auditLogger.Log(r.Context(), audit.NewEvent(r.Context(),
		audit.EventTypePermissionChange, audit.EventStatusSuccess, nil, "field_permissions", object, "field permission matrix updated"))
	if h.notifier != nil {
		h.notifier.NotifyPermissionChanged(r.Context(), roleID, object)
	}
	httputil.WriteSuccess(w, map[string]interface{}{"updated": len(req.Permissions)})
}

// ResetFieldPermissions deletes matrix rows for a role and object, restoring
// default-allow for all of its fields
func (h *Handlers) ResetFieldPermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	object, ok := httputil.ParsePathStringOrError(w, r, "object")
	if !ok {
		return
	}

	if err := h.store.ResetFieldPermissions(r.Context(), roleID, object); err != nil {
		h.logger.WithError(err).Error("failed to reset field permissions")
		httputil.WriteInternalError(w, err)
		return
	}

	h.auditLogger.Log(r.Context(), audit.NewEvent(r.Context(),
		audit.EventTypePermissionReset, audit.EventStatusSuccess, nil, "field_permissions", object, "field permission matrix reset"))
	if h.notifier != nil {
		h.notifier.NotifyPermissionChanged(r.Context(), roleID, object)
	}
	httputil.WriteNoContent(w)
}
