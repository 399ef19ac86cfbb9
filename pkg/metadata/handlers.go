package metadata

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/hearthcrm/hearth/pkg/httputil"
)

// Handlers provides HTTP handlers for schema administration
type Handlers struct {
	store  *CachedStore
	logger *logrus.Logger
}

// NewHandlers creates new metadata handlers
func NewHandlers(store *CachedStore, logger *logrus.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

// RegisterRoutes registers all metadata routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/metadata/objects", h.CreateObject).Methods("POST")
	router.HandleFunc("/metadata/objects", h.ListObjects).Methods("GET")
	router.HandleFunc("/metadata/objects/{api_name}", h.GetObject).Methods("GET")
	router.HandleFunc("/metadata/objects/{api_name}", h.DeleteObject).Methods("DELETE")

	router.HandleFunc("/metadata/objects/{api_name}/fields", h.CreateField).Methods("POST")
	router.HandleFunc("/metadata/objects/{api_name}/fields", h.ListFields).Methods("GET")
	router.HandleFunc("/metadata/objects/{api_name}/fields/{field_id}", h.UpdateField).Methods("PUT")
	router.HandleFunc("/metadata/objects/{api_name}/fields/{field_id}", h.DeleteField).Methods("DELETE")
}

// CreateObject creates a new custom object definition
func (h *Handlers) CreateObject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIName    string `json:"api_name"`
		Label      string `json:"label"`
		PluralName string `json:"plural_name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.APIName, "api_name") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Label, "label") {
		return
	}

	obj := &ObjectDefinition{
		APIName:    req.APIName,
		Label:      req.Label,
		PluralName: req.PluralName,
		IsStandard: false,
	}
	if err := h.store.CreateObject(r.Context(), obj); err != nil {
		h.logger.WithError(err).Error("failed to create object definition")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, obj)
}

// ListObjects lists all object definitions
func (h *Handlers) ListObjects(w http.ResponseWriter, r *http.Request) {
	objects, err := h.store.ListObjects(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list object definitions")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"objects": objects})
}

// GetObject returns an object definition with its fields
func (h *Handlers) GetObject(w http.ResponseWriter, r *http.Request) {
	apiName, ok := httputil.ParsePathStringOrError(w, r, "api_name")
	if !ok {
		return
	}

	result, err := h.store.GetObjectWithFields(r.Context(), apiName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "object not found: "+apiName)
			return
		}
		h.logger.WithError(err).Error("failed to get object definition")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// DeleteObject deletes a custom object definition
func (h *Handlers) DeleteObject(w http.ResponseWriter, r *http.Request) {
	apiName, ok := httputil.ParsePathStringOrError(w, r, "api_name")
	if !ok {
		return
	}

	if err := h.store.DeleteObject(r.Context(), apiName); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "object not found: "+apiName)
			return
		}
		h.logger.WithError(err).Error("failed to delete object definition")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// CreateField creates a new custom field on an object
func (h *Handlers) CreateField(w http.ResponseWriter, r *http.Request) {
	apiName, ok := httputil.ParsePathStringOrError(w, r, "api_name")
	if !ok {
		return
	}

	var req struct {
		APIName     string `json:"api_name"`
		Label       string `json:"label"`
		FieldType   string `json:"field_type"`
		IsSensitive bool   `json:"is_sensitive"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.APIName, "api_name") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.FieldType, "field_type") {
		return
	}

	obj, err := h.store.GetObject(r.Context(), apiName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "object not found: "+apiName)
			return
		}
		h.logger.WithError(err).Error("failed to resolve object for field create")
		httputil.WriteInternalError(w, err)
		return
	}

	field := &FieldDefinition{
		ObjectID:    obj.ID,
		APIName:     req.APIName,
		ColumnName:  req.APIName,
		Label:       req.Label,
		FieldType:   req.FieldType,
		IsStandard:  false,
		IsCustom:    true,
		IsSensitive: req.IsSensitive,
		IsVisible:   true,
	}
	if err := h.store.CreateField(r.Context(), apiName, field); err != nil {
		h.logger.WithError(err).Error("failed to create field definition")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, field)
}

// ListFields lists the field definitions of an object
func (h *Handlers) ListFields(w http.ResponseWriter, r *http.Request) {
	apiName, ok := httputil.ParsePathStringOrError(w, r, "api_name")
	if !ok {
		return
	}

	fields, err := h.store.ListFields(r.Context(), apiName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "object not found: "+apiName)
			return
		}
		h.logger.WithError(err).Error("failed to list field definitions")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"fields": fields})
}

// UpdateField updates a field definition
func (h *Handlers) UpdateField(w http.ResponseWriter, r *http.Request) {
	apiName, ok := httputil.ParsePathStringOrError(w, r, "api_name")
	if !ok {
		return
	}
	fieldID, ok := httputil.ParsePathInt64OrError(w, r, "field_id")
	if !ok {
		return
	}

	var req struct {
		Label       string `json:"label"`
		FieldType   string `json:"field_type"`
		IsSensitive bool   `json:"is_sensitive"`
		IsVisible   bool   `json:"is_visible"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	field := &FieldDefinition{
		ID:          fieldID,
		Label:       req.Label,
		FieldType:   req.FieldType,
		IsSensitive: req.IsSensitive,
		IsVisible:   req.IsVisible,
	}
	if err := h.store.UpdateField(r.Context(), apiName, field); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "field not found")
			return
		}
		h.logger.WithError(err).Error("failed to update field definition")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, field)
}

// DeleteField deletes a custom field definition
func (h *Handlers) DeleteField(w http.ResponseWriter, r *http.Request) {
	apiName, ok := httputil.ParsePathStringOrError(w, r, "api_name")
	if !ok {
		return
	}
	fieldID, ok := httputil.ParsePathInt64OrError(w, r, "field_id")
	if !ok {
		return
	}

	if err := h.store.DeleteField(r.Context(), apiName, fieldID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "field not found")
			return
		}
		h.logger.WithError(err).Error("failed to delete field definition")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}
