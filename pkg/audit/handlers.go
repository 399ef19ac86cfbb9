package audit

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hearthcrm/hearth/pkg/httputil"
)

// Handlers exposes the audit trail to the admin portal
type Handlers struct {
	logger *DBLogger
}

// NewHandlers creates audit query handlers
func NewHandlers(logger *DBLogger) *Handlers {
	return &Handlers{logger: logger}
}

// RegisterRoutes registers audit routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/events", h.SearchEvents).Methods("GET")
}

// SearchEvents returns audit events matching query parameters
func (h *Handlers) SearchEvents(w http.ResponseWriter, r *http.Request) {
	filter := SearchFilter{
		EventType: EventType(httputil.ParseQueryString(r, "event_type", "")),
		Resource:  httputil.ParseQueryString(r, "resource", ""),
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter.Limit = limit

	if since := httputil.ParseQueryString(r, "since", ""); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid since timestamp")
			return
		}
		filter.Since = &t
	}

	events, err := h.logger.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
