package reporting

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/hearthcrm/hearth/pkg/auth"
	"github.com/hearthcrm/hearth/pkg/httputil"
)

// Handlers provides HTTP handlers for reports
type Handlers struct {
	registry *Registry
	runner   *Runner
	logger   *logrus.Logger
}

// NewHandlers creates report handlers
func NewHandlers(registry *Registry, runner *Runner, logger *logrus.Logger) *Handlers {
	return &Handlers{registry: registry, runner: runner, logger: logger}
}

// RegisterRoutes registers report routes on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/reports", h.List).Methods("GET")
	router.HandleFunc("/reports/{name}/run", h.Run).Methods("GET")
}

// List handles GET /reports
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.registry.List())
}

// Run handles GET /reports/{name}/run
func (h *Handlers) Run(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	result, err := h.runner.Run(r.Context(), name, auth.UserID(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, ErrReportNotFound):
			httputil.WriteNotFoundError(w, "report not found")
		case errors.Is(err, ErrFieldNotReadable):
			httputil.WriteForbidden(w, "access denied")
		case errors.Is(err, ErrUnknownField):
			httputil.WriteValidationError(w, err.Error())
		default:
			h.logger.WithError(err).Error("report run failed")
			httputil.WriteInternalError(w, err)
		}
		return
	}
	httputil.WriteSuccess(w, result)
}
