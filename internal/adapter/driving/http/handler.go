package httphandler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/modeldesk/internal/application"
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	settings    *application.SettingsService
	credentials *application.CredentialService
	resolver    *application.ClientResolver
	catalog     *application.CatalogService
	metrics     http.Handler
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. metrics may be
// nil, in which case /metrics is not registered.
func NewHandler(
	settings *application.SettingsService,
	credentials *application.CredentialService,
	resolver *application.ClientResolver,
	catalog *application.CatalogService,
	metrics http.Handler,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		settings:    settings,
		credentials: credentials,
		resolver:    resolver,
		catalog:     catalog,
		metrics:     metrics,
		logger:      logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)

	mux.HandleFunc("GET /api/v1/settings", h.ListSettings)
	mux.HandleFunc("GET /api/v1/settings/{key}", h.GetSetting)
	mux.HandleFunc("PUT /api/v1/settings/{key}", h.PutSetting)
	mux.HandleFunc("DELETE /api/v1/settings/{key}", h.DeleteSetting)

	mux.HandleFunc("GET /api/v1/credential", h.GetCredential)
	mux.HandleFunc("PUT /api/v1/credential", h.PutCredential)
	mux.HandleFunc("DELETE /api/v1/credential", h.DeleteCredential)

	mux.HandleFunc("GET /api/v1/endpoint", h.GetEndpoint)
	mux.HandleFunc("GET /api/v1/features/{feature}", h.GetFeature)

	mux.HandleFunc("GET /api/v1/models", h.ListModels)
	mux.HandleFunc("POST /api/v1/models/refresh", h.RefreshModels)
	mux.HandleFunc("GET /api/v1/models/state", h.ModelsState)
	mux.HandleFunc("GET /api/v1/models/defaults", h.ModelDefaults)

	mux.HandleFunc("GET /api/v1/connection", h.GetConnection)
	mux.HandleFunc("POST /api/v1/connection/verify", h.VerifyConnection)

	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns a liveness response along with the settings sync state.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:         "ok",
		Time:           time.Now().UTC().Format(time.RFC3339),
		RemoteSettings: h.settings.HasRemote(),
	}
	if last := h.settings.LastSync(); !last.IsZero() {
		resp.LastSync = last.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, resp)
}
