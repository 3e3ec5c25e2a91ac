package httphandler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
)

// GetEndpoint returns the effective connection target.
func (h *Handler) GetEndpoint(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.resolver.EffectiveConfig(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEndpointResponse(cfg))
}

// GetFeature reports whether a feature is available on the current endpoint.
func (h *Handler) GetFeature(w http.ResponseWriter, r *http.Request) {
	feature, ok := model.ParseFeature(r.PathValue("feature"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown feature: "+r.PathValue("feature"))
		return
	}

	err := h.resolver.FeatureGate(r.Context(), feature)

	var notSupported *model.FeatureNotSupportedError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, FeatureResponse{Feature: string(feature), Supported: true})
	case errors.As(err, &notSupported):
		writeJSON(w, http.StatusUnprocessableEntity, FeatureResponse{
			Feature:   string(feature),
			Supported: false,
			Reason:    notSupported.Error(),
		})
	default:
		h.writeDomainError(w, err)
	}
}

// ListModels returns the cached catalog, or one feature's subset when the
// feature query parameter is given.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := ModelsResponse{Official: h.resolver.IsOfficialEndpoint(ctx)}

	if name := r.URL.Query().Get("feature"); name != "" {
		feature, ok := model.ParseFeature(name)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown feature: "+name)
			return
		}
		resp.Feature = string(feature)
		resp.Models = h.catalog.Models(ctx, feature)
	} else {
		resp.Models = model.ModelIDs(h.catalog.Catalog())
	}

	if resp.Models == nil {
		resp.Models = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// RefreshModels refreshes the catalog, honoring the TTL unless force=true.
func (h *Handler) RefreshModels(w http.ResponseWriter, r *http.Request) {
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid force parameter")
			return
		}
		force = parsed
	}

	if err := h.catalog.Refresh(r.Context(), force); err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCatalogStateResponse(h.catalog.State()))
}

// ModelsState returns a snapshot of the catalog cache.
func (h *Handler) ModelsState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toCatalogStateResponse(h.catalog.State()))
}

// ModelDefaults returns the resolved default model for every feature.
func (h *Handler) ModelDefaults(w http.ResponseWriter, r *http.Request) {
	defaults := h.catalog.Defaults(r.Context())

	resp := make(map[string]string, len(defaults))
	for feature, id := range defaults {
		resp[string(feature)] = id
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetConnection returns the last verification outcome.
func (h *Handler) GetConnection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toConnectionResponse(h.resolver.ConnectionStatus()))
}

// VerifyConnection performs a round-trip against the endpoint.
func (h *Handler) VerifyConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toConnectionResponse(h.resolver.Verify(r.Context())))
}
