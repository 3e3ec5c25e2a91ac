package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps engine errors to HTTP statuses. Anything unrecognized
// is logged and reported as a 500 without detail.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var (
		notSupported *model.FeatureNotSupportedError
		fetchFailed  *model.FetchFailedError
	)

	switch {
	case errors.As(err, &notSupported):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, model.ErrCredentialMissing), errors.Is(err, model.ErrNotConfigured):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &fetchFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, model.ErrUnknownSetting):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidSetting):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// ValueRequest is the JSON body for setting and credential writes.
type ValueRequest struct {
	Value string `json:"value"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status         string `json:"status"`
	Time           string `json:"time"`
	RemoteSettings bool   `json:"remote_settings"`
	LastSync       string `json:"last_sync,omitempty"`
}

// SettingResponse is the effective value of one setting.
type SettingResponse struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

// CredentialResponse describes the stored credential without revealing it.
type CredentialResponse struct {
	Configured bool   `json:"configured"`
	Tier       string `json:"tier,omitempty"`
	Masked     string `json:"masked,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// EndpointResponse is the effective connection target.
type EndpointResponse struct {
	Scheme   string `json:"scheme"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	BasePath string `json:"base_path"`
	BaseURL  string `json:"base_url"`
	Official bool   `json:"official"`
}

// FeatureResponse is the outcome of a feature gate check.
type FeatureResponse struct {
	Feature   string `json:"feature"`
	Supported bool   `json:"supported"`
	Reason    string `json:"reason,omitempty"`
}

// ModelsResponse lists model identifiers.
type ModelsResponse struct {
	Feature  string   `json:"feature,omitempty"`
	Official bool     `json:"official"`
	Models   []string `json:"models"`
}

// CatalogStateResponse is a snapshot of the model catalog cache.
type CatalogStateResponse struct {
	Models     []string `json:"models"`
	FetchedAt  string   `json:"fetched_at,omitempty"`
	TTLSeconds int      `json:"ttl_seconds"`
	LastError  string   `json:"last_error,omitempty"`
	Refreshing bool     `json:"refreshing"`
}

// ConnectionResponse is the last connection verification outcome.
type ConnectionResponse struct {
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
	CheckedAt string `json:"checked_at,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toSettingResponse(v model.SettingValue) SettingResponse {
	return SettingResponse{
		Key:    string(v.Key),
		Value:  v.Value,
		Source: string(v.Source),
	}
}

func toCredentialResponse(c model.Credential) CredentialResponse {
	return CredentialResponse{
		Configured: c.IsSet(),
		Tier:       string(c.Tier),
		Masked:     c.Masked(),
		UpdatedAt:  formatTime(c.UpdatedAt),
	}
}

func toEndpointResponse(cfg model.EndpointConfig) EndpointResponse {
	return EndpointResponse{
		Scheme:   cfg.Scheme,
		Host:     cfg.Host,
		Port:     cfg.Port,
		BasePath: cfg.BasePath,
		BaseURL:  cfg.BaseURL(),
		Official: cfg.Official,
	}
}

func toCatalogStateResponse(s model.CatalogState) CatalogStateResponse {
	return CatalogStateResponse{
		Models:     model.ModelIDs(s.Models),
		FetchedAt:  formatTime(s.FetchedAt),
		TTLSeconds: int(s.TTL / time.Second),
		LastError:  s.LastError,
		Refreshing: s.Refreshing,
	}
}

func toConnectionResponse(s model.ConnectionStatus) ConnectionResponse {
	return ConnectionResponse{
		State:     string(s.State),
		Reason:    s.Reason,
		CheckedAt: formatTime(s.CheckedAt),
	}
}
