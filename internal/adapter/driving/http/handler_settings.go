package httphandler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// ListSettings returns the effective value of every setting.
func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	values := h.settings.All(r.Context())

	resp := make([]SettingResponse, 0, len(values))
	for _, v := range values {
		resp = append(resp, toSettingResponse(v))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetSetting returns the effective value of one setting.
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key, ok := settingKey(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, toSettingResponse(h.settings.Lookup(r.Context(), key)))
}

// PutSetting writes a setting. An empty value resets it to its default.
func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	key, ok := settingKey(w, r)
	if !ok {
		return
	}

	var req ValueRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.resolver.ApplySetting(r.Context(), key, strings.TrimSpace(req.Value)); err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSettingResponse(h.settings.Lookup(r.Context(), key)))
}

// DeleteSetting resets a setting to its default.
func (h *Handler) DeleteSetting(w http.ResponseWriter, r *http.Request) {
	key, ok := settingKey(w, r)
	if !ok {
		return
	}

	if err := h.resolver.ApplySetting(r.Context(), key, ""); err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetCredential reports whether a credential is configured and which tier
// holds it. The value itself is never returned.
func (h *Handler) GetCredential(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toCredentialResponse(h.credentials.Status(r.Context())))
}

// PutCredential replaces the stored credential.
func (h *Handler) PutCredential(w http.ResponseWriter, r *http.Request) {
	var req ValueRequest
	if !decodeBody(w, r, &req) {
		return
	}

	value := strings.TrimSpace(req.Value)
	if value == "" {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	if tier := h.resolver.SetCredential(r.Context(), value); tier == model.CredentialTierNone {
		writeError(w, http.StatusServiceUnavailable, "credential could not be stored in any tier")
		return
	}

	writeJSON(w, http.StatusOK, toCredentialResponse(h.credentials.Status(r.Context())))
}

// DeleteCredential removes the credential from both tiers.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	h.resolver.SetCredential(r.Context(), "")
	w.WriteHeader(http.StatusNoContent)
}

func settingKey(w http.ResponseWriter, r *http.Request) (model.SettingKey, bool) {
	key := model.SettingKey(r.PathValue("key"))
	if _, ok := model.LookupSetting(key); !ok {
		writeError(w, http.StatusNotFound, "unknown setting: "+string(key))
		return "", false
	}
	return key, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
