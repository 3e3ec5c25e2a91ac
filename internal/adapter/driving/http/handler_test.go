package httphandler_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/modeldesk/internal/adapter/driving/http"
	"github.com/ericfisherdev/modeldesk/internal/application"
	"github.com/ericfisherdev/modeldesk/internal/domain/model"
	"github.com/ericfisherdev/modeldesk/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockSecretStore struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *mockSecretStore) Get(_ context.Context, account string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[account]
	if !ok {
		return "", driven.ErrSecretNotFound
	}
	return v, nil
}

func (m *mockSecretStore) Set(_ context.Context, account, plaintext string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[account] = plaintext
	return nil
}

func (m *mockSecretStore) Delete(_ context.Context, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, account)
	return nil
}

type mockSettingsStore struct {
	mu     sync.Mutex
	values map[model.SettingKey]string
}

func (m *mockSettingsStore) Get(_ context.Context, key model.SettingKey) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mockSettingsStore) Set(_ context.Context, key model.SettingKey, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *mockSettingsStore) Remove(_ context.Context, key model.SettingKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

type mockLister struct {
	ids []string
	err error
}

func (m *mockLister) ListModels(_ context.Context) ([]string, error) {
	return m.ids, m.err
}

// --- Helpers ---

var officialModels = []string{"dall-e-3", "gpt-4.1-mini", "gpt-4o", "gpt-4o-transcribe", "gpt-5", "gpt-image-1", "tts-1", "whisper-1"}

type testServer struct {
	handler     http.Handler
	credentials *application.CredentialService
	lister      *mockLister
}

func setupServer(t *testing.T, metrics http.Handler) *testServer {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	settings := application.NewSettingsService(nil, &mockSettingsStore{values: map[model.SettingKey]string{}}, logger)
	credentials := application.NewCredentialService(
		&mockSecretStore{values: map[string]string{}},
		&mockSecretStore{values: map[string]string{}},
		"default", logger,
	)
	lister := &mockLister{ids: officialModels}
	factory := func(model.EndpointConfig, string) (driven.ModelLister, error) { return lister, nil }

	resolver := application.NewClientResolver(
		settings, credentials, application.NewClientProvider(nil, model.EndpointConfig{}),
		factory, "api.openai.com", time.Second, logger,
	)
	catalog := application.NewCatalogService(resolver, settings, nil, 0, time.Second, logger)
	resolver.OnInvalidate(catalog.Clear)

	h := httphandler.NewHandler(settings, credentials, resolver, catalog, metrics, logger)
	return &testServer{
		handler:     httphandler.NewServeMux(h, logger),
		credentials: credentials,
		lister:      lister,
	}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	err := json.NewDecoder(rec.Body).Decode(v)
	require.NoError(t, err)
}

// --- Tests ---

func TestHealth(t *testing.T) {
	srv := setupServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body httphandler.HealthResponse
	decodeJSON(t, rec, &body)
	assert.Equal(t, "ok", body.Status)
	assert.False(t, body.RemoteSettings)
	assert.Empty(t, body.LastSync)
}

func TestSettings(t *testing.T) {
	srv := setupServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []httphandler.SettingResponse
	decodeJSON(t, rec, &all)
	assert.Len(t, all, len(model.SettingSpecs()))

	rec = srv.do(t, http.MethodGet, "/api/v1/settings/scheme", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var one httphandler.SettingResponse
	decodeJSON(t, rec, &one)
	assert.Equal(t, httphandler.SettingResponse{Key: "scheme", Value: "https", Source: "default"}, one)

	rec = srv.do(t, http.MethodPut, "/api/v1/settings/port", `{"value":"8443"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &one)
	assert.Equal(t, httphandler.SettingResponse{Key: "port", Value: "8443", Source: "local"}, one)

	rec = srv.do(t, http.MethodDelete, "/api/v1/settings/port", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/v1/settings/port", "")
	decodeJSON(t, rec, &one)
	assert.Equal(t, "default", one.Source)
}

func TestSettings_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{name: "unknown key get", method: http.MethodGet, target: "/api/v1/settings/theme", wantStatus: http.StatusNotFound},
		{name: "unknown key put", method: http.MethodPut, target: "/api/v1/settings/theme", body: `{"value":"dark"}`, wantStatus: http.StatusNotFound},
		{name: "non-integer port", method: http.MethodPut, target: "/api/v1/settings/port", body: `{"value":"eighty"}`, wantStatus: http.StatusBadRequest},
		{name: "malformed body", method: http.MethodPut, target: "/api/v1/settings/host", body: `{"value":`, wantStatus: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPut, target: "/api/v1/settings/host", body: `{"val":"x"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := setupServer(t, nil)

			rec := srv.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]any
			decodeJSON(t, rec, &body)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestCredential(t *testing.T) {
	srv := setupServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/credential", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cred httphandler.CredentialResponse
	decodeJSON(t, rec, &cred)
	assert.False(t, cred.Configured)

	rec = srv.do(t, http.MethodPut, "/api/v1/credential", `{"value":"sk-test-1234"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &cred)
	assert.True(t, cred.Configured)
	assert.Equal(t, "synced", cred.Tier)
	assert.Equal(t, "****1234", cred.Masked)
	assert.NotContains(t, rec.Body.String(), "sk-test")

	rec = srv.do(t, http.MethodPut, "/api/v1/credential", `{"value":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/api/v1/credential", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := srv.credentials.Get(context.Background())
	assert.False(t, ok)
}

func TestEndpointAndFeatures(t *testing.T) {
	srv := setupServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/endpoint", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var endpoint httphandler.EndpointResponse
	decodeJSON(t, rec, &endpoint)
	assert.True(t, endpoint.Official)
	assert.Equal(t, "https://api.openai.com/v1", endpoint.BaseURL)

	rec = srv.do(t, http.MethodGet, "/api/v1/features/image", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPut, "/api/v1/settings/host", `{"value":"localhost"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/v1/features/image", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var feature httphandler.FeatureResponse
	decodeJSON(t, rec, &feature)
	assert.False(t, feature.Supported)
	assert.Contains(t, feature.Reason, "image generation not supported")

	rec = srv.do(t, http.MethodGet, "/api/v1/features/chat", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/v1/features/video", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodPut, "/api/v1/settings/scheme", `{"value":"gopher"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = srv.do(t, http.MethodGet, "/api/v1/endpoint", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestModels_RefreshWithoutCredential(t *testing.T) {
	srv := setupServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/api/v1/models/refresh", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Contains(t, body["error"], "api key not configured")
}

func TestModels_RefreshListAndDefaults(t *testing.T) {
	srv := setupServer(t, nil)
	srv.do(t, http.MethodPut, "/api/v1/credential", `{"value":"sk-test-1234"}`)

	rec := srv.do(t, http.MethodPost, "/api/v1/models/refresh?force=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state httphandler.CatalogStateResponse
	decodeJSON(t, rec, &state)
	assert.Equal(t, officialModels, state.Models)
	assert.Equal(t, 300, state.TTLSeconds)
	assert.NotEmpty(t, state.FetchedAt)

	rec = srv.do(t, http.MethodGet, "/api/v1/models?feature=transcription", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var models httphandler.ModelsResponse
	decodeJSON(t, rec, &models)
	assert.True(t, models.Official)
	assert.Equal(t, []string{"gpt-4o-transcribe", "whisper-1"}, models.Models)

	rec = srv.do(t, http.MethodGet, "/api/v1/models/defaults", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var defaults map[string]string
	decodeJSON(t, rec, &defaults)
	assert.Equal(t, "gpt-5", defaults["chat"])
	assert.Equal(t, "gpt-image-1", defaults["image"])

	rec = srv.do(t, http.MethodGet, "/api/v1/models?feature=video", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/models/refresh?force=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModels_FetchFailureIsBadGateway(t *testing.T) {
	srv := setupServer(t, nil)
	srv.do(t, http.MethodPut, "/api/v1/credential", `{"value":"sk-test-1234"}`)
	srv.lister.err = assert.AnError

	rec := srv.do(t, http.MethodPost, "/api/v1/models/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/v1/models/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state httphandler.CatalogStateResponse
	decodeJSON(t, rec, &state)
	assert.Empty(t, state.Models)
	assert.Contains(t, state.LastError, "fetch models")
}

func TestModels_EmptyCatalogIsEmptyArray(t *testing.T) {
	srv := setupServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"models":[]`)
}

func TestConnection(t *testing.T) {
	srv := setupServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/connection", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var conn httphandler.ConnectionResponse
	decodeJSON(t, rec, &conn)
	assert.Equal(t, "unknown", conn.State)

	rec = srv.do(t, http.MethodPost, "/api/v1/connection/verify", "")
	decodeJSON(t, rec, &conn)
	assert.Equal(t, "failure", conn.State)
	assert.Equal(t, "api key not configured", conn.Reason)

	srv.do(t, http.MethodPut, "/api/v1/credential", `{"value":"sk-test-1234"}`)
	rec = srv.do(t, http.MethodPost, "/api/v1/connection/verify", "")
	decodeJSON(t, rec, &conn)
	assert.Equal(t, "success", conn.State)
	assert.NotEmpty(t, conn.CheckedAt)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	srv := setupServer(t, metrics)

	rec := srv.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics\n", rec.Body.String())

	rec = setupServer(t, nil).do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	srv := setupServer(t, panicking)

	rec := srv.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Equal(t, "internal server error", body["error"])
}
