package application_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
	"github.com/ericfisherdev/modeldesk/internal/domain/port/driven"
)

var errBackend = errors.New("backend unavailable")

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// --- SecretStore ---

type mockSecretStore struct {
	mu        sync.Mutex
	values    map[string]string
	failSet   bool
	failGet   bool
	deletes   int
	setCalled int
}

func newMockSecretStore() *mockSecretStore {
	return &mockSecretStore{values: make(map[string]string)}
}

func (m *mockSecretStore) Get(_ context.Context, account string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", errBackend
	}
	v, ok := m.values[account]
	if !ok {
		return "", driven.ErrSecretNotFound
	}
	return v, nil
}

func (m *mockSecretStore) Set(_ context.Context, account, plaintext string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalled++
	if m.failSet {
		return errBackend
	}
	m.values[account] = plaintext
	return nil
}

func (m *mockSecretStore) Delete(_ context.Context, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.values, account)
	return nil
}

func (m *mockSecretStore) has(account string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[account]
	return ok
}

// --- SettingsStore ---

type mockSettingsStore struct {
	mu       sync.Mutex
	values   map[model.SettingKey]string
	failSet  bool
	failGet  bool
	setCalls int
}

func newMockSettingsStore() *mockSettingsStore {
	return &mockSettingsStore{values: make(map[model.SettingKey]string)}
}

func (m *mockSettingsStore) Get(_ context.Context, key model.SettingKey) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", false, errBackend
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mockSettingsStore) Set(_ context.Context, key model.SettingKey, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.failSet {
		return errBackend
	}
	m.values[key] = value
	return nil
}

func (m *mockSettingsStore) Remove(_ context.Context, key model.SettingKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *mockSettingsStore) raw(key model.SettingKey) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

// mockRemoteStore is a RemoteSettingsStore whose change stream is driven by
// the test through push.
type mockRemoteStore struct {
	*mockSettingsStore
	changes  chan model.RemoteChange
	syncErr  error
	syncs    atomic.Int32
	subCalls atomic.Int32
	// subFailures is how many Subscribe calls fail before one succeeds.
	subFailures atomic.Int32
}

func newMockRemoteStore() *mockRemoteStore {
	return &mockRemoteStore{
		mockSettingsStore: newMockSettingsStore(),
		changes:           make(chan model.RemoteChange, 8),
	}
}

func (m *mockRemoteStore) Synchronize(_ context.Context) error {
	m.syncs.Add(1)
	return m.syncErr
}

func (m *mockRemoteStore) Subscribe(ctx context.Context) (<-chan model.RemoteChange, error) {
	m.subCalls.Add(1)
	if m.subFailures.Add(-1) >= 0 {
		return nil, errBackend
	}
	out := make(chan model.RemoteChange)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-m.changes:
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (m *mockRemoteStore) push(c model.RemoteChange) {
	m.changes <- c
}

// --- ModelLister ---

type mockLister struct {
	listModels func(ctx context.Context) ([]string, error)
	calls      atomic.Int32
}

func (m *mockLister) ListModels(ctx context.Context) ([]string, error) {
	m.calls.Add(1)
	return m.listModels(ctx)
}

func staticLister(ids ...string) *mockLister {
	return &mockLister{listModels: func(context.Context) ([]string, error) {
		return ids, nil
	}}
}

// recordingFactory returns a factory that hands out lister and records the
// endpoint and key it was built for.
type recordingFactory struct {
	mu        sync.Mutex
	lister    driven.ModelLister
	builds    int
	endpoints []model.EndpointConfig
	keys      []string
}

func (f *recordingFactory) build(endpoint model.EndpointConfig, apiKey string) (driven.ModelLister, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds++
	f.endpoints = append(f.endpoints, endpoint)
	f.keys = append(f.keys, apiKey)
	return f.lister, nil
}

func (f *recordingFactory) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}
