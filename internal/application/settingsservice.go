// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
	"github.com/ericfisherdev/modeldesk/internal/domain/port/driven"
)

// subscriberBuffer is the per-subscriber channel capacity. Notifications to
// a full subscriber are dropped.
const subscriberBuffer = 8

// Retry bounds for re-establishing the remote change stream.
const (
	watchRetryInitial = 500 * time.Millisecond
	watchRetryMax     = 30 * time.Second
)

// SettingsService exposes typed settings over a remote (synced) backend and a
// local backend. Every write goes to both; every read prefers remote.
// All store operations are serialized by a single mutex.
type SettingsService struct {
	mu       sync.Mutex
	remote   driven.RemoteSettingsStore
	local    driven.SettingsStore
	logger   *slog.Logger
	now      func() time.Time
	lastSync time.Time

	subsMu sync.Mutex
	subs   map[int]chan model.SettingsChange
	nextID int
}

// NewSettingsService creates a SettingsService. remote may be nil, in which
// case every remote read is treated as absent and remote writes are skipped.
func NewSettingsService(remote driven.RemoteSettingsStore, local driven.SettingsStore, logger *slog.Logger) *SettingsService {
	return &SettingsService{
		remote: remote,
		local:  local,
		logger: logger,
		now:    time.Now,
		subs:   make(map[int]chan model.SettingsChange),
	}
}

// HasRemote reports whether a remote backend is configured.
func (s *SettingsService) HasRemote() bool {
	return s.remote != nil
}

// preferRemote is the single precedence rule for reads: a usable remote value
// wins, then a usable local value, then the key's default.
func preferRemote(spec model.SettingSpec, remote, local lookup) model.SettingValue {
	if v, ok := usable(spec, remote); ok {
		return model.SettingValue{Key: spec.Key, Value: v, Source: model.SettingSourceRemote}
	}
	if v, ok := usable(spec, local); ok {
		return model.SettingValue{Key: spec.Key, Value: v, Source: model.SettingSourceLocal}
	}
	return model.SettingValue{Key: spec.Key, Value: defaultValue(spec), Source: model.SettingSourceDefault}
}

// lookup is the outcome of reading one key from one backend.
type lookup struct {
	value string
	found bool
}

// usable applies the sentinel rules: empty strings and non-positive or
// unparseable integers count as unset.
func usable(spec model.SettingSpec, l lookup) (string, bool) {
	if !l.found || l.value == "" {
		return "", false
	}
	if spec.Kind == model.SettingKindInt {
		n, err := strconv.Atoi(l.value)
		if err != nil || n <= 0 {
			return "", false
		}
		return strconv.Itoa(n), true
	}
	return l.value, true
}

func defaultValue(spec model.SettingSpec) string {
	if spec.Kind == model.SettingKindInt {
		if spec.DefaultInt > 0 {
			return strconv.Itoa(spec.DefaultInt)
		}
		return ""
	}
	return spec.Default
}

func specFor(key model.SettingKey) model.SettingSpec {
	if spec, ok := model.LookupSetting(key); ok {
		return spec
	}
	return model.SettingSpec{Key: key, Kind: model.SettingKindString}
}

// Lookup returns the effective value of key and the backend that served it.
func (s *SettingsService) Lookup(ctx context.Context, key model.SettingKey) model.SettingValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(ctx, specFor(key))
}

func (s *SettingsService) lookupLocked(ctx context.Context, spec model.SettingSpec) model.SettingValue {
	var remote lookup
	if s.remote != nil {
		v, ok, err := s.remote.Get(ctx, spec.Key)
		if err != nil {
			s.logger.Warn("remote settings read failed", "key", spec.Key, "error", err)
		}
		remote = lookup{value: v, found: ok && err == nil}
	}

	v, ok, err := s.local.Get(ctx, spec.Key)
	if err != nil {
		s.logger.Warn("local settings read failed", "key", spec.Key, "error", err)
	}
	local := lookup{value: v, found: ok && err == nil}

	return preferRemote(spec, remote, local)
}

// String returns the effective string value of key.
func (s *SettingsService) String(ctx context.Context, key model.SettingKey) string {
	return s.Lookup(ctx, key).Value
}

// Int returns the effective integer value of key, or 0 when unset.
func (s *SettingsService) Int(ctx context.Context, key model.SettingKey) int {
	n, err := strconv.Atoi(s.Lookup(ctx, key).Value)
	if err != nil {
		return 0
	}
	return n
}

// All returns the effective value of every known setting.
func (s *SettingsService) All(ctx context.Context) []model.SettingValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	specs := model.SettingSpecs()
	out := make([]model.SettingValue, 0, len(specs))
	for _, spec := range specs {
		out = append(out, s.lookupLocked(ctx, spec))
	}
	return out
}

// SetString writes value to both backends. An empty value removes the key.
func (s *SettingsService) SetString(ctx context.Context, key model.SettingKey, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value == "" {
		return s.removeLocked(ctx, key)
	}
	return s.writeLocked(ctx, key, value)
}

// SetInt writes n to both backends. A non-positive n removes the key.
func (s *SettingsService) SetInt(ctx context.Context, key model.SettingKey, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		return s.removeLocked(ctx, key)
	}
	return s.writeLocked(ctx, key, strconv.Itoa(n))
}

// Set parses raw according to the key's kind and writes it. It returns
// model.ErrUnknownSetting for unknown keys and model.ErrInvalidSetting when
// raw does not parse.
func (s *SettingsService) Set(ctx context.Context, key model.SettingKey, raw string) error {
	spec, ok := model.LookupSetting(key)
	if !ok {
		return fmt.Errorf("%w: %q", model.ErrUnknownSetting, key)
	}

	if spec.Kind != model.SettingKindInt {
		return s.SetString(ctx, key, raw)
	}
	if raw == "" {
		return s.SetInt(ctx, key, 0)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: %s must be an integer", model.ErrInvalidSetting, key)
	}
	return s.SetInt(ctx, key, n)
}

// Remove deletes key from both backends.
func (s *SettingsService) Remove(ctx context.Context, key model.SettingKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(ctx, key)
}

func (s *SettingsService) writeLocked(ctx context.Context, key model.SettingKey, value string) error {
	if s.remote != nil {
		if err := s.remote.Set(ctx, key, value); err != nil {
			s.logger.Warn("remote settings write failed", "key", key, "error", err)
		}
	}
	if err := s.local.Set(ctx, key, value); err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

func (s *SettingsService) removeLocked(ctx context.Context, key model.SettingKey) error {
	if s.remote != nil {
		if err := s.remote.Remove(ctx, key); err != nil {
			s.logger.Warn("remote settings remove failed", "key", key, "error", err)
		}
	}
	if err := s.local.Remove(ctx, key); err != nil {
		return fmt.Errorf("remove setting %s: %w", key, err)
	}
	return nil
}

// Synchronize asks the remote backend to flush and confirm reachability. It
// is a no-op without a remote backend.
func (s *SettingsService) Synchronize(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.remote.Synchronize(ctx); err != nil {
		return fmt.Errorf("synchronize settings: %w", err)
	}
	s.lastSync = s.now()
	return nil
}

// LastSync returns when the remote backend last reported or confirmed a sync.
// The zero time means never.
func (s *SettingsService) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// Subscribe returns a channel that receives a SettingsChange after every
// external change. The channel is closed when ctx ends.
func (s *SettingsService) Subscribe(ctx context.Context) <-chan model.SettingsChange {
	ch := make(chan model.SettingsChange, subscriberBuffer)

	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subsMu.Lock()
		delete(s.subs, id)
		close(ch)
		s.subsMu.Unlock()
	}()

	return ch
}

// Subscribers returns the number of active subscriptions.
func (s *SettingsService) Subscribers() int {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return len(s.subs)
}

// Watch consumes the remote backend's change stream until ctx ends. Without a
// remote backend it simply waits for ctx. An unreachable backend never ends
// the watch: subscription failures are logged and retried with exponential
// backoff, and reads keep falling back to the local backend meanwhile.
func (s *SettingsService) Watch(ctx context.Context) error {
	if s.remote == nil {
		<-ctx.Done()
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = watchRetryInitial
	policy.MaxInterval = watchRetryMax
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(policy, ctx)

	for {
		var changes <-chan model.RemoteChange
		subscribe := func() error {
			var err error
			changes, err = s.remote.Subscribe(ctx)
			return err
		}
		notify := func(err error, next time.Duration) {
			s.logger.Warn("remote settings unavailable, retrying", "error", err, "retry_in", next)
		}
		if err := backoff.RetryNotify(subscribe, retry, notify); err != nil {
			s.logger.Info("settings watcher stopped")
			return nil
		}
		policy.Reset()

		s.logger.Info("watching remote settings")
		for change := range changes {
			s.handleRemoteChange(change)
		}

		if ctx.Err() != nil {
			s.logger.Info("settings watcher stopped")
			return nil
		}
		s.logger.Warn("remote settings stream closed, resubscribing")
	}
}

func (s *SettingsService) handleRemoteChange(change model.RemoteChange) {
	switch change.Reason {
	case model.ChangeReasonQuotaViolation:
		s.logger.Warn("remote settings quota exceeded", "keys", change.Keys)
		return
	case model.ChangeReasonServer, model.ChangeReasonInitialSync, model.ChangeReasonAccountChange:
	default:
		s.logger.Debug("ignoring remote change with unknown reason", "reason", change.Reason)
		return
	}

	s.mu.Lock()
	at := s.now()
	s.lastSync = at
	s.mu.Unlock()

	s.logger.Debug("remote settings changed", "reason", change.Reason, "keys", change.Keys)
	s.broadcast(model.SettingsChange{Reason: change.Reason, Keys: change.Keys, At: at})
}

func (s *SettingsService) broadcast(change model.SettingsChange) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for id, ch := range s.subs {
		select {
		case ch <- change:
		default:
			s.logger.Warn("settings subscriber is slow, dropping notification", "subscriber", id)
		}
	}
}
