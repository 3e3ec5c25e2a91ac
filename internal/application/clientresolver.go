package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
	"github.com/ericfisherdev/modeldesk/internal/domain/port/driven"
)

const maxPort = 65535

// ClientResolver derives the effective endpoint from settings and the
// credential, gates features on custom endpoints, hands out the cached
// outbound client, and tracks explicit connection verification.
type ClientResolver struct {
	settings      *SettingsService
	credentials   *CredentialService
	provider      *ClientProvider
	factory       driven.ModelListerFactory
	canonicalHost string
	issueTimeout  time.Duration
	logger        *slog.Logger
	now           func() time.Time

	buildMu sync.Mutex

	mu        sync.Mutex
	status    model.ConnectionStatus
	verifying bool
	hooks     []func()
}

// NewClientResolver creates a ClientResolver. canonicalHost is the host used
// when none is configured; issueTimeout bounds verification round-trips.
func NewClientResolver(
	settings *SettingsService,
	credentials *CredentialService,
	provider *ClientProvider,
	factory driven.ModelListerFactory,
	canonicalHost string,
	issueTimeout time.Duration,
	logger *slog.Logger,
) *ClientResolver {
	return &ClientResolver{
		settings:      settings,
		credentials:   credentials,
		provider:      provider,
		factory:       factory,
		canonicalHost: canonicalHost,
		issueTimeout:  issueTimeout,
		logger:        logger,
		now:           time.Now,
		status:        model.ConnectionStatus{State: model.ConnectionUnknown},
	}
}

// OnInvalidate registers fn to run whenever the credential or endpoint
// changes. Hooks run synchronously after the client handle is dropped.
func (r *ClientResolver) OnInvalidate(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// EffectiveConfig builds the endpoint from settings, filling defaults for
// anything unset. It returns model.ErrNotConfigured for an unsupported scheme
// or an out-of-range port.
func (r *ClientResolver) EffectiveConfig(ctx context.Context) (model.EndpointConfig, error) {
	schemeVal := r.settings.Lookup(ctx, model.SettingScheme)
	hostVal := r.settings.Lookup(ctx, model.SettingHost)
	pathVal := r.settings.Lookup(ctx, model.SettingBasePath)
	portVal := r.settings.Lookup(ctx, model.SettingPort)

	scheme := strings.ToLower(strings.TrimSpace(schemeVal.Value))
	if scheme == "" {
		scheme = model.DefaultScheme
	}
	if scheme != "https" && scheme != "http" {
		return model.EndpointConfig{}, fmt.Errorf("%w: unsupported scheme %q", model.ErrNotConfigured, schemeVal.Value)
	}

	cfg := model.EndpointConfig{
		Scheme:   scheme,
		Host:     strings.TrimSpace(hostVal.Value),
		BasePath: model.NormalizeBasePath(pathVal.Value),
	}
	if portVal.Source != model.SettingSourceDefault {
		cfg.Port, _ = strconv.Atoi(portVal.Value)
	}
	if cfg.Host == "" {
		cfg.Host = r.canonicalHost
	}
	if pathVal.Source == model.SettingSourceDefault {
		cfg.BasePath = model.DefaultBasePath
	}
	if cfg.Port > maxPort {
		return model.EndpointConfig{}, fmt.Errorf("%w: port %d out of range", model.ErrNotConfigured, cfg.Port)
	}
	if cfg.Port == 0 {
		cfg.Port = model.DefaultPortFor(scheme)
	}

	cfg.Official = hostVal.Source == model.SettingSourceDefault &&
		pathVal.Source == model.SettingSourceDefault &&
		portVal.Source == model.SettingSourceDefault &&
		scheme == "https"

	return cfg, nil
}

// IsOfficialEndpoint reports whether the effective endpoint is the provider's
// canonical one. A misconfigured endpoint is never official.
func (r *ClientResolver) IsOfficialEndpoint(ctx context.Context) bool {
	cfg, err := r.EffectiveConfig(ctx)
	return err == nil && cfg.Official
}

// FeatureGate rejects features that are only expected to work against the
// official endpoint. It makes no outbound call.
func (r *ClientResolver) FeatureGate(ctx context.Context, feature model.Feature) error {
	if !feature.RequiresOfficialEndpoint() {
		return nil
	}

	cfg, err := r.EffectiveConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.Official {
		return nil
	}

	return &model.FeatureNotSupportedError{
		Feature: feature,
		Reason:  "custom endpoint " + cfg.BaseURL() + " only serves chat",
	}
}

// Client returns the outbound client for the current endpoint and credential,
// building it on first use.
func (r *ClientResolver) Client(ctx context.Context) (driven.ModelLister, error) {
	if c := r.current(ctx); c != nil {
		return c, nil
	}

	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	if c := r.current(ctx); c != nil {
		return c, nil
	}

	gen := r.provider.Generation()

	key, ok := r.credentials.Get(ctx)
	if !ok {
		return nil, model.ErrCredentialMissing
	}
	cfg, err := r.EffectiveConfig(ctx)
	if err != nil {
		return nil, err
	}

	client, err := r.factory(cfg, key)
	if err != nil {
		return nil, fmt.Errorf("build provider client: %w", err)
	}

	if !r.provider.Install(client, cfg, gen) {
		r.logger.Debug("configuration changed while building client, not caching it")
	} else {
		r.logger.Debug("provider client built", "base_url", cfg.BaseURL(), "official", cfg.Official)
	}
	return client, nil
}

// current returns the cached client if it was built for the endpoint the
// settings describe now. A client left over from a change that arrived
// without a notification is invalidated.
func (r *ClientResolver) current(ctx context.Context) driven.ModelLister {
	gen := r.provider.Generation()
	c := r.provider.Get()
	if c == nil {
		return nil
	}
	built := r.provider.Endpoint()
	if r.provider.Generation() != gen {
		// Invalidated concurrently; the caller rebuilds.
		return nil
	}

	cfg, err := r.EffectiveConfig(ctx)
	if err == nil && cfg == built {
		return c
	}

	r.invalidate("endpoint no longer matches the cached client")
	return nil
}

// SetCredential stores value (empty clears it) and invalidates the client.
func (r *ClientResolver) SetCredential(ctx context.Context, value string) model.CredentialTier {
	tier := r.credentials.Set(ctx, value)
	r.invalidate("credential changed")
	return tier
}

// ApplySetting writes a setting from its string form and invalidates the
// client when the key affects the endpoint.
func (r *ClientResolver) ApplySetting(ctx context.Context, key model.SettingKey, raw string) error {
	if err := r.settings.Set(ctx, key, raw); err != nil {
		return err
	}

	if spec, ok := model.LookupSetting(key); ok && spec.Endpoint {
		r.invalidate("endpoint setting changed: " + string(key))
	}
	return nil
}

// Watch invalidates the client whenever an external settings change touches
// the endpoint. It blocks until ctx ends.
func (r *ClientResolver) Watch(ctx context.Context) error {
	for change := range r.settings.Subscribe(ctx) {
		if change.TouchesEndpoint() {
			r.invalidate("external settings change: " + string(change.Reason))
		}
	}
	return nil
}

func (r *ClientResolver) invalidate(reason string) {
	r.provider.Clear()

	r.mu.Lock()
	if !r.verifying {
		r.status = model.ConnectionStatus{State: model.ConnectionUnknown}
	}
	hooks := make([]func(), len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	r.logger.Info("provider client invalidated", "reason", reason)
}

// ConnectionStatus returns the last verification outcome.
func (r *ClientResolver) ConnectionStatus() model.ConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Verify lists models against the current endpoint and records the outcome.
// If a verification is already running it returns the current status without
// starting another.
func (r *ClientResolver) Verify(ctx context.Context) model.ConnectionStatus {
	r.mu.Lock()
	if r.verifying {
		status := r.status
		r.mu.Unlock()
		return status
	}
	r.verifying = true
	r.status = model.ConnectionStatus{State: model.ConnectionVerifying}
	r.mu.Unlock()

	result := r.verify(ctx)

	r.mu.Lock()
	r.verifying = false
	r.status = result
	r.mu.Unlock()

	r.logger.Info("connection verified", "state", result.State, "reason", result.Reason)
	return result
}

func (r *ClientResolver) verify(ctx context.Context) model.ConnectionStatus {
	client, err := r.Client(ctx)
	if err != nil {
		return model.ConnectionStatus{State: model.ConnectionFailure, Reason: err.Error(), CheckedAt: r.now()}
	}

	ctx, cancel := context.WithTimeout(ctx, r.issueTimeout)
	defer cancel()

	if _, err := client.ListModels(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return model.ConnectionStatus{State: model.ConnectionUnknown}
		}
		return model.ConnectionStatus{State: model.ConnectionFailure, Reason: err.Error(), CheckedAt: r.now()}
	}

	return model.ConnectionStatus{State: model.ConnectionSuccess, CheckedAt: r.now()}
}
