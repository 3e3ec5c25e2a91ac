package application

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/modeldesk/internal/domain/capability"
	"github.com/ericfisherdev/modeldesk/internal/domain/model"
	"github.com/ericfisherdev/modeldesk/internal/domain/port/driven"
)

// DefaultCatalogTTL is how long a fetched catalog is considered fresh.
const DefaultCatalogTTL = 300 * time.Second

const refreshKey = "models"

// ListerSource supplies the outbound client and the endpoint classification
// the catalog depends on. ClientResolver implements it.
type ListerSource interface {
	Client(ctx context.Context) (driven.ModelLister, error)
	IsOfficialEndpoint(ctx context.Context) bool
}

// SettingReader reads effective string settings. SettingsService implements it.
type SettingReader interface {
	String(ctx context.Context, key model.SettingKey) string
}

// flight is the owned handle of the refresh currently in progress.
type flight struct {
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
}

// CatalogService caches the provider's model list with a TTL and derives
// per-feature subsets and defaults from it. At most one fetch is in flight;
// concurrent non-forced refreshes share it, and a forced refresh cancels it
// and starts over.
//
// s.current is non-nil exactly while refreshKey is registered in s.group for
// that flight. Both are changed together under s.mu.
type CatalogService struct {
	source       ListerSource
	settings     SettingReader
	observer     driven.CatalogObserver
	ttl          time.Duration
	issueTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time

	group singleflight.Group

	mu         sync.Mutex
	models     []model.ModelRecord
	fetchedAt  time.Time
	lastErr    error
	current    *flight
	generation uint64
}

// NewCatalogService creates a CatalogService. A non-positive ttl selects
// DefaultCatalogTTL. observer may be nil.
func NewCatalogService(
	source ListerSource,
	settings SettingReader,
	observer driven.CatalogObserver,
	ttl time.Duration,
	issueTimeout time.Duration,
	logger *slog.Logger,
) *CatalogService {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &CatalogService{
		source:       source,
		settings:     settings,
		observer:     observer,
		ttl:          ttl,
		issueTimeout: issueTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// Refresh ensures the catalog is current. Unless force is set, a fresh
// catalog is left alone and an in-progress fetch is joined. A forced refresh
// cancels any in-progress fetch and starts a new one.
//
// It returns a *model.FetchFailedError when the fetch it waited on failed.
// Cancellation, whether by ctx or by a newer forced refresh, returns nil.
func (s *CatalogService) Refresh(ctx context.Context, force bool) error {
	s.mu.Lock()
	if !force && s.current == nil && s.isFreshLocked() {
		s.mu.Unlock()
		if s.observer != nil {
			s.observer.RecordCacheHit()
		}
		return nil
	}

	if force && s.current != nil {
		s.logger.Debug("forced refresh supersedes in-flight fetch", "generation", s.current.generation)
		s.abandonLocked()
	}

	f := s.current
	if f == nil {
		f = s.startLocked(ctx)
	}
	ch := s.group.DoChan(refreshKey, func() (any, error) {
		return nil, s.fetch(f)
	})
	s.mu.Unlock()

	select {
	case res := <-ch:
		if res.Err == nil || errors.Is(res.Err, model.ErrCancelled) {
			return nil
		}
		return res.Err
	case <-ctx.Done():
		return nil
	}
}

// startLocked opens a new flight. The fetch context is detached from ctx so
// that one caller giving up does not cancel a fetch others have joined.
func (s *CatalogService) startLocked(ctx context.Context) *flight {
	s.generation++
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.issueTimeout)

	f := &flight{generation: s.generation, ctx: fctx, cancel: cancel}
	s.current = f
	return f
}

// abandonLocked cancels the current flight and detaches it from the group so
// the next DoChan starts a fresh call. The abandoned fetch can no longer
// commit because its generation is stale.
func (s *CatalogService) abandonLocked() {
	s.current.cancel()
	s.group.Forget(refreshKey)
	s.current = nil
	s.generation++
}

func (s *CatalogService) fetch(f *flight) error {
	defer f.cancel()

	start := s.now()
	ids, err := s.list(f.ctx)
	return s.commit(f, ids, err, s.now().Sub(start))
}

func (s *CatalogService) list(ctx context.Context) ([]string, error) {
	client, err := s.source.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.ListModels(ctx)
}

// commit applies a fetch outcome if f is still the current flight.
func (s *CatalogService) commit(f *flight, ids []string, err error, elapsed time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.generation != s.generation || s.current != f {
		s.recordCancelled()
		s.logger.Debug("discarding superseded catalog fetch", "generation", f.generation)
		return model.ErrCancelled
	}

	s.current = nil
	s.group.Forget(refreshKey)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.recordCancelled()
			return model.ErrCancelled
		}

		failed := model.NewFetchFailed(err)
		s.lastErr = failed
		if s.observer != nil {
			s.observer.RecordRefresh(elapsed, err)
		}
		s.logger.Warn("model catalog refresh failed, keeping cached catalog",
			"error", err,
			"cached_models", len(s.models),
		)
		return failed
	}

	records := make([]model.ModelRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, model.ModelRecord{ID: id})
	}
	slices.SortFunc(records, func(a, b model.ModelRecord) int {
		return strings.Compare(a.ID, b.ID)
	})

	s.models = records
	s.fetchedAt = s.now()
	s.lastErr = nil
	if s.observer != nil {
		s.observer.RecordRefresh(elapsed, nil)
	}
	s.logger.Info("model catalog refreshed", "models", len(records), "duration", elapsed.Round(time.Millisecond))
	return nil
}

func (s *CatalogService) recordCancelled() {
	if s.observer != nil {
		s.observer.RecordCancelled()
	}
}

func (s *CatalogService) isFreshLocked() bool {
	return len(s.models) > 0 && s.now().Sub(s.fetchedAt) < s.ttl
}

// Clear drops the cached catalog and cancels any in-progress fetch.
func (s *CatalogService) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.abandonLocked()
	} else {
		s.generation++
	}
	s.models = nil
	s.fetchedAt = time.Time{}
	s.lastErr = nil
	s.logger.Debug("model catalog cleared")
}

// Catalog returns a copy of the cached models, sorted by identifier.
func (s *CatalogService) Catalog() []model.ModelRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.models)
}

// State returns a snapshot of the cache.
func (s *CatalogService) State() model.CatalogState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := model.CatalogState{
		Models:     slices.Clone(s.models),
		FetchedAt:  s.fetchedAt,
		TTL:        s.ttl,
		Refreshing: s.current != nil,
	}
	if s.lastErr != nil {
		state.LastError = s.lastErr.Error()
	}
	return state
}

// Models returns the capability subset for feature. On a custom endpoint the
// whole catalog is returned, since the classification patterns only describe
// the official provider's naming.
func (s *CatalogService) Models(ctx context.Context, feature model.Feature) []string {
	ids := model.ModelIDs(s.Catalog())
	if !s.source.IsOfficialEndpoint(ctx) {
		return ids
	}
	return capability.Filter(ids, feature)
}

func (s *CatalogService) ChatModels(ctx context.Context) []string {
	return s.Models(ctx, model.FeatureChat)
}

func (s *CatalogService) ImageModels(ctx context.Context) []string {
	return s.Models(ctx, model.FeatureImage)
}

func (s *CatalogService) SpeechModels(ctx context.Context) []string {
	return s.Models(ctx, model.FeatureSpeech)
}

func (s *CatalogService) TranscriptionModels(ctx context.Context) []string {
	return s.Models(ctx, model.FeatureTranscription)
}

// DefaultModel resolves the default model for feature: the user's override,
// else the highest-versioned model with the feature's prefix, else the first
// model in the subset, else the built-in fallback.
func (s *CatalogService) DefaultModel(ctx context.Context, feature model.Feature) string {
	if override := s.settings.String(ctx, feature.OverrideSetting()); override != "" {
		return override
	}

	rule := capability.Rules[feature]
	subset := s.Models(ctx, feature)

	if id, ok := capability.HighestVersioned(subset, rule.Prefix); ok {
		return id
	}
	if len(subset) > 0 {
		return subset[0]
	}
	return rule.Fallback
}

func (s *CatalogService) DefaultChatModel(ctx context.Context) string {
	return s.DefaultModel(ctx, model.FeatureChat)
}

func (s *CatalogService) DefaultImageModel(ctx context.Context) string {
	return s.DefaultModel(ctx, model.FeatureImage)
}

func (s *CatalogService) DefaultSpeechModel(ctx context.Context) string {
	return s.DefaultModel(ctx, model.FeatureSpeech)
}

func (s *CatalogService) DefaultTranscriptionModel(ctx context.Context) string {
	return s.DefaultModel(ctx, model.FeatureTranscription)
}

// Defaults returns the resolved default model of every feature.
func (s *CatalogService) Defaults(ctx context.Context) map[model.Feature]string {
	out := make(map[model.Feature]string, len(model.Features()))
	for _, f := range model.Features() {
		out[f] = s.DefaultModel(ctx, f)
	}
	return out
}
