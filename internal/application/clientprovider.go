package application

import (
	"sync"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
	"github.com/ericfisherdev/modeldesk/internal/domain/port/driven"
)

// ClientProvider enables runtime hot-swap of the outbound model client.
// It holds a mutex-protected reference to the current driven.ModelLister and
// the endpoint it was built for, so credential or endpoint edits take effect
// without restarting the application.
//
// Every Clear bumps a generation counter. Install only succeeds for the
// generation the caller observed before building, which keeps a client built
// from stale settings from being installed after an invalidation.
type ClientProvider struct {
	mu         sync.RWMutex
	client     driven.ModelLister
	endpoint   model.EndpointConfig
	generation uint64
}

// NewClientProvider creates a provider holding client. client may be nil when
// no credential is available at startup.
func NewClientProvider(client driven.ModelLister, endpoint model.EndpointConfig) *ClientProvider {
	return &ClientProvider{
		client:   client,
		endpoint: endpoint,
	}
}

// Get returns the current client, or nil when none is held.
func (p *ClientProvider) Get() driven.ModelLister {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

// Endpoint returns the endpoint the current client was built for.
func (p *ClientProvider) Endpoint() model.EndpointConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoint
}

// Generation returns the current invalidation generation.
func (p *ClientProvider) Generation() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.generation
}

// Install stores client only if no Clear happened since generation was read.
// It reports whether the client was stored.
func (p *ClientProvider) Install(client driven.ModelLister, endpoint model.EndpointConfig, generation uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generation != generation {
		return false
	}
	p.client = client
	p.endpoint = endpoint
	return true
}

// Clear drops the current client and advances the generation.
func (p *ClientProvider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = nil
	p.endpoint = model.EndpointConfig{}
	p.generation++
}

