package driven

import (
	"context"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
)

// ModelLister is the outbound capability the engine needs from the provider
// client: the raw list of model identifiers the endpoint advertises.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// ModelListerFactory builds a ModelLister for an endpoint and API key. It is
// invoked lazily and its result cached until the endpoint or key changes.
type ModelListerFactory func(endpoint model.EndpointConfig, apiKey string) (ModelLister, error)
