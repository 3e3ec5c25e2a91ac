package driven

import (
	"context"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
)

// SettingsStore is a flat key/value backend for settings. Values are stored
// as strings; typing is the application layer's concern.
type SettingsStore interface {
	// Get returns the stored value and true, or ("", false, nil) when the key
	// is absent.
	Get(ctx context.Context, key model.SettingKey) (string, bool, error)
	Set(ctx context.Context, key model.SettingKey, value string) error
	Remove(ctx context.Context, key model.SettingKey) error
}

// RemoteSettingsStore is a SettingsStore whose contents are shared with other
// processes and devices. It reports changes made elsewhere.
type RemoteSettingsStore interface {
	SettingsStore

	// Synchronize flushes pending writes and confirms the backend is reachable.
	Synchronize(ctx context.Context) error

	// Subscribe streams external changes until ctx is canceled, after which
	// the channel is closed.
	Subscribe(ctx context.Context) (<-chan model.RemoteChange, error)
}
