// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"errors"
)

// ErrEncryptionKeyNotSet is returned by SecretStore operations on the local
// tier when MODELDESK_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set MODELDESK_SECRET_KEY")

// ErrSecretNotFound is returned by SecretStore.Get when the tier holds no
// value for the account.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore is one durability tier for the provider credential. Both the
// synced (OS keychain) and local (encrypted SQLite) tiers implement it; the
// application layer owns the fallback policy between them.
type SecretStore interface {
	// Get returns the plaintext secret for account, or ErrSecretNotFound.
	Get(ctx context.Context, account string) (string, error)

	// Set stores or replaces the secret for account.
	Set(ctx context.Context, account, plaintext string) error

	// Delete removes the secret for account. Deleting a missing secret is not
	// an error.
	Delete(ctx context.Context, account string) error
}
