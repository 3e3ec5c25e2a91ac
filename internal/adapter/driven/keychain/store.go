// Package keychain implements the synced credential tier on top of the
// operating system's secret service (macOS Keychain, Windows Credential
// Manager, Secret Service over D-Bus).
package keychain

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/ericfisherdev/modeldesk/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SecretStore = (*Store)(nil)

// Store keeps one secret per account under a fixed service name.
type Store struct {
	service string
}

// NewStore creates a Store that files secrets under service.
func NewStore(service string) *Store {
	return &Store{service: service}
}

// Get returns the secret for account, or driven.ErrSecretNotFound.
func (s *Store) Get(ctx context.Context, account string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	secret, err := keyring.Get(s.service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", driven.ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keyring get %s/%s: %w", s.service, account, err)
	}
	return secret, nil
}

// Set stores or replaces the secret for account.
func (s *Store) Set(ctx context.Context, account, plaintext string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := keyring.Set(s.service, account, plaintext); err != nil {
		return fmt.Errorf("keyring set %s/%s: %w", s.service, account, err)
	}
	return nil
}

// Delete removes the secret for account. A missing secret is not an error.
func (s *Store) Delete(ctx context.Context, account string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := keyring.Delete(s.service, account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %s/%s: %w", s.service, account, err)
	}
	return nil
}
