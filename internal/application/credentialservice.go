package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
	"github.com/ericfisherdev/modeldesk/internal/domain/port/driven"
)

// credentialDescriber is implemented by tiers that can report metadata about
// the stored secret.
type credentialDescriber interface {
	Describe(ctx context.Context, account string) (model.Credential, error)
}

// CredentialService stores the provider API key across the synced and local
// tiers. Writes prefer the synced tier and fall back to local; reads prefer
// synced and fall back to local. Storage errors are logged and never returned.
type CredentialService struct {
	synced  driven.SecretStore
	local   driven.SecretStore
	account string
	logger  *slog.Logger
}

// NewCredentialService creates a CredentialService for one logical account.
func NewCredentialService(synced, local driven.SecretStore, account string, logger *slog.Logger) *CredentialService {
	return &CredentialService{
		synced:  synced,
		local:   local,
		account: account,
		logger:  logger,
	}
}

// Account returns the logical account the service manages.
func (s *CredentialService) Account() string {
	return s.account
}

// Set replaces the stored credential. Both tiers are cleared first; an empty
// value leaves them cleared. It returns the tier that accepted the write, or
// model.CredentialTierNone when nothing was written.
func (s *CredentialService) Set(ctx context.Context, value string) model.CredentialTier {
	if err := s.synced.Delete(ctx, s.account); err != nil {
		s.logger.Warn("delete synced credential failed", "account", s.account, "error", err)
	}
	if err := s.local.Delete(ctx, s.account); err != nil {
		s.logger.Warn("delete local credential failed", "account", s.account, "error", err)
	}

	if value == "" {
		s.logger.Info("credential cleared", "account", s.account)
		return model.CredentialTierNone
	}

	err := s.synced.Set(ctx, s.account, value)
	if err == nil {
		s.logger.Info("credential stored", "account", s.account, "tier", model.CredentialTierSynced)
		return model.CredentialTierSynced
	}
	s.logger.Warn("synced credential write failed, falling back to local", "account", s.account, "error", err)

	if err := s.local.Set(ctx, s.account, value); err != nil {
		s.logger.Error("local credential write failed", "account", s.account, "error", err)
		return model.CredentialTierNone
	}

	s.logger.Info("credential stored", "account", s.account, "tier", model.CredentialTierLocal)
	return model.CredentialTierLocal
}

// Delete removes the credential from both tiers.
func (s *CredentialService) Delete(ctx context.Context) {
	s.Set(ctx, "")
}

// Get returns the effective credential. The second return is false when
// neither tier holds a value.
func (s *CredentialService) Get(ctx context.Context) (string, bool) {
	cred := s.Status(ctx)
	return cred.Value, cred.IsSet()
}

// Status returns the effective credential along with the tier that served it.
func (s *CredentialService) Status(ctx context.Context) model.Credential {
	if cred, ok := s.read(ctx, s.synced, model.CredentialTierSynced); ok {
		return cred
	}
	if cred, ok := s.read(ctx, s.local, model.CredentialTierLocal); ok {
		return cred
	}
	return model.Credential{Account: s.account}
}

func (s *CredentialService) read(ctx context.Context, store driven.SecretStore, tier model.CredentialTier) (model.Credential, bool) {
	if d, ok := store.(credentialDescriber); ok {
		cred, err := d.Describe(ctx, s.account)
		if err == nil && cred.Value != "" {
			cred.Tier = tier
			return cred, true
		}
		s.logMiss(tier, err)
		return model.Credential{}, false
	}

	value, err := store.Get(ctx, s.account)
	if err == nil && value != "" {
		return model.Credential{Account: s.account, Value: value, Tier: tier}, true
	}
	s.logMiss(tier, err)
	return model.Credential{}, false
}

func (s *CredentialService) logMiss(tier model.CredentialTier, err error) {
	if err == nil || errors.Is(err, driven.ErrSecretNotFound) {
		return
	}
	s.logger.Debug("credential read failed", "account", s.account, "tier", tier, "error", err)
}
