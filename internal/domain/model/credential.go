package model

import "time"

// CredentialTier names the storage tier that holds a credential. The synced
// tier is shared across the user's devices; the local tier never leaves the host.
type CredentialTier string

const (
	CredentialTierSynced CredentialTier = "synced"
	CredentialTierLocal  CredentialTier = "local"
	CredentialTierNone   CredentialTier = ""
)

// Credential is the provider API key for one logical account along with the
// tier that served it. Value is empty when no tier holds a credential.
type Credential struct {
	Account   string
	Value     string
	Tier      CredentialTier
	UpdatedAt time.Time
}

// IsSet reports whether any tier returned a value.
func (c Credential) IsSet() bool {
	return c.Value != ""
}

// Masked returns the value with everything but the last four characters hidden.
func (c Credential) Masked() string {
	if len(c.Value) <= 4 {
		if c.Value == "" {
			return ""
		}
		return "****"
	}
	return "****" + c.Value[len(c.Value)-4:]
}
