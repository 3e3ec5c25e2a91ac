package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
	"github.com/ericfisherdev/modeldesk/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SecretStore = (*CredentialRepo)(nil)

// CredentialRepo is the local, device-only credential tier. Values are
// encrypted with AES-256-GCM before write and decrypted after read.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable the tier (all operations will return driven.ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key}
}

// Set stores or replaces the credential for the given account.
func (r *CredentialRepo) Set(ctx context.Context, account, plaintext string) error {
	encrypted, err := r.encrypt(plaintext)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO credentials (account, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(account) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.Writer.ExecContext(ctx, query, account, encrypted); err != nil {
		return fmt.Errorf("set credential %q: %w", account, err)
	}
	return nil
}

// Get retrieves the plaintext credential for the given account.
// Returns driven.ErrSecretNotFound if no credential exists.
func (r *CredentialRepo) Get(ctx context.Context, account string) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT value FROM credentials WHERE account = ?`
	var encrypted string
	err := r.db.Reader.QueryRowContext(ctx, query, account).Scan(&encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return "", driven.ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get credential %q: %w", account, err)
	}

	plaintext, err := r.decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("decrypt credential %q: %w", account, err)
	}
	return plaintext, nil
}

// Describe returns the stored credential with its last update time.
// Returns driven.ErrSecretNotFound if no credential exists.
func (r *CredentialRepo) Describe(ctx context.Context, account string) (model.Credential, error) {
	if r.key == nil {
		return model.Credential{}, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT account, value, updated_at FROM credentials WHERE account = ?`
	var (
		cred      model.Credential
		encrypted string
		updatedAt string
	)
	err := r.db.Reader.QueryRowContext(ctx, query, account).Scan(&cred.Account, &encrypted, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credential{}, driven.ErrSecretNotFound
	}
	if err != nil {
		return model.Credential{}, fmt.Errorf("describe credential %q: %w", account, err)
	}

	if cred.Value, err = r.decrypt(encrypted); err != nil {
		return model.Credential{}, fmt.Errorf("decrypt credential %q: %w", account, err)
	}
	if cred.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Credential{}, fmt.Errorf("parse updated_at for credential %q: %w", account, err)
	}
	cred.Tier = model.CredentialTierLocal
	return cred, nil
}

// Delete removes the credential for the given account.
func (r *CredentialRepo) Delete(ctx context.Context, account string) error {
	const query = `DELETE FROM credentials WHERE account = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, account); err != nil {
		return fmt.Errorf("delete credential %q: %w", account, err)
	}
	return nil
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded string
// containing the nonce (12 bytes) prepended to the ciphertext.
func (r *CredentialRepo) encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	gcm, err := newGCM(r.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *CredentialRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := newGCM(r.key)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
