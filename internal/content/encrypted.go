package content

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"docvault/internal/config"
	"docvault/internal/core"
)

// Keychain manages the age X25519 key pair used for at-rest content
// encryption. The recipient (public key) is stored in plaintext; the
// identity (private key) is encrypted with the user's passphrase using
// age's scrypt-based passphrase encryption.
type Keychain struct {
	recipientPath string
	identityPath  string
}

// NewKeychain creates a Keychain from configuration.
func NewKeychain(cfg config.EncryptionConfig) *Keychain {
	return &Keychain{
		recipientPath: cfg.RecipientPath,
		identityPath:  cfg.IdentityPath,
	}
}

// Setup generates a new X25519 key pair, stores the recipient in
// plaintext, and encrypts the identity with the passphrase.
func (k *Keychain) Setup(passphrase string) error {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	for _, p := range []string{k.recipientPath, k.identityPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			return fmt.Errorf("creating key directory: %w", err)
		}
	}

	if err := os.WriteFile(k.recipientPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing recipient: %w", err)
	}

	keyFile, err := os.OpenFile(k.identityPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}
	defer keyFile.Close()

	scrypt, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	w, err := age.Encrypt(keyFile, scrypt)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return fmt.Errorf("writing encrypted identity: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted identity: %w", err)
	}

	return nil
}

// Recipient loads the public key used for encrypting blobs.
func (k *Keychain) Recipient() (age.Recipient, error) {
	data, err := os.ReadFile(k.recipientPath)
	if err != nil {
		return nil, fmt.Errorf("reading recipient: %w", err)
	}

	recipients, err := age.ParseRecipients(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing recipient: %w", err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients found in %s", k.recipientPath)
	}
	return recipients[0], nil
}

// Unlock decrypts the identity file with the passphrase and returns the
// identity for the session. The unlocked key is held in memory only.
func (k *Keychain) Unlock(passphrase string) (age.Identity, error) {
	data, err := os.ReadFile(k.identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}

	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	dec, err := age.Decrypt(bytes.NewReader(data), scrypt)
	if err != nil {
		return nil, fmt.Errorf("decrypting identity: %w", err)
	}

	keyData, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted identity: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(keyData))
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in identity file")
	}
	return identities[0], nil
}

// IsConfigured returns true if both key files exist.
func (k *Keychain) IsConfigured() bool {
	if _, err := os.Stat(k.recipientPath); err != nil {
		return false
	}
	if _, err := os.Stat(k.identityPath); err != nil {
		return false
	}
	return true
}

// EncryptedStore wraps another content store with age encryption. Puts
// need only the recipient; Gets require the store to be unlocked with
// the identity first.
//
// The content id stays the checksum of the plaintext, so deduplication
// and references are unaffected by the encryption layer.
type EncryptedStore struct {
	inner     core.ContentStore
	recipient age.Recipient
	identity  age.Identity // nil until Unlock
}

// NewEncryptedStore wraps inner with encryption toward the given
// recipient.
func NewEncryptedStore(inner core.ContentStore, recipient age.Recipient) *EncryptedStore {
	return &EncryptedStore{inner: inner, recipient: recipient}
}

// Unlock equips the store for decryption.
func (s *EncryptedStore) Unlock(identity age.Identity) {
	s.identity = identity
}

// Put encrypts the payload and stores the ciphertext in the inner store
// under the plaintext checksum.
func (s *EncryptedStore) Put(checksum string, r io.Reader, size int64) error {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}

	written, err := io.Copy(w, r)
	if err != nil {
		return fmt.Errorf("encrypting content: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	return s.inner.Put(checksum, &buf, int64(buf.Len()))
}

// Get retrieves the ciphertext from the inner store, decrypts it and
// writes the plaintext to w.
func (s *EncryptedStore) Get(checksum string, w io.Writer) error {
	if s.identity == nil {
		return fmt.Errorf("content store is locked: unlock with passphrase first")
	}

	var buf bytes.Buffer
	if err := s.inner.Get(checksum, &buf); err != nil {
		return err
	}

	dec, err := age.Decrypt(&buf, s.identity)
	if err != nil {
		return fmt.Errorf("decrypting content: %w", err)
	}
	if _, err := io.Copy(w, dec); err != nil {
		return fmt.Errorf("writing decrypted content: %w", err)
	}
	return nil
}

// ValidateSetup delegates to the inner store.
func (s *EncryptedStore) ValidateSetup() error {
	return s.inner.ValidateSetup()
}

// Compile-time check that EncryptedStore implements core.ContentStore
var _ core.ContentStore = (*EncryptedStore)(nil)
