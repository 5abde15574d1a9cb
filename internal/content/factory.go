package content

import (
	"fmt"

	"docvault/internal/config"
	"docvault/internal/core"
)

// NewStoreFromConfig creates a ContentStore based on the content config
// type. When encryption is enabled the backend is wrapped in an
// EncryptedStore; the caller unlocks it for reads via the Keychain.
func NewStoreFromConfig(cfg config.ContentConfig) (core.ContentStore, error) {
	var store core.ContentStore
	var err error

	switch cfg.Type {
	case "memory":
		store = NewMemoryStore()
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem content store requires root to be set")
		}
		store, err = NewFileSystemStore(cfg.Root)
		if err != nil {
			return nil, err
		}
	case "s3":
		store, err = NewS3Store(cfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown content store type: %s", cfg.Type)
	}

	if cfg.Encryption.Enabled {
		kc := NewKeychain(cfg.Encryption)
		recipient, err := kc.Recipient()
		if err != nil {
			return nil, fmt.Errorf("loading encryption recipient: %w", err)
		}
		store = NewEncryptedStore(store, recipient)
	}

	return store, nil
}
