package app

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"docvault/internal/config"
	"docvault/internal/content"
	"docvault/internal/core"
	"docvault/internal/database"
	"docvault/internal/identity"
	"docvault/internal/model"
)

// VaultApp is the application layer between the CLI and the core
// services. It constructs all dependencies from config, authenticates
// the caller once per invocation, and exposes high-level operations
// that accept raw string paths. The caller must call Close when done.
type VaultApp struct {
	cfg        *config.Config
	store      *database.SQLiteStore
	contentSt  core.ContentStore
	keychain   *content.Keychain
	identities *core.IdentityService
	tree       *core.TreeService
	ledger     *core.LedgerService
	access     *core.AccessService
	visibility *core.VisibilityService
	ingest     *core.IngestService
	caller     *core.Identity
	logFile    *os.File
}

// NewVaultApp creates a fully wired VaultApp from the given config.
// operation identifies the CLI command being run (e.g. "Upload", "Grant").
func NewVaultApp(cfg *config.Config, operation string) (*VaultApp, error) {
	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	if err := store.CheckMigrations(); err != nil {
		store.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	contentSt, err := content.NewStoreFromConfig(cfg.Content)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating content store: %w", err)
	}

	provider, err := identity.NewProviderFromConfig(cfg.Identity)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating identity provider: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z") + "-" + operation
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	log := &slogAdapter{l: logger}
	clock := core.RealClock{}
	idgen := core.UUIDGenerator{}

	identities := core.NewIdentityService(store, provider, log, clock, idgen)
	tree := core.NewTreeService(store, log, clock, idgen)
	ledger := core.NewLedgerService(store, log, clock, idgen)
	access := core.NewAccessService(store, provider, log, clock)
	visibility := core.NewVisibilityService(access)
	chunkers := core.NewChunkerRegistry()
	ingest := core.NewIngestService(tree, access, contentSt, chunkers, store, log, clock, idgen)

	return &VaultApp{
		cfg:        cfg,
		store:      store,
		contentSt:  contentSt,
		keychain:   content.NewKeychain(cfg.Content.Encryption),
		identities: identities,
		tree:       tree,
		ledger:     ledger,
		access:     access,
		visibility: visibility,
		ingest:     ingest,
		logFile:    logFile,
	}, nil
}

// Authenticate verifies the credential and binds the resulting identity
// to this app instance. Every subsequent operation runs as this caller.
func (a *VaultApp) Authenticate(credential string) error {
	id, err := a.identities.Authenticate(credential)
	if err != nil {
		return err
	}
	a.caller = id
	return nil
}

// Caller returns the authenticated identity.
func (a *VaultApp) Caller() (*core.Identity, error) {
	if a.caller == nil {
		return nil, fmt.Errorf("not authenticated: %w", core.ErrUnauthenticated)
	}
	return a.caller, nil
}

// UnlockContent decrypts the content-encryption key with the passphrase
// so reads against an encrypted content store can proceed.
func (a *VaultApp) UnlockContent(passphrase string) error {
	enc, ok := a.contentSt.(*content.EncryptedStore)
	if !ok {
		return nil
	}
	id, err := a.keychain.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking content store: %w", err)
	}
	enc.Unlock(id)
	return nil
}

// EncryptionEnabled reports whether content at rest is encrypted.
func (a *VaultApp) EncryptionEnabled() bool {
	_, ok := a.contentSt.(*content.EncryptedStore)
	return ok
}

// ResolvePath materializes the directory at the given path, creating
// any missing ancestors owned by the caller.
func (a *VaultApp) ResolvePath(rawPath string) (*model.Directory, error) {
	caller, err := a.Caller()
	if err != nil {
		return nil, err
	}
	return a.tree.ResolveOrCreatePath(core.NormalizePath(rawPath), caller.SubtenantID())
}

// ListDirectory returns the visible subdirectories and documents of the
// directory at the given path.
func (a *VaultApp) ListDirectory(rawPath string, includePrivate bool) ([]*model.Directory, []*model.Document, error) {
	caller, err := a.Caller()
	if err != nil {
		return nil, nil, err
	}

	dir, err := a.tree.GetByPath(rawPath)
	if err != nil {
		return nil, nil, err
	}

	children, err := a.tree.ListChildren(dir.ID, includePrivate)
	if err != nil {
		return nil, nil, err
	}
	children, err = a.visibility.FilterDirectories(caller, children, includePrivate)
	if err != nil {
		return nil, nil, err
	}

	docs, err := a.tree.ListDocuments(dir.ID, includePrivate)
	if err != nil {
		return nil, nil, err
	}
	docs, err = a.visibility.FilterDocuments(caller, docs, includePrivate)
	if err != nil {
		return nil, nil, err
	}

	return children, docs, nil
}

// Upload ingests a local file as a new document version under the given
// directory path.
func (a *VaultApp) Upload(rawPath, filePath string) (*model.Document, error) {
	caller, err := a.Caller()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	filename := filepath.Base(filePath)
	return a.ingest.IngestDocument(caller, rawPath, filename, mimeType(filename), f)
}

// UploadVersion ingests a local file as the next version of an existing
// document.
func (a *VaultApp) UploadVersion(documentID, filePath string) (*model.Document, error) {
	caller, err := a.Caller()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	filename := filepath.Base(filePath)
	return a.ingest.IngestDocumentVersion(caller, documentID, filename, mimeType(filename), f)
}

// History returns every visible version of the named document under the
// directory at the given path, oldest first.
func (a *VaultApp) History(rawPath, name string) ([]*model.Document, error) {
	caller, err := a.Caller()
	if err != nil {
		return nil, err
	}

	dir, err := a.tree.GetByPath(rawPath)
	if err != nil {
		return nil, err
	}

	history, err := a.tree.DocumentHistory(name, dir.ID)
	if err != nil {
		return nil, err
	}
	return a.visibility.FilterDocuments(caller, history, true)
}

// Cat streams a document's content to w.
func (a *VaultApp) Cat(documentID string, w io.Writer) error {
	caller, err := a.Caller()
	if err != nil {
		return err
	}
	return a.ingest.ReadContent(caller, documentID, w)
}

// Grant records a permission grant issued by the caller.
func (a *VaultApp) Grant(granteeKind model.GranteeKind, granteeID string, resourceKind model.ResourceKind, resourceID string, level model.Level, expiresAt *time.Time) (*model.Grant, error) {
	caller, err := a.Caller()
	if err != nil {
		return nil, err
	}
	return a.ledger.Grant(caller, granteeKind, granteeID, resourceKind, resourceID, level, expiresAt)
}

// Revoke removes a grant the caller issued.
func (a *VaultApp) Revoke(grantID string) error {
	caller, err := a.Caller()
	if err != nil {
		return err
	}
	return a.ledger.Revoke(caller, grantID)
}

// ListGrants returns the grants the caller has issued, optionally
// scoped to one resource.
func (a *VaultApp) ListGrants(resourceKind model.ResourceKind, resourceID string) ([]*model.Grant, error) {
	caller, err := a.Caller()
	if err != nil {
		return nil, err
	}
	return a.ledger.ListGrantedBy(caller, resourceKind, resourceID)
}

// UpdateSubtenant changes the caller's own subtenant profile.
func (a *VaultApp) UpdateSubtenant(name, description string) (*model.Subtenant, error) {
	caller, err := a.Caller()
	if err != nil {
		return nil, err
	}
	return a.identities.Update(caller, name, description)
}

// DeactivateSubtenant soft-deletes the caller's own subtenant.
func (a *VaultApp) DeactivateSubtenant(subtenantID string) error {
	caller, err := a.Caller()
	if err != nil {
		return err
	}
	return a.identities.Deactivate(caller, subtenantID)
}

// MigrateUp applies pending database migrations.
func (a *VaultApp) MigrateUp() error {
	return a.store.MigrateUp()
}

// ValidateSetup checks that the content store backend is reachable.
func (a *VaultApp) ValidateSetup() error {
	return a.contentSt.ValidateSetup()
}

// Close releases all resources.
func (a *VaultApp) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// mimeType guesses a content type from the filename extension.
func mimeType(filename string) string {
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		return t
	}
	return "application/octet-stream"
}
