package model

import "time"

// Level is a permission level attached to a grant.
type Level string

const (
	LevelRead   Level = "read"
	LevelWrite  Level = "write"
	LevelDelete Level = "delete"
)

// Levels lists every permission level, in the order CanAccess probes them.
var Levels = []Level{LevelRead, LevelWrite, LevelDelete}

// Valid reports whether l is a known permission level.
func (l Level) Valid() bool {
	return l == LevelRead || l == LevelWrite || l == LevelDelete
}

// ResourceKind identifies which table a resource id points into.
type ResourceKind string

const (
	KindDirectory ResourceKind = "directory"
	KindDocument  ResourceKind = "document"
)

// Valid reports whether k is a known resource kind.
func (k ResourceKind) Valid() bool {
	return k == KindDirectory || k == KindDocument
}

// GranteeKind identifies who receives a grant: a single subtenant or an
// externally managed group.
type GranteeKind string

const (
	GranteeSubtenant GranteeKind = "subtenant"
	GranteeGroup     GranteeKind = "group"
)

// Valid reports whether k is a known grantee kind.
func (k GranteeKind) Valid() bool {
	return k == GranteeSubtenant || k == GranteeGroup
}

// Subtenant is the unit of ownership and sharing, mapped 1:1 to an
// externally verified principal. Subtenants are never hard-deleted, only
// deactivated; deactivation does not touch owned resources or grants.
type Subtenant struct {
	ID          string // UUID
	ExternalID  string // Principal id from the identity provider, unique
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Directory is a node in the path-addressed resource tree.
// Path is globally unique and immutable after creation: for a non-root
// node it equals parent path + "/" + name; the root is "/" with no parent.
type Directory struct {
	ID          string // UUID
	Name        string
	Path        string
	ParentID    string // empty only for the root
	SubtenantID string // owning subtenant; empty means public/system
	IsPrivate   bool
	Summary     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Document is a leaf resource attached to a directory, versioned by name.
// Versions for a (name, directory) pair are dense and start at 1; the
// current version is the row with the maximum version. ContentID is an
// opaque reference into the content store, never interpreted here.
type Document struct {
	ID               string // UUID
	Name             string
	OriginalFilename string
	MimeType         string
	DirectoryID      string
	Version          int64  // >= 1
	SubtenantID      string // owning subtenant; empty means public/system
	IsPrivate        bool
	Summary          string
	ContentID        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Chunk is a text span extracted from one document version.
type Chunk struct {
	ID         string // UUID
	DocumentID string
	ChunkIndex int64
	Title      string
	Summary    string
	ContentID  string
	CreatedAt  time.Time
}

// Grant is one row of the permission ledger: a time-bounded capability
// handed out by a resource owner. The six-tuple (GrantedBy, GranteeKind,
// GranteeID, ResourceKind, ResourceID, Level) is unique; duplicates are
// rejected, not merged. An expired grant is inert but stays in the ledger
// until the granter revokes it.
type Grant struct {
	ID           string // UUID
	GrantedBy    string // granting subtenant id
	GranteeKind  GranteeKind
	GranteeID    string
	ResourceKind ResourceKind
	ResourceID   string
	Level        Level
	CreatedAt    time.Time
	ExpiresAt    *time.Time // nil means no expiry
}

// Active reports whether the grant contributes to access decisions at
// the given instant.
func (g *Grant) Active(now time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// Resource is the common surface the visibility filter needs from
// directories and documents.
type Resource interface {
	ResourceID() string
	Kind() ResourceKind
	OwnerID() string
	Private() bool
}

func (d *Directory) ResourceID() string { return d.ID }
func (d *Directory) Kind() ResourceKind { return KindDirectory }
func (d *Directory) OwnerID() string    { return d.SubtenantID }
func (d *Directory) Private() bool      { return d.IsPrivate }

func (d *Document) ResourceID() string { return d.ID }
func (d *Document) Kind() ResourceKind { return KindDocument }
func (d *Document) OwnerID() string    { return d.SubtenantID }
func (d *Document) Private() bool      { return d.IsPrivate }

var (
	_ Resource = (*Directory)(nil)
	_ Resource = (*Document)(nil)
)
