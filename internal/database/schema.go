package database

// Schema is the complete current schema, kept in lockstep with the
// migration files. Tests apply it directly instead of running the
// migration chain.
const Schema = `
CREATE TABLE subtenants (
    id          TEXT PRIMARY KEY,
    external_id TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    is_active   INTEGER NOT NULL DEFAULT 1,
    created_at  TIMESTAMP NOT NULL,
    updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE directories (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    path         TEXT NOT NULL UNIQUE,
    parent_id    TEXT REFERENCES directories(id),
    subtenant_id TEXT REFERENCES subtenants(id),
    is_private   INTEGER NOT NULL DEFAULT 0,
    summary      TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMP NOT NULL,
    updated_at   TIMESTAMP NOT NULL
);

CREATE INDEX idx_directories_parent ON directories(parent_id);

CREATE TABLE documents (
    id                TEXT PRIMARY KEY,
    name              TEXT NOT NULL,
    original_filename TEXT NOT NULL DEFAULT '',
    mime_type         TEXT NOT NULL DEFAULT '',
    directory_id      TEXT NOT NULL REFERENCES directories(id),
    version           INTEGER NOT NULL,
    subtenant_id      TEXT REFERENCES subtenants(id),
    is_private        INTEGER NOT NULL DEFAULT 0,
    summary           TEXT NOT NULL DEFAULT '',
    content_id        TEXT NOT NULL,
    created_at        TIMESTAMP NOT NULL,
    updated_at        TIMESTAMP NOT NULL,
    UNIQUE (directory_id, name, version)
);

CREATE INDEX idx_documents_directory ON documents(directory_id);

CREATE TABLE chunks (
    id          TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id),
    chunk_index INTEGER NOT NULL,
    title       TEXT NOT NULL DEFAULT '',
    summary     TEXT NOT NULL DEFAULT '',
    content_id  TEXT NOT NULL,
    created_at  TIMESTAMP NOT NULL,
    UNIQUE (document_id, chunk_index)
);

CREATE TABLE permission_grants (
    id            TEXT PRIMARY KEY,
    granted_by    TEXT NOT NULL REFERENCES subtenants(id),
    grantee_kind  TEXT NOT NULL,
    grantee_id    TEXT NOT NULL,
    resource_kind TEXT NOT NULL,
    resource_id   TEXT NOT NULL,
    level         TEXT NOT NULL,
    created_at    TIMESTAMP NOT NULL,
    expires_at    TIMESTAMP,
    UNIQUE (granted_by, grantee_kind, grantee_id, resource_kind, resource_id, level)
);

CREATE INDEX idx_grants_granted_by ON permission_grants(granted_by);
CREATE INDEX idx_grants_resource ON permission_grants(resource_kind, resource_id);
`
