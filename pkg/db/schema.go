package db

// Schema version for migration tracking
const SchemaVersion = "1.0.0"

// DDL statements for database initialization
const (
	// Meta table stores configuration and version info
	CreateMetaTable = `
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

	// Nodes table: label is a JSON array of label strings, properties a
	// JSON object
	CreateNodesTable = `
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    label JSON NOT NULL DEFAULT '[]',
    properties JSON NOT NULL DEFAULT '{}'
);`

	// Edges table: one row per relationship
	CreateEdgesTable = `
CREATE TABLE IF NOT EXISTS edges (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    properties JSON NOT NULL DEFAULT '{}',
    FOREIGN KEY(source_id) REFERENCES nodes(id) ON DELETE CASCADE,
    FOREIGN KEY(target_id) REFERENCES nodes(id) ON DELETE CASCADE
);`

	// Index for expanding edges from a source node
	CreateEdgesSourceIndex = `
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);`

	// Index for expanding edges into a target node
	CreateEdgesTargetIndex = `
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);`

	// Index for filtering by relationship type
	CreateEdgesTypeIndex = `
CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(type);`

	// Enable WAL mode for concurrent reads/writes
	EnableWALMode = `PRAGMA journal_mode=WAL;`

	// Set reasonable WAL checkpoint parameters
	SetWALCheckpoint = `PRAGMA wal_autocheckpoint=1000;`

	// Enable foreign key constraints
	EnableForeignKeys = `PRAGMA foreign_keys=ON;`
)

// MetaKeys are standard keys stored in the meta table
const (
	MetaKeySchemaVersion = "schema_version"
	MetaKeyCreatedAt     = "created_at"
)
