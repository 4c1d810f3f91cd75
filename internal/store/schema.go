package store

import "strings"

// schema is applied at construction by migrate(). CREATE TABLE/INDEX IF NOT
// EXISTS statements make it safe to re-run against an existing database,
// mirroring the teacher's idempotent-migration stance (spec.md §4.4/§9).
const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS folders (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	parent_id TEXT REFERENCES folders(id),
	sort_order INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	source_conversation_id TEXT,
	folder_id TEXT REFERENCES folders(id),
	title TEXT NOT NULL,
	summary TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	fingerprint TEXT NOT NULL UNIQUE,
	meta_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at);
CREATE INDEX IF NOT EXISTS idx_conversations_source_ref ON conversations(source, source_conversation_id);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	content_markdown TEXT NOT NULL,
	thought_markdown TEXT,
	model TEXT,
	timestamp TEXT,
	token_count INTEGER
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq ON messages(conversation_id, seq);

CREATE TABLE IF NOT EXISTS tags (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS conversation_tags (
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (conversation_id, tag_id)
);

CREATE TABLE IF NOT EXISTS imports (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	imported_count INTEGER NOT NULL,
	skipped_count INTEGER NOT NULL,
	conflict_count INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS attachments (
	id TEXT PRIMARY KEY,
	message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	original_url TEXT NOT NULL,
	local_path TEXT,
	mime TEXT,
	size_bytes INTEGER,
	sha256 TEXT,
	status TEXT NOT NULL,
	error TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id);
CREATE INDEX IF NOT EXISTS idx_attachments_conversation ON attachments(conversation_id);
CREATE INDEX IF NOT EXISTS idx_attachments_sha256 ON attachments(sha256);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	message_id UNINDEXED,
	conversation_id UNINDEXED,
	content_markdown
);

CREATE TABLE IF NOT EXISTS source_profiles (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	data_json TEXT
);
`

const reservedUncategorizedID = "uncategorized"

// migrate creates the schema (idempotently) and backfills
// messages.thought_markdown for legacy databases that predate it.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	// Additive column backfill: tolerate "duplicate column" from a database
	// that already has thought_markdown, per spec.md §7/§9.
	_, err := s.db.Exec(`ALTER TABLE messages ADD COLUMN thought_markdown TEXT`)
	if err != nil && !isDuplicateColumnError(err) {
		return err
	}
	return s.ensureUncategorizedFolder()
}

func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
}

func (s *Store) ensureUncategorizedFolder() error {
	now := NowISO()
	_, err := s.db.Exec(
		`INSERT INTO folders (id, name, parent_id, sort_order, created_at, updated_at)
		 VALUES (?, ?, NULL, 0, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		reservedUncategorizedID, "Uncategorized", now, now,
	)
	return err
}
