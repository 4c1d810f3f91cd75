package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ai-history/core/internal/core"
)

// Tx wraps a *sqlx.Tx with the store's transactional CRUD methods, used by
// internal/ingest to run a whole batch item as one atomic unit (spec.md
// §4.5), grounded on qzbxw-EGO's tx.Beginx()/defer-rollback-or-commit
// idiom (db_sessions.go DeleteSession).
type Tx struct {
	*sqlx.Tx
}

// BeginTx starts a transaction for the ingestion pipeline.
func (s *Store) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, core.NewStore("begin_tx", err)
	}
	return &Tx{tx}, nil
}

// FindConversationBySourceRef looks up a conversation by (source,
// source_conversation_id), used by ingestion's conflict detection
// (spec.md §4.5 step 3).
func (tx *Tx) FindConversationBySourceRef(ctx context.Context, source, sourceConversationID string) (*Conversation, error) {
	var c Conversation
	err := tx.GetContext(ctx, &c,
		`SELECT id, source, source_conversation_id, folder_id, title, summary, created_at, updated_at, fingerprint, meta_json
		 FROM conversations WHERE source = ? AND source_conversation_id = ?`,
		source, sourceConversationID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewStore("find_conversation_by_source_ref", err)
	}
	return &c, nil
}

// FindConversationByFingerprint looks up a conversation by fingerprint,
// used by ingestion's conflict detection (spec.md §4.5 step 4).
func (tx *Tx) FindConversationByFingerprint(ctx context.Context, fingerprint string) (*Conversation, error) {
	var c Conversation
	err := tx.GetContext(ctx, &c,
		`SELECT id, source, source_conversation_id, folder_id, title, summary, created_at, updated_at, fingerprint, meta_json
		 FROM conversations WHERE fingerprint = ?`,
		fingerprint,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewStore("find_conversation_by_fingerprint", err)
	}
	return &c, nil
}

// InsertConversation persists a new conversation row. folder_id defaults to
// "uncategorized" when folderID is nil, per spec.md §3.
func (tx *Tx) InsertConversation(ctx context.Context, c *Conversation) error {
	if c.FolderID == nil {
		uncategorized := reservedUncategorizedID
		c.FolderID = &uncategorized
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, source, source_conversation_id, folder_id, title, summary, created_at, updated_at, fingerprint, meta_json)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Source, c.SourceConversationID, c.FolderID, c.Title, c.Summary, c.CreatedAt, c.UpdatedAt, c.Fingerprint, c.MetaJSON,
	)
	if err != nil {
		return core.NewStore("insert_conversation", err)
	}
	return nil
}

// DeleteConversation deletes a conversation's FTS rows, messages, and
// conversation row, used by the overwrite strategy (spec.md §4.5 step 5).
func (tx *Tx) DeleteConversation(ctx context.Context, conversationID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages_fts WHERE conversation_id = ?`, conversationID); err != nil {
		return core.NewStore("delete_conversation:fts", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return core.NewStore("delete_conversation:messages", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID); err != nil {
		return core.NewStore("delete_conversation:conversation", err)
	}
	return nil
}

// GetConversation loads the bare conversation row, or nil if absent.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := s.db.GetContext(ctx, &c,
		`SELECT id, source, source_conversation_id, folder_id, title, summary, created_at, updated_at, fingerprint, meta_json
		 FROM conversations WHERE id = ?`,
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewStore("get_conversation", err)
	}
	return &c, nil
}

// ConversationIDsByUpdatedAtDesc returns every conversation id ordered by
// updated_at descending, the enumeration order internal/backup exports in.
func (s *Store) ConversationIDsByUpdatedAtDesc(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `SELECT id FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, core.NewStore("conversation_ids", err)
	}
	return ids, nil
}
