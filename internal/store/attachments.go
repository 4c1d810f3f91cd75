package store

import (
	"context"

	"github.com/ai-history/core/internal/core"
)

// InsertAttachment persists an attachment row with status defaulting to
// remote_only, per spec.md §3/§4.5.
func (tx *Tx) InsertAttachment(ctx context.Context, a *Attachment) error {
	if a.Status == "" {
		a.Status = AttachmentStatusRemoteOnly
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO attachments (id, message_id, conversation_id, kind, original_url, local_path, mime, size_bytes, sha256, status, error, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.MessageID, a.ConversationID, a.Kind, a.OriginalURL, a.LocalPath, a.MIME, a.SizeBytes, a.SHA256, a.Status, a.Error, a.CreatedAt,
	)
	if err != nil {
		return core.NewStore("insert_attachment", err)
	}
	return nil
}

// ListPersistedAttachments returns the persisted (non-virtual) attachment
// rows for a conversation, in created_at ascending order.
func (s *Store) ListPersistedAttachments(ctx context.Context, conversationID string) ([]Attachment, error) {
	var out []Attachment
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, message_id, conversation_id, kind, original_url, local_path, mime, size_bytes, sha256, status, error, created_at
		 FROM attachments WHERE conversation_id = ? ORDER BY created_at ASC`,
		conversationID,
	)
	if err != nil {
		return nil, core.NewStore("list_attachments", err)
	}
	return out, nil
}

// MessageHasNonVirtualAttachment reports whether a message has any
// persisted attachment row. Rows with an aihistory:// virtual URL that
// ingestion persisted are counted too. internal/ingest does not call it;
// it gates named-filename extraction on its own per-turn flag.
func (s *Store) MessageHasNonVirtualAttachment(ctx context.Context, messageID string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM attachments WHERE message_id = ?`, messageID)
	if err != nil {
		return false, core.NewStore("message_has_attachment", err)
	}
	return count > 0, nil
}

// PromoteAttachmentKind upgrades a row's kind (file -> image/pdf) when
// reclassification finds a better answer; it never demotes, per spec.md
// §4.1.
func (s *Store) PromoteAttachmentKind(ctx context.Context, id, newKind string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE attachments SET kind = ? WHERE id = ? AND kind = 'file'`, newKind, id)
	if err != nil {
		return core.NewStore("promote_attachment_kind", err)
	}
	return nil
}

// MarkAttachmentCached transitions a row to status=cached with its
// resolved local path, mime, size, and hash, clearing any prior error.
func (s *Store) MarkAttachmentCached(ctx context.Context, id, localPath, mime string, sizeBytes int64, sha256Hex string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE attachments SET status = ?, local_path = ?, mime = ?, size_bytes = ?, sha256 = ?, error = NULL WHERE id = ?`,
		AttachmentStatusCached, localPath, mime, sizeBytes, sha256Hex, id,
	)
	if err != nil {
		return core.NewStore("mark_attachment_cached", err)
	}
	return nil
}

// MarkAttachmentFailed transitions a row to status=failed with a truncated
// error string, per spec.md §4.6/§7/§9.
func (s *Store) MarkAttachmentFailed(ctx context.Context, id, errCode string) error {
	truncated := core.Truncate(errCode, 300)
	_, err := s.db.ExecContext(ctx, `UPDATE attachments SET status = ?, error = ? WHERE id = ?`, AttachmentStatusFailed, truncated, id)
	if err != nil {
		return core.NewStore("mark_attachment_failed", err)
	}
	return nil
}

// PendingAttachments returns rows the cache worker should attempt:
// status in {remote_only, failed}, or status=cached with a null local path
// and a data: original_url, per spec.md §4.6 step 1.
func (s *Store) PendingAttachments(ctx context.Context, conversationID string) ([]Attachment, error) {
	var out []Attachment
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, message_id, conversation_id, kind, original_url, local_path, mime, size_bytes, sha256, status, error, created_at
		 FROM attachments
		 WHERE conversation_id = ?
		   AND (
		     status IN (?, ?)
		     OR (status = ? AND local_path IS NULL AND original_url LIKE 'data:%')
		   )
		 ORDER BY created_at ASC`,
		conversationID, AttachmentStatusRemoteOnly, AttachmentStatusFailed, AttachmentStatusCached,
	)
	if err != nil {
		return nil, core.NewStore("pending_attachments", err)
	}
	return out, nil
}

// HasCacheableAttachments reports whether PendingAttachments returns any
// row for the conversation (remote_only, failed, or a cached data URL with
// no local path). Cloud-drive links are not excluded here; OpenConversation
// decides whether to schedule a cache pass with conversationNeedsCachePass,
// which does skip them.
func (s *Store) HasCacheableAttachments(ctx context.Context, conversationID string) (bool, error) {
	pending, err := s.PendingAttachments(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return len(pending) > 0, nil
}

// AttachmentBySHA256 finds an existing cached attachment sharing the given
// content hash (spec.md §8 "two attachments with identical bytes...").
// The cache worker does not call it; it dedups on disk by filename alone.
func (s *Store) AttachmentBySHA256(ctx context.Context, sha256Hex string) (*Attachment, error) {
	var out []Attachment
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, message_id, conversation_id, kind, original_url, local_path, mime, size_bytes, sha256, status, error, created_at
		 FROM attachments WHERE sha256 = ? AND status = ? LIMIT 1`,
		sha256Hex, AttachmentStatusCached,
	)
	if err != nil {
		return nil, core.NewStore("attachment_by_sha256", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}
