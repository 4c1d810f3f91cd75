package store

import (
	"context"

	"github.com/ai-history/core/internal/core"
)

// InsertMessage persists a message row and its mirroring FTS row, per
// spec.md §4.5 step 7 ("Insert FTS row mirroring content_markdown").
func (tx *Tx) InsertMessage(ctx context.Context, m *Message) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, seq, role, content_markdown, thought_markdown, model, timestamp, token_count)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		m.ID, m.ConversationID, m.Seq, m.Role, m.ContentMarkdown, m.ThoughtMarkdown, m.Model, m.Timestamp, m.TokenCount,
	)
	if err != nil {
		return core.NewStore("insert_message", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages_fts (message_id, conversation_id, content_markdown) VALUES (?,?,?)`,
		m.ID, m.ConversationID, m.ContentMarkdown,
	)
	if err != nil {
		return core.NewStore("insert_message_fts", err)
	}
	return nil
}

// ListMessages returns a conversation's messages in seq ascending order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var messages []Message
	err := s.db.SelectContext(ctx, &messages,
		`SELECT id, conversation_id, seq, role, content_markdown, thought_markdown, model, timestamp, token_count
		 FROM messages WHERE conversation_id = ? ORDER BY seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, core.NewStore("list_messages", err)
	}
	return messages, nil
}
