package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ai-history/core/internal/core"
)

// FindOrCreateTag looks up a tag by name, creating it if absent, grounded
// on the teacher's textfs.Store upsert idiom (select, fall through to
// insert on ErrNoRows).
func (s *Store) FindOrCreateTag(ctx context.Context, name string) (*Tag, error) {
	var t Tag
	err := s.db.GetContext(ctx, &t, `SELECT id, name FROM tags WHERE name = ?`, name)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewStore("find_tag", err)
	}
	t = Tag{ID: newID(), Name: name}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO tags (id, name) VALUES (?,?)`, t.ID, t.Name); err != nil {
		return nil, core.NewStore("create_tag", err)
	}
	return &t, nil
}

// TagConversation associates a tag with a conversation, ignoring the
// conflict if the pair already exists.
func (s *Store) TagConversation(ctx context.Context, conversationID, tagID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversation_tags (conversation_id, tag_id) VALUES (?,?)`,
		conversationID, tagID,
	)
	if err != nil {
		return core.NewStore("tag_conversation", err)
	}
	return nil
}

// UntagConversation removes a tag association.
func (s *Store) UntagConversation(ctx context.Context, conversationID, tagID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_tags WHERE conversation_id = ? AND tag_id = ?`,
		conversationID, tagID,
	)
	if err != nil {
		return core.NewStore("untag_conversation", err)
	}
	return nil
}

// ListConversationTags returns a conversation's tags in alphabetical order.
func (s *Store) ListConversationTags(ctx context.Context, conversationID string) ([]Tag, error) {
	var tags []Tag
	err := s.db.SelectContext(ctx, &tags,
		`SELECT t.id, t.name FROM tags t
		 JOIN conversation_tags ct ON ct.tag_id = t.id
		 WHERE ct.conversation_id = ?
		 ORDER BY t.name ASC`,
		conversationID,
	)
	if err != nil {
		return nil, core.NewStore("list_conversation_tags", err)
	}
	return tags, nil
}

// ListAllTags returns every known tag in alphabetical order.
func (s *Store) ListAllTags(ctx context.Context) ([]Tag, error) {
	var tags []Tag
	err := s.db.SelectContext(ctx, &tags, `SELECT id, name FROM tags ORDER BY name ASC`)
	if err != nil {
		return nil, core.NewStore("list_all_tags", err)
	}
	return tags, nil
}
