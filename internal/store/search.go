package store

import (
	"context"
	"sort"
	"strings"

	"github.com/ai-history/core/internal/core"
)

// SearchResult is one row of search_conversations output, per spec.md
// §4.10: an FTS snippet match or a synthetic title match.
type SearchResult struct {
	ConversationID string `db:"conversation_id"`
	Title          string `db:"title"`
	Snippet        string `db:"snippet"`
	UpdatedAt      string `db:"updated_at"`
	MessageCount   int64  `db:"message_count"`
}

// SearchConversations implements spec.md §4.10: an FTS5 phrase query merged
// with a title LIKE fallback, sorted by conversation updated_at descending.
func (s *Store) SearchConversations(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}, nil
	}

	phrase := `"` + strings.NewReplacer(`"`, " ", `'`, " ").Replace(query) + `"`

	var ftsRows []SearchResult
	err := s.db.SelectContext(ctx, &ftsRows,
		`SELECT c.id AS conversation_id, c.title AS title,
		        snippet(messages_fts, 2, '[', ']', '…', 12) AS snippet,
		        c.updated_at AS updated_at,
		        (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count
		 FROM messages_fts
		 JOIN conversations c ON c.id = messages_fts.conversation_id
		 WHERE messages_fts MATCH ?
		 LIMIT 100`,
		phrase,
	)
	if err != nil {
		return nil, core.NewStore("search_fts", err)
	}

	seen := make(map[string]bool, len(ftsRows))
	for _, r := range ftsRows {
		seen[r.ConversationID] = true
	}

	var titleRows []struct {
		ConversationID string `db:"id"`
		Title          string `db:"title"`
		UpdatedAt      string `db:"updated_at"`
		MessageCount   int64  `db:"message_count"`
	}
	err = s.db.SelectContext(ctx, &titleRows,
		`SELECT c.id AS id, c.title AS title, c.updated_at AS updated_at,
		        (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count
		 FROM conversations c WHERE c.title LIKE ? LIMIT 50`,
		"%"+query+"%",
	)
	if err != nil {
		return nil, core.NewStore("search_title", err)
	}

	merged := ftsRows
	for _, t := range titleRows {
		if seen[t.ConversationID] {
			continue
		}
		merged = append(merged, SearchResult{
			ConversationID: t.ConversationID,
			Title:          t.Title,
			Snippet:        t.Title,
			UpdatedAt:      t.UpdatedAt,
			MessageCount:   t.MessageCount,
		})
		seen[t.ConversationID] = true
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].UpdatedAt > merged[j].UpdatedAt })
	if len(merged) > 100 {
		merged = merged[:100]
	}
	return merged, nil
}
