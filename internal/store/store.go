// Package store implements the schema, migrations, and CRUD surface over
// folders/conversations/messages/attachments/tags/imports/FTS described in
// spec.md §3/§4.4/§6, grounded on qzbxw-EGO's sqlx-based database package
// (transaction idiom, struct-scanning queries) adapted from Postgres to
// SQLite, and the teacher's textfs.Store upsert idiom.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/ai-history/core/internal/core"
)

// Store owns the SQLite database file plus the assets/ and backups/
// sibling directories (those two are created lazily by internal/cache and
// internal/backup respectively, per spec.md §3's ownership rule).
type Store struct {
	db            *sqlx.DB
	log           zerolog.Logger
	scheduleCache ScheduleCachePass
}

// Open opens the SQLite database at dbPath and runs migrate().
func Open(dbPath string, log zerolog.Logger) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, core.NewStore("open", err)
	}
	db.SetMaxOpenConns(1) // SQLite serializes writers; avoid SQLITE_BUSY churn.
	s := &Store{db: db, log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, core.NewStore("migrate", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func newID() string {
	return uuid.NewString()
}

// --- Folders ---

func (s *Store) ListFolders(ctx context.Context) ([]Folder, error) {
	var folders []Folder
	err := s.db.SelectContext(ctx, &folders, `SELECT id, name, parent_id, sort_order, created_at, updated_at FROM folders ORDER BY sort_order ASC`)
	if err != nil {
		return nil, core.NewStore("list_folders", err)
	}
	return folders, nil
}

func (s *Store) CreateFolder(ctx context.Context, name string, parentID *string) (*Folder, error) {
	var maxSort int
	err := s.db.GetContext(ctx, &maxSort, `SELECT COALESCE(MAX(sort_order), -1) FROM folders WHERE parent_id IS ?`, parentID)
	if err != nil {
		return nil, core.NewStore("create_folder:max_sort", err)
	}
	now := NowISO()
	f := &Folder{
		ID:        newID(),
		Name:      name,
		ParentID:  parentID,
		SortOrder: maxSort + 1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO folders (id, name, parent_id, sort_order, created_at, updated_at) VALUES (?,?,?,?,?,?)`,
		f.ID, f.Name, f.ParentID, f.SortOrder, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return nil, core.NewStore("create_folder:insert", err)
	}
	return f, nil
}

// MoveFolder moves a folder under a new parent, rejecting the reserved
// "uncategorized" id and rejecting moves that would introduce a cycle
// (Open Question 1 in spec.md §9, resolved in DESIGN.md).
func (s *Store) MoveFolder(ctx context.Context, id string, parentID *string) error {
	if id == reservedUncategorizedID {
		return core.NewInput("reserved_folder", "the uncategorized folder cannot be moved")
	}
	if parentID != nil {
		if *parentID == id {
			return core.NewInput("folder_cycle", "a folder cannot be its own parent")
		}
		ancestor := parentID
		for ancestor != nil {
			if *ancestor == id {
				return core.NewInput("folder_cycle", "move would create a folder cycle")
			}
			var next *string
			err := s.db.GetContext(ctx, &next, `SELECT parent_id FROM folders WHERE id = ?`, *ancestor)
			if err != nil {
				break
			}
			ancestor = next
		}
	}
	_, err := s.db.ExecContext(ctx, `UPDATE folders SET parent_id = ?, updated_at = ? WHERE id = ?`, parentID, NowISO(), id)
	if err != nil {
		return core.NewStore("move_folder", err)
	}
	return nil
}

// DeleteFolder deletes a folder, reparenting its children to NULL and
// reassigning its conversations to "uncategorized" in a single transaction.
func (s *Store) DeleteFolder(ctx context.Context, id string) error {
	if id == reservedUncategorizedID {
		return core.NewInput("reserved_folder", "the uncategorized folder cannot be deleted")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.NewStore("delete_folder:begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE folders SET parent_id = NULL WHERE parent_id = ?`, id); err != nil {
		return core.NewStore("delete_folder:reparent_children", err)
	}
	now := NowISO()
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET folder_id = ?, updated_at = ? WHERE folder_id = ?`,
		reservedUncategorizedID, now, id,
	); err != nil {
		return core.NewStore("delete_folder:reassign_conversations", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id); err != nil {
		return core.NewStore("delete_folder:delete", err)
	}
	if err := tx.Commit(); err != nil {
		return core.NewStore("delete_folder:commit", err)
	}
	return nil
}

// MoveConversation assigns a conversation to a folder; a nil folderID maps
// to the reserved "uncategorized" folder.
func (s *Store) MoveConversation(ctx context.Context, id string, folderID *string) error {
	target := reservedUncategorizedID
	if folderID != nil && *folderID != "" {
		target = *folderID
	}
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET folder_id = ?, updated_at = ? WHERE id = ?`, target, NowISO(), id)
	if err != nil {
		return core.NewStore("move_conversation", err)
	}
	return nil
}

// ListConversations filters by folder_id (with "uncategorized" matching
// NULL folder_id) and by source ("all" means no filter, per spec.md §9
// Open Question 2).
func (s *Store) ListConversations(ctx context.Context, folderID, source *string) ([]ConversationSummary, error) {
	query := `SELECT c.id AS id, c.source AS source, c.folder_id AS folder_id, c.title AS title,
		c.summary AS summary, c.created_at AS created_at, c.updated_at AS updated_at,
		COUNT(m.id) AS message_count
		FROM conversations c LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE 1=1`
	var args []any
	if folderID != nil {
		if *folderID == reservedUncategorizedID {
			query += ` AND (c.folder_id = ? OR c.folder_id IS NULL)`
			args = append(args, reservedUncategorizedID)
		} else {
			query += ` AND c.folder_id = ?`
			args = append(args, *folderID)
		}
	}
	if source != nil && *source != "" && *source != "all" {
		query += ` AND c.source = ?`
		args = append(args, *source)
	}
	query += ` GROUP BY c.id ORDER BY c.updated_at DESC`

	var out []ConversationSummary
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, core.NewStore("list_conversations", err)
	}
	return out, nil
}
