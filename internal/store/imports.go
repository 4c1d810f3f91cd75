package store

import (
	"context"

	"github.com/ai-history/core/internal/core"
)

// InsertImport records an import batch's audit row, per spec.md §3/§4.5
// step 9.
func (s *Store) InsertImport(ctx context.Context, imp *Import) error {
	if imp.ID == "" {
		imp.ID = newID()
	}
	if imp.CreatedAt == "" {
		imp.CreatedAt = NowISO()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO imports (id, source, imported_count, skipped_count, conflict_count, created_at) VALUES (?,?,?,?,?,?)`,
		imp.ID, imp.Source, imp.ImportedCount, imp.SkippedCount, imp.ConflictCount, imp.CreatedAt,
	)
	if err != nil {
		return core.NewStore("insert_import", err)
	}
	return nil
}

// ListImports returns import audit rows newest first.
func (s *Store) ListImports(ctx context.Context) ([]Import, error) {
	var out []Import
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, source, imported_count, skipped_count, conflict_count, created_at FROM imports ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, core.NewStore("list_imports", err)
	}
	return out, nil
}
