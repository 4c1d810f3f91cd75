// Package backup implements the zip/JSONL export described in spec.md
// §4.9, grounded on the teacher's temp-file-then-rename write pattern (seen
// in pkg/textfs for durable writes) adapted to use rs/xid for the
// intermediate filename instead of a PID-based suffix.
package backup

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/ai-history/core/internal/config"
	"github.com/ai-history/core/internal/core"
	"github.com/ai-history/core/internal/store"
)

const schemaVersion = 1

// Exporter writes full-database backups to the configured backups
// directory.
type Exporter struct {
	store      *store.Store
	backupsDir string
	log        zerolog.Logger
}

func New(s *store.Store, paths config.Paths, log zerolog.Logger) *Exporter {
	return &Exporter{store: s, backupsDir: paths.BackupsDir, log: log.With().Str("component", "backup").Logger()}
}

type metaLine struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schema_version"`
	GeneratedAt   string `json:"generated_at"`
}

type conversationLine struct {
	Type    string                   `json:"type"`
	Payload *store.ConversationDetail `json:"payload"`
}

// Export writes backups/ai-history-backup-<timestamp>.zip and returns its
// path, per spec.md §4.9.
func (e *Exporter) Export(ctx context.Context, now time.Time) (string, error) {
	if err := os.MkdirAll(e.backupsDir, 0o755); err != nil {
		return "", core.NewStore("backup:mkdir", err)
	}

	ids, err := e.store.ConversationIDsByUpdatedAtDesc(ctx)
	if err != nil {
		return "", err
	}

	tmpPath := filepath.Join(e.backupsDir, ".tmp-"+xid.New().String()+".zip")
	finalName := fmt.Sprintf("ai-history-backup-%s.zip", now.UTC().Format("20060102-150405"))
	finalPath := filepath.Join(e.backupsDir, finalName)

	if err := e.writeArchive(ctx, tmpPath, ids, now); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", core.NewStore("backup:rename", err)
	}
	return finalPath, nil
}

func (e *Exporter) writeArchive(ctx context.Context, tmpPath string, ids []string, now time.Time) error {
	f, err := os.Create(tmpPath)
	if err != nil {
		return core.NewStore("backup:create", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("backup.jsonl")
	if err != nil {
		zw.Close()
		return core.NewStore("backup:zip_entry", err)
	}
	enc := json.NewEncoder(w)

	if err := enc.Encode(metaLine{Type: "meta", SchemaVersion: schemaVersion, GeneratedAt: now.UTC().Format(time.RFC3339)}); err != nil {
		zw.Close()
		return core.NewStore("backup:write_meta", err)
	}

	for _, id := range ids {
		detail, err := e.store.OpenConversation(ctx, id)
		if err != nil {
			zw.Close()
			return err
		}
		if detail == nil {
			continue
		}
		if err := enc.Encode(conversationLine{Type: "conversation", Payload: detail}); err != nil {
			zw.Close()
			return core.NewStore("backup:write_conversation", err)
		}
	}

	if err := zw.Close(); err != nil {
		return core.NewStore("backup:zip_close", err)
	}
	return nil
}
