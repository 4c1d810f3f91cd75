package backup

import (
	"archive/zip"
	"bufio"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ai-history/core/internal/config"
	"github.com/ai-history/core/internal/store"
)

func newTestExporter(t *testing.T) (*Exporter, *store.Store, config.Paths) {
	t.Helper()
	dir := t.TempDir()
	paths := config.Paths{
		DataDir:    dir,
		DBPath:     filepath.Join(dir, "test.db"),
		BackupsDir: filepath.Join(dir, "backups"),
	}
	s, err := store.Open(paths.DBPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, paths, zerolog.Nop()), s, paths
}

func TestExportProducesJSONLWithMetaAndConversations(t *testing.T) {
	e, s, _ := newTestExporter(t)
	ctx := context.Background()

	tx, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	now := store.NowISO()
	conv := &store.Conversation{ID: "conv-1", Source: "chatgpt", Title: "t", CreatedAt: now, UpdatedAt: now, Fingerprint: "fp-1"}
	if err := tx.InsertConversation(ctx, conv); err != nil {
		tx.Rollback()
		t.Fatalf("InsertConversation() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	path, err := e.Export(ctx, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.Contains(path, "ai-history-backup-20260102-030405.zip") {
		t.Fatalf("unexpected backup filename: %q", path)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("opening backup zip: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 1 || zr.File[0].Name != "backup.jsonl" {
		t.Fatalf("unexpected zip contents: %+v", zr.File)
	}

	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("opening backup.jsonl: %v", err)
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (meta + one conversation): %v", len(lines), lines)
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &meta); err != nil {
		t.Fatalf("unmarshal meta line: %v", err)
	}
	if meta["type"] != "meta" {
		t.Fatalf("unexpected meta line: %v", meta)
	}

	var conversation map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &conversation); err != nil {
		t.Fatalf("unmarshal conversation line: %v", err)
	}
	if conversation["type"] != "conversation" {
		t.Fatalf("unexpected conversation line: %v", conversation)
	}
}

func TestExportEmptyDatabaseStillWritesMeta(t *testing.T) {
	e, _, _ := newTestExporter(t)
	path, err := e.Export(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("opening backup zip: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 1 {
		t.Fatalf("unexpected zip contents: %+v", zr.File)
	}
}
