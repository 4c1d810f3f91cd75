package cache

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ai-history/core/internal/config"
	"github.com/ai-history/core/internal/store"
)

func newTestWorker(t *testing.T) (*Worker, *store.Store, config.Paths) {
	t.Helper()
	dir := t.TempDir()
	paths := config.Paths{
		DataDir:   dir,
		DBPath:    filepath.Join(dir, "test.db"),
		AssetsDir: filepath.Join(dir, "assets"),
	}
	s, err := store.Open(paths.DBPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, paths, zerolog.Nop()), s, paths
}

func insertConversationWithAttachment(t *testing.T, s *store.Store, originalURL string) (convID, attID string) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	now := store.NowISO()
	conv := &store.Conversation{
		ID:          "conv-1",
		Source:      "chatgpt",
		Title:       "t",
		CreatedAt:   now,
		UpdatedAt:   now,
		Fingerprint: "fp-1",
	}
	if err := tx.InsertConversation(ctx, conv); err != nil {
		tx.Rollback()
		t.Fatalf("InsertConversation() error = %v", err)
	}
	msg := &store.Message{ID: "msg-1", ConversationID: conv.ID, Seq: 0, Role: "user", ContentMarkdown: "hi"}
	if err := tx.InsertMessage(ctx, msg); err != nil {
		tx.Rollback()
		t.Fatalf("InsertMessage() error = %v", err)
	}
	att := &store.Attachment{
		ID:             "att-1",
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		Kind:           "file",
		OriginalURL:    originalURL,
		CreatedAt:      now,
	}
	if err := tx.InsertAttachment(ctx, att); err != nil {
		tx.Rollback()
		t.Fatalf("InsertAttachment() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return conv.ID, att.ID
}

func TestRunDecodesAndCachesDataURL(t *testing.T) {
	w, s, paths := newTestWorker(t)
	ctx := context.Background()

	payload := base64.StdEncoding.EncodeToString([]byte("hello world"))
	dataURL := "data:text/plain;base64," + payload
	convID, attID := insertConversationWithAttachment(t, s, dataURL)

	if err := w.Run(ctx, convID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	attachments, err := s.ListPersistedAttachments(ctx, convID)
	if err != nil {
		t.Fatalf("ListPersistedAttachments() error = %v", err)
	}
	if len(attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(attachments))
	}
	a := attachments[0]
	if a.ID != attID {
		t.Fatalf("unexpected attachment id: %q", a.ID)
	}
	if a.Status != store.AttachmentStatusCached {
		t.Fatalf("expected status cached, got %q", a.Status)
	}
	if a.LocalPath == nil {
		t.Fatal("expected local_path to be set")
	}
	data, err := os.ReadFile(*a.LocalPath)
	if err != nil {
		t.Fatalf("reading cached file: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("unexpected cached bytes: %q", data)
	}
	if _, err := os.Stat(paths.AssetsDir); err != nil {
		t.Fatalf("expected assets dir to exist: %v", err)
	}
}

func TestRunFailsOnInvalidDataURL(t *testing.T) {
	w, s, _ := newTestWorker(t)
	ctx := context.Background()

	convID, _ := insertConversationWithAttachment(t, s, "data:text/plain,not-base64-flagged")
	if err := w.Run(ctx, convID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	attachments, err := s.ListPersistedAttachments(ctx, convID)
	if err != nil {
		t.Fatalf("ListPersistedAttachments() error = %v", err)
	}
	if attachments[0].Status != store.AttachmentStatusFailed {
		t.Fatalf("expected status failed, got %q", attachments[0].Status)
	}
}

func TestRunNoOpWhenNothingPending(t *testing.T) {
	w, s, _ := newTestWorker(t)
	ctx := context.Background()

	convID, attID := insertConversationWithAttachment(t, s, "data:text/plain;base64,aGVsbG8=")
	if err := w.Run(ctx, convID); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if err := w.Run(ctx, convID); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	attachments, err := s.ListPersistedAttachments(ctx, convID)
	if err != nil {
		t.Fatalf("ListPersistedAttachments() error = %v", err)
	}
	if len(attachments) != 1 || attachments[0].ID != attID || attachments[0].Status != store.AttachmentStatusCached {
		t.Fatalf("unexpected attachments after repeated run: %+v", attachments)
	}
}

func TestScheduleCoalescesConcurrentCalls(t *testing.T) {
	w, s, _ := newTestWorker(t)
	convID, _ := insertConversationWithAttachment(t, s, "data:text/plain;base64,aGVsbG8=")

	done := make(chan struct{})
	w.mu.Lock()
	w.inFlight[convID] = true
	w.mu.Unlock()

	go func() {
		w.Schedule(convID)
		close(done)
	}()
	<-done

	w.mu.Lock()
	inFlight := w.inFlight[convID]
	w.mu.Unlock()
	if !inFlight {
		t.Fatal("expected Schedule to leave the coalesced in-flight marker untouched while one pass is already running")
	}
}
