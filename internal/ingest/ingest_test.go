package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ai-history/core/internal/store"
)

func newTestPipeline(t *testing.T) (*Pipeline, *store.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(dbPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, nil, zerolog.Nop()), s
}

func oneConversationBatch(strategy Strategy, sourceConvID, content string) Batch {
	return Batch{
		Strategy: strategy,
		Conversations: []NormalizedConversation{{
			Source:               "chatgpt",
			SourceConversationID: &sourceConvID,
			Title:                "test import",
			Turns: []NormalizedTurn{
				{Role: "user", ContentMarkdown: content},
				{Role: "assistant", ContentMarkdown: "here's the answer"},
			},
		}},
	}
}

func TestIngestNewConversation(t *testing.T) {
	p, s := newTestPipeline(t)
	ctx := context.Background()

	result, err := p.Ingest(ctx, oneConversationBatch(StrategySkip, "conv-1", "hello"))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Imported != 1 || result.Skipped != 0 || result.Conflicts != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	ids, err := s.ConversationIDsByUpdatedAtDesc(ctx)
	if err != nil {
		t.Fatalf("ConversationIDsByUpdatedAtDesc() error = %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("got %d conversations, want 1", len(ids))
	}
}

func TestIngestSkipStrategyLeavesExistingUntouched(t *testing.T) {
	p, s := newTestPipeline(t)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, oneConversationBatch(StrategySkip, "conv-1", "hello")); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}

	result, err := p.Ingest(ctx, oneConversationBatch(StrategySkip, "conv-1", "hello"))
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}
	if result.Imported != 0 || result.Skipped != 1 || result.Conflicts != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	ids, err := s.ConversationIDsByUpdatedAtDesc(ctx)
	if err != nil {
		t.Fatalf("ConversationIDsByUpdatedAtDesc() error = %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected skip strategy to leave exactly one conversation, got %d", len(ids))
	}
}

func TestIngestOverwriteStrategyReplacesConversation(t *testing.T) {
	p, s := newTestPipeline(t)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, oneConversationBatch(StrategySkip, "conv-1", "hello")); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	firstIDs, err := s.ConversationIDsByUpdatedAtDesc(ctx)
	if err != nil {
		t.Fatalf("ConversationIDsByUpdatedAtDesc() error = %v", err)
	}

	result, err := p.Ingest(ctx, oneConversationBatch(StrategyOverwrite, "conv-1", "hello"))
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}
	if result.Imported != 1 || result.Conflicts != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	secondIDs, err := s.ConversationIDsByUpdatedAtDesc(ctx)
	if err != nil {
		t.Fatalf("ConversationIDsByUpdatedAtDesc() error = %v", err)
	}
	if len(secondIDs) != 1 {
		t.Fatalf("expected overwrite to still leave exactly one conversation, got %d", len(secondIDs))
	}
	if secondIDs[0] == firstIDs[0] {
		t.Error("expected overwrite to replace the conversation with a freshly-minted id")
	}
}

func TestIngestDuplicateStrategyKeepsBoth(t *testing.T) {
	p, s := newTestPipeline(t)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, oneConversationBatch(StrategySkip, "conv-1", "hello")); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}

	result, err := p.Ingest(ctx, oneConversationBatch(StrategyDuplicate, "conv-1", "hello"))
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}
	if result.Imported != 1 || result.Conflicts != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	ids, err := s.ConversationIDsByUpdatedAtDesc(ctx)
	if err != nil {
		t.Fatalf("ConversationIDsByUpdatedAtDesc() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected duplicate strategy to keep both conversations, got %d", len(ids))
	}
}

func TestIngestPersistsInlineAttachments(t *testing.T) {
	p, s := newTestPipeline(t)
	ctx := context.Background()

	batch := oneConversationBatch(StrategySkip, "conv-1", "check this out ![chart](https://example.com/chart.png)")
	if _, err := p.Ingest(ctx, batch); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	ids, err := s.ConversationIDsByUpdatedAtDesc(ctx)
	if err != nil {
		t.Fatalf("ConversationIDsByUpdatedAtDesc() error = %v", err)
	}
	detail, err := s.OpenConversation(ctx, ids[0])
	if err != nil {
		t.Fatalf("OpenConversation() error = %v", err)
	}
	if len(detail.Attachments) != 1 || detail.Attachments[0].OriginalURL != "https://example.com/chart.png" {
		t.Fatalf("unexpected attachments: %+v", detail.Attachments)
	}
}

func TestIngestGeminiDiscardsThoughtMarkdown(t *testing.T) {
	p, s := newTestPipeline(t)
	ctx := context.Background()

	thought := "internal reasoning"
	batch := Batch{
		Strategy: StrategySkip,
		Conversations: []NormalizedConversation{{
			Source:               "gemini",
			SourceConversationID: strPtr("conv-1"),
			Title:                "test",
			Turns: []NormalizedTurn{
				{Role: "assistant", ContentMarkdown: "the answer", ThoughtMarkdown: &thought},
			},
		}},
	}
	if _, err := p.Ingest(ctx, batch); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	ids, err := s.ConversationIDsByUpdatedAtDesc(ctx)
	if err != nil {
		t.Fatalf("ConversationIDsByUpdatedAtDesc() error = %v", err)
	}
	messages, err := s.ListMessages(ctx, ids[0])
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(messages) != 1 || messages[0].ThoughtMarkdown != nil {
		t.Fatalf("expected gemini thought markdown discarded, got %+v", messages[0])
	}
}

func strPtr(s string) *string { return &s }
