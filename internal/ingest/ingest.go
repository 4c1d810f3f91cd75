// Package ingest implements the transactional batch-ingestion pipeline
// described in spec.md §4.5, grounded on qzbxw-EGO's
// db_sessions.go DeleteSession transaction-with-deferred-rollback pattern
// and the teacher's per-turn loop style in pkg/connector/client.go's
// message-send handling.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ai-history/core/internal/classify"
	"github.com/ai-history/core/internal/extract"
	"github.com/ai-history/core/internal/fingerprint"
	"github.com/ai-history/core/internal/store"
)

// Strategy selects how the pipeline resolves a fingerprint/source-ref
// conflict, per spec.md §4.5 step 5.
type Strategy string

const (
	StrategySkip      Strategy = "skip"
	StrategyOverwrite Strategy = "overwrite"
	StrategyDuplicate Strategy = "duplicate"
)

// NormalizedAttachment is a single declared attachment on a turn, prior to
// classification and persistence.
type NormalizedAttachment struct {
	Kind   string
	URL    string
	MIME   string
	Status string
}

// NormalizedTurn is one message in a NormalizedConversation.
type NormalizedTurn struct {
	Role            string
	ContentMarkdown string
	ThoughtMarkdown *string
	Model           *string
	Timestamp       *string
	TokenCount      *int
	Attachments     []NormalizedAttachment
}

// NormalizedConversation is the pipeline's unit of work: a conversation and
// its turns, already parsed out of whatever vendor export format produced
// them.
type NormalizedConversation struct {
	Source               string
	SourceConversationID *string
	Title                string
	Summary              *string
	MetaJSON             *string
	Turns                []NormalizedTurn
}

// Batch is the pipeline's input, per spec.md §4.5.
type Batch struct {
	Conversations []NormalizedConversation
	Strategy      Strategy
	FolderID      *string
}

// Result carries the counters spec.md §4.5 requires callers to see.
type Result struct {
	Imported  int `json:"imported"`
	Skipped   int `json:"skipped"`
	Conflicts int `json:"conflicts"`
}

// ScheduleCachePass hands a freshly-imported conversation id to the
// background cache worker, mirroring store.ScheduleCachePass without
// importing internal/cache directly.
type ScheduleCachePass func(conversationID string)

// Pipeline runs ingestion batches against a store.
type Pipeline struct {
	store         *store.Store
	scheduleCache ScheduleCachePass
	log           zerolog.Logger
}

func New(s *store.Store, scheduleCache ScheduleCachePass, log zerolog.Logger) *Pipeline {
	return &Pipeline{store: s, scheduleCache: scheduleCache, log: log.With().Str("component", "ingest").Logger()}
}

// Ingest runs a batch per spec.md §4.5: one transaction per conversation,
// conflict detection then strategy branching, per-turn message/attachment
// persistence, an import audit row, and post-commit cache scheduling.
func (p *Pipeline) Ingest(ctx context.Context, batch Batch) (Result, error) {
	var result Result
	var newIDs []string

	for _, nc := range batch.Conversations {
		if len(nc.Turns) == 0 {
			continue
		}

		tx, err := p.store.BeginTx(ctx)
		if err != nil {
			return result, err
		}

		id, imported, skipped, conflicted, err := p.ingestOne(ctx, tx, nc, batch)
		if err != nil {
			tx.Rollback()
			return result, err
		}
		if err := tx.Commit(); err != nil {
			return result, err
		}

		if conflicted {
			result.Conflicts++
		}
		if skipped {
			result.Skipped++
			continue
		}
		result.Imported += boolToInt(imported)
		if imported {
			newIDs = append(newIDs, id)
		}
	}

	imp := &store.Import{
		Source:        batchSourceLabel(batch),
		ImportedCount: result.Imported,
		SkippedCount:  result.Skipped,
		ConflictCount: result.Conflicts,
	}
	if err := p.store.InsertImport(ctx, imp); err != nil {
		return result, err
	}

	for _, id := range newIDs {
		if p.scheduleCache != nil {
			p.scheduleCache(id)
		}
	}
	return result, nil
}

// ingestOne performs steps 2-7 of spec.md §4.5 for a single conversation
// inside an already-open transaction. Returns the persisted id (empty if
// skipped), whether it was imported, whether it was skipped, and whether a
// conflict was observed.
func (p *Pipeline) ingestOne(ctx context.Context, tx *store.Tx, nc NormalizedConversation, batch Batch) (id string, imported, skipped, conflicted bool, err error) {
	fp := fingerprint.Compute(nc.Source, derefOr(nc.SourceConversationID, ""), toFingerprintTurns(nc.Turns))

	var conflict *store.Conversation
	sourceConvID := nc.SourceConversationID
	if sourceConvID != nil && *sourceConvID != "" {
		conflict, err = tx.FindConversationBySourceRef(ctx, nc.Source, *sourceConvID)
		if err != nil {
			return "", false, false, false, err
		}
	}
	matchedBySourceRef := conflict != nil
	if conflict == nil {
		conflict, err = tx.FindConversationByFingerprint(ctx, fp)
		if err != nil {
			return "", false, false, false, err
		}
	}

	if conflict != nil {
		conflicted = true
		switch batch.Strategy {
		case StrategyOverwrite:
			if err := tx.DeleteConversation(ctx, conflict.ID); err != nil {
				return "", false, false, true, err
			}
		case StrategyDuplicate:
			if matchedBySourceRef {
				suffixed := derefOr(sourceConvID, "") + "#dup-" + uuid.NewString()
				sourceConvID = &suffixed
				// fingerprint is unique as well: identical content under the
				// same source ref would otherwise collide on insert.
				sameContent, fpErr := tx.FindConversationByFingerprint(ctx, fp)
				if fpErr != nil {
					return "", false, false, true, fpErr
				}
				if sameContent != nil {
					fp = fp + "-dup-" + uuid.NewString()
				}
			} else {
				fp = fp + "-dup-" + uuid.NewString()
			}
		default: // skip, or unknown strategy
			return "", false, true, true, nil
		}
	}

	id = uuid.NewString()
	now := store.NowISO()
	conv := &store.Conversation{
		ID:                   id,
		Source:               nc.Source,
		SourceConversationID: sourceConvID,
		FolderID:             batch.FolderID,
		Title:                nc.Title,
		Summary:              nc.Summary,
		CreatedAt:            now,
		UpdatedAt:            now,
		Fingerprint:          fp,
		MetaJSON:             nc.MetaJSON,
	}
	if err := tx.InsertConversation(ctx, conv); err != nil {
		return "", false, false, conflicted, err
	}

	for seq, turn := range nc.Turns {
		if err := p.persistTurn(ctx, tx, id, seq, turn, nc.Source); err != nil {
			return "", false, false, conflicted, err
		}
	}

	return id, true, false, conflicted, nil
}

func (p *Pipeline) persistTurn(ctx context.Context, tx *store.Tx, conversationID string, seq int, turn NormalizedTurn, source string) error {
	thought := turn.ThoughtMarkdown
	if source == "gemini" {
		thought = nil
	}
	msg := &store.Message{
		ID:              uuid.NewString(),
		ConversationID:  conversationID,
		Seq:             seq,
		Role:            turn.Role,
		ContentMarkdown: turn.ContentMarkdown,
		ThoughtMarkdown: thought,
		Model:           turn.Model,
		Timestamp:       turn.Timestamp,
		TokenCount:      turn.TokenCount,
	}
	if err := tx.InsertMessage(ctx, msg); err != nil {
		return err
	}

	seenURLs := make(map[string]bool)
	persistedAny := false

	for _, da := range turn.Attachments {
		norm := classify.NormalizeURL(da.URL)
		if norm == "" {
			continue
		}
		if classify.IsNavigationURL(norm) {
			continue
		}
		if seenURLs[norm] {
			continue
		}
		kind := classify.ClassifyKind(da.Kind, norm, da.MIME)
		if kind == classify.KindFile && !classify.LooksLikeFileURL(norm) {
			continue
		}
		seenURLs[norm] = true
		status := da.Status
		if status == "" {
			status = store.AttachmentStatusRemoteOnly
		}
		mime := da.MIME
		if mime == "" {
			mime = classify.InferMIME(norm)
		}
		if err := tx.InsertAttachment(ctx, &store.Attachment{
			ID:             uuid.NewString(),
			MessageID:      msg.ID,
			ConversationID: conversationID,
			Kind:           string(kind),
			OriginalURL:    norm,
			MIME:           mimePtr(mime),
			Status:         status,
			CreatedAt:      store.NowISO(),
		}); err != nil {
			return err
		}
		persistedAny = true
	}

	for _, inline := range extract.ExtractInline(turn.ContentMarkdown) {
		if seenURLs[inline.URL] {
			continue
		}
		seenURLs[inline.URL] = true
		if err := tx.InsertAttachment(ctx, &store.Attachment{
			ID:             uuid.NewString(),
			MessageID:      msg.ID,
			ConversationID: conversationID,
			Kind:           string(inline.Kind),
			OriginalURL:    inline.URL,
			MIME:           mimePtr(inline.MIME),
			Status:         store.AttachmentStatusRemoteOnly,
			CreatedAt:      store.NowISO(),
		}); err != nil {
			return err
		}
		persistedAny = true
	}

	if strings.EqualFold(turn.Role, "user") && !persistedAny {
		for _, v := range extract.ExtractNamedFileAttachments(turn.ContentMarkdown) {
			if err := tx.InsertAttachment(ctx, &store.Attachment{
				ID:             uuid.NewString(),
				MessageID:      msg.ID,
				ConversationID: conversationID,
				Kind:           string(v.Kind),
				OriginalURL:    v.URL,
				MIME:           mimePtr(v.MIME),
				Status:         store.AttachmentStatusRemoteOnly,
				CreatedAt:      store.NowISO(),
			}); err != nil {
				return err
			}
		}
	}

	return nil
}

func toFingerprintTurns(turns []NormalizedTurn) []fingerprint.Turn {
	out := make([]fingerprint.Turn, len(turns))
	for i, t := range turns {
		out[i] = fingerprint.Turn{Role: t.Role, Content: t.ContentMarkdown}
	}
	return out
}

func mimePtr(mime string) *string {
	if mime == "" {
		return nil
	}
	return &mime
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func batchSourceLabel(batch Batch) string {
	if len(batch.Conversations) == 0 {
		return "unknown"
	}
	sources := make(map[string]bool)
	for _, c := range batch.Conversations {
		sources[c.Source] = true
	}
	if len(sources) == 1 {
		for s := range sources {
			return s
		}
	}
	return fmt.Sprintf("mixed(%d)", len(sources))
}
