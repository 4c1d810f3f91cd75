package store

import (
	"context"
	"strings"

	"github.com/ai-history/core/internal/classify"
	"github.com/ai-history/core/internal/extract"
)

// ScheduleCachePass is called when OpenConversation finds attachments that
// still need fetching, handing the conversation id to the fire-and-forget
// scheduler cmd/aihistoryd registers at startup (cache.Worker.Schedule). A nil
// func is a no-op, so the store package stays free of a direct dependency
// on internal/cache (spec.md §4.4/§5).
type ScheduleCachePass func(conversationID string)

// SetCacheScheduler wires the background cache pass hook, called once by
// cmd/aihistoryd during startup.
func (s *Store) SetCacheScheduler(fn ScheduleCachePass) {
	s.scheduleCache = fn
}

// OpenConversation performs the five-query read described in spec.md §4.4,
// promotes opportunistically-reclassifiable attachment kinds, synthesizes
// virtual attachments for user turns that have none, and schedules a cache
// worker pass if anything still needs fetching.
func (s *Store) OpenConversation(ctx context.Context, id string) (*ConversationDetail, error) {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, nil
	}

	persisted, err := s.ListPersistedAttachments(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range persisted {
		a := &persisted[i]
		if a.Kind != "file" {
			continue
		}
		var mime string
		if a.MIME != nil {
			mime = *a.MIME
		}
		if promoted := classify.ClassifyKind("", a.OriginalURL, mime); promoted != classify.KindFile {
			if err := s.PromoteAttachmentKind(ctx, a.ID, string(promoted)); err != nil {
				return nil, err
			}
			a.Kind = string(promoted)
		}
	}

	messages, err := s.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	tags, err := s.ListConversationTags(ctx, id)
	if err != nil {
		return nil, err
	}

	hasPersisted := make(map[string]bool, len(persisted))
	for _, a := range persisted {
		hasPersisted[a.MessageID] = true
	}

	attachments := persisted
	for _, m := range messages {
		if !strings.EqualFold(m.Role, "user") || hasPersisted[m.ID] {
			continue
		}
		for _, v := range extract.ExtractNamedFileAttachments(m.ContentMarkdown) {
			var mime *string
			if v.MIME != "" {
				mimeValue := v.MIME
				mime = &mimeValue
			}
			attachments = append(attachments, Attachment{
				ID:             virtualAttachmentID(m.ID, v.URL),
				MessageID:      m.ID,
				ConversationID: id,
				Kind:           string(v.Kind),
				OriginalURL:    v.URL,
				MIME:           mime,
				Status:         AttachmentStatusRemoteOnly,
				CreatedAt:      NowISO(),
				Virtual:        true,
			})
		}
	}

	if s.scheduleCache != nil && conversationNeedsCachePass(attachments) {
		s.scheduleCache(id)
	}

	return &ConversationDetail{
		Conversation: *conv,
		Messages:     messages,
		Tags:         tags,
		Attachments:  attachments,
	}, nil
}

func conversationNeedsCachePass(attachments []Attachment) bool {
	for _, a := range attachments {
		if classify.IsCloudDriveFileURL(a.OriginalURL) {
			continue
		}
		switch a.Status {
		case AttachmentStatusRemoteOnly, AttachmentStatusFailed:
			return true
		case AttachmentStatusCached:
			if a.LocalPath == nil && classify.IsDataURL(a.OriginalURL) {
				return true
			}
		}
	}
	return false
}

func virtualAttachmentID(messageID, url string) string {
	return "virtual:" + messageID + ":" + url
}
