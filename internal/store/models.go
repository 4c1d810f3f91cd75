package store

import (
	"time"

	json5 "github.com/yosuke-furukawa/json5"
)

type Folder struct {
	ID        string  `db:"id"`
	Name      string  `db:"name"`
	ParentID  *string `db:"parent_id"`
	SortOrder int     `db:"sort_order"`
	CreatedAt string  `db:"created_at"`
	UpdatedAt string  `db:"updated_at"`
}

type Conversation struct {
	ID                   string  `db:"id"`
	Source               string  `db:"source"`
	SourceConversationID *string `db:"source_conversation_id"`
	FolderID             *string `db:"folder_id"`
	Title                string  `db:"title"`
	Summary              *string `db:"summary"`
	CreatedAt            string  `db:"created_at"`
	UpdatedAt            string  `db:"updated_at"`
	Fingerprint          string  `db:"fingerprint"`
	MetaJSON             *string `db:"meta_json"`
}

type ConversationSummary struct {
	ID           string  `db:"id"`
	Source       string  `db:"source"`
	FolderID     *string `db:"folder_id"`
	Title        string  `db:"title"`
	Summary      *string `db:"summary"`
	CreatedAt    string  `db:"created_at"`
	UpdatedAt    string  `db:"updated_at"`
	MessageCount int64   `db:"message_count"`
}

type Message struct {
	ID              string  `db:"id"`
	ConversationID  string  `db:"conversation_id"`
	Seq             int     `db:"seq"`
	Role            string  `db:"role"`
	ContentMarkdown string  `db:"content_markdown"`
	ThoughtMarkdown *string `db:"thought_markdown"`
	Model           *string `db:"model"`
	Timestamp       *string `db:"timestamp"`
	TokenCount      *int    `db:"token_count"`
}

const (
	AttachmentStatusRemoteOnly = "remote_only"
	AttachmentStatusCached     = "cached"
	AttachmentStatusFailed     = "failed"
)

type Attachment struct {
	ID             string  `db:"id"`
	MessageID      string  `db:"message_id"`
	ConversationID string  `db:"conversation_id"`
	Kind           string  `db:"kind"`
	OriginalURL    string  `db:"original_url"`
	LocalPath      *string `db:"local_path"`
	MIME           *string `db:"mime"`
	SizeBytes      *int64  `db:"size_bytes"`
	SHA256         *string `db:"sha256"`
	Status         string  `db:"status"`
	Error          *string `db:"error"`
	CreatedAt      string  `db:"created_at"`
	Virtual        bool    `db:"-"`
}

type Tag struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

type Import struct {
	ID            string `db:"id"`
	Source        string `db:"source"`
	ImportedCount int    `db:"imported_count"`
	SkippedCount  int    `db:"skipped_count"`
	ConflictCount int    `db:"conflict_count"`
	CreatedAt     string `db:"created_at"`
}

// ConversationDetail is the open_conversation result: the conversation
// plus its ordered messages, alphabetical tags, and attachments (persisted
// rows unioned with synthesized virtuals per spec.md §4.4/§9).
type ConversationDetail struct {
	Conversation Conversation
	Messages     []Message
	Tags         []Tag
	Attachments  []Attachment
}

// NowISO returns the current time as RFC3339 UTC, the timestamp format
// used throughout the schema.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// DecodeMetaJSON tolerantly parses a conversation's meta_json blob,
// accepting the trailing commas and comments older extension versions may
// have written, per spec.md §4.4/§9. Canonical writes always go through
// encoding/json and stay strict JSON.
func (c *Conversation) DecodeMetaJSON(out any) error {
	if c.MetaJSON == nil || *c.MetaJSON == "" {
		return nil
	}
	return json5.Unmarshal([]byte(*c.MetaJSON), out)
}
