// Package command exposes the typed Go API the desktop shell drives, one
// method per row of the command transport table in spec.md §6, grounded on
// the teacher's handler-per-capability layout (pkg/connector/client.go's
// exported methods each mapping to one bridgev2 capability).
package command

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ai-history/core/internal/backup"
	"github.com/ai-history/core/internal/cache"
	"github.com/ai-history/core/internal/core"
	"github.com/ai-history/core/internal/ingest"
	"github.com/ai-history/core/internal/sanitize"
	"github.com/ai-history/core/internal/store"
)

const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// SessionIssuer is the subset of the bridge's session store the dispatcher
// needs for start_bridge_session, kept as an interface so command does not
// import internal/bridge (bridge already imports ingest/sanitize/store;
// depending on it here would cycle back through the wiring in cmd/aihistoryd).
type SessionIssuer interface {
	Issue() (token string, expiresAt time.Time)
}

// ExternalOpener performs the actual OS-level "open this in the default
// browser/app" call. Left to the caller to inject: the real integration is
// out of scope for this core (spec.md §1), only the validation contract
// (OpenExternal) is.
type ExternalOpener func(target string) error

// Dispatcher implements every command transport row.
type Dispatcher struct {
	store    *store.Store
	pipeline *ingest.Pipeline
	cache    *cache.Worker
	exporter *backup.Exporter
	sessions SessionIssuer
	opener   ExternalOpener
	fetch    *http.Client
	log      zerolog.Logger
}

func New(s *store.Store, pipeline *ingest.Pipeline, worker *cache.Worker, exporter *backup.Exporter, sessions SessionIssuer, opener ExternalOpener, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    s,
		pipeline: pipeline,
		cache:    worker,
		exporter: exporter,
		sessions: sessions,
		opener:   opener,
		fetch: &http.Client{
			Timeout: 15 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 8 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		log: log.With().Str("component", "command").Logger(),
	}
}

func (d *Dispatcher) ListFolders(ctx context.Context) ([]store.Folder, error) {
	return d.store.ListFolders(ctx)
}

func (d *Dispatcher) CreateFolder(ctx context.Context, name string, parentID *string) (*store.Folder, error) {
	return d.store.CreateFolder(ctx, name, parentID)
}

func (d *Dispatcher) MoveFolder(ctx context.Context, id string, parentID *string) error {
	return d.store.MoveFolder(ctx, id, parentID)
}

func (d *Dispatcher) DeleteFolder(ctx context.Context, id string) error {
	return d.store.DeleteFolder(ctx, id)
}

func (d *Dispatcher) MoveConversation(ctx context.Context, id string, folderID *string) error {
	return d.store.MoveConversation(ctx, id, folderID)
}

func (d *Dispatcher) ListConversations(ctx context.Context, folderID, source *string) ([]store.ConversationSummary, error) {
	return d.store.ListConversations(ctx, folderID, source)
}

func (d *Dispatcher) OpenConversation(ctx context.Context, id string) (*store.ConversationDetail, error) {
	return d.store.OpenConversation(ctx, id)
}

func (d *Dispatcher) ListConversationAttachments(ctx context.Context, conversationID string) ([]store.Attachment, error) {
	detail, err := d.store.OpenConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, nil
	}
	return detail.Attachments, nil
}

func (d *Dispatcher) ImportFiles(ctx context.Context, batch ingest.Batch) (ingest.Result, error) {
	return d.pipeline.Ingest(ctx, batch)
}

// ImportLiveCapture runs the sanitizer then ingests with strategy=overwrite,
// the same path the bridge's POST /v1/import/live uses.
func (d *Dispatcher) ImportLiveCapture(ctx context.Context, source, pageURL, title string, turns []sanitize.RawTurn) (ingest.Result, error) {
	sourceConversationID, normalized, err := sanitize.Sanitize(source, pageURL, turns)
	if err != nil {
		return ingest.Result{}, err
	}
	return d.pipeline.Ingest(ctx, ingest.Batch{
		Conversations: []ingest.NormalizedConversation{{
			Source:               source,
			SourceConversationID: &sourceConversationID,
			Title:                title,
			Turns:                normalized,
		}},
		Strategy: ingest.StrategyOverwrite,
	})
}

func (d *Dispatcher) SearchConversations(ctx context.Context, query string) ([]store.SearchResult, error) {
	return d.store.SearchConversations(ctx, query)
}

func (d *Dispatcher) ExportBackupZip(ctx context.Context, now time.Time) (string, error) {
	return d.exporter.Export(ctx, now)
}

// FetchURLHTML fetches a page's raw HTML with a desktop user agent and a
// bounded redirect chain, per spec.md §6.
func (d *Dispatcher) FetchURLHTML(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", core.NewInput("invalid_url", err.Error())
	}
	req.Header.Set("User-Agent", desktopUserAgent)
	req.Header.Set("Accept", "text/html,*/*")

	resp, err := d.fetch.Do(req)
	if err != nil {
		return "", core.NewError(core.KindNetwork, "fetch_failed", core.TruncateError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", core.NewError(core.KindNetwork, "fetch_failed", "http_status_"+resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", core.NewError(core.KindNetwork, "fetch_failed", core.TruncateError(err))
	}
	return string(body), nil
}

func (d *Dispatcher) StartBridgeSession() (token string, expiresAt time.Time) {
	return d.sessions.Issue()
}

// OpenExternal validates target per spec.md §6 (rejects empty, a leading
// '-', or an embedded NUL byte) and delegates the actual OS call to the
// injected ExternalOpener.
func (d *Dispatcher) OpenExternal(target string) error {
	if target == "" {
		return core.NewInput("empty_target", "open_external target must not be empty")
	}
	if strings.HasPrefix(target, "-") {
		return core.NewInput("invalid_target", "open_external target must not start with '-'")
	}
	if strings.ContainsRune(target, 0) {
		return core.NewInput("invalid_target", "open_external target must not contain a NUL byte")
	}
	if d.opener == nil {
		return errors.New("no external opener configured")
	}
	return d.opener(target)
}
