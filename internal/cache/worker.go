// Package cache implements the attachment download worker described in
// spec.md §4.6, grounded on the teacher's pkg/shared/httputil/client.go
// (timeout-bounded http.Client construction) and pkg/shared/media/data_uri.go
// (base64 data URL decoding), with per-conversation coalescing modeled on
// pkg/connector/memory_manager.go's mutex-guarded in-flight map.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/rs/zerolog"

	"github.com/ai-history/core/internal/classify"
	"github.com/ai-history/core/internal/config"
	"github.com/ai-history/core/internal/core"
	"github.com/ai-history/core/internal/store"
)

const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Worker fetches pending attachments for a conversation and writes them
// into a content-addressed assets directory, per spec.md §4.6.
type Worker struct {
	store      *store.Store
	assetsDir  string
	httpClient *http.Client
	log        zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

func New(s *store.Store, paths config.Paths, log zerolog.Logger) *Worker {
	return &Worker{
		store:     s,
		assetsDir: paths.AssetsDir,
		httpClient: &http.Client{
			Timeout: config.FetchTimeout(),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		log:      log.With().Str("component", "cache").Logger(),
		inFlight: make(map[string]bool),
	}
}

// Schedule is the fire-and-forget entry point handed to store.SetCacheScheduler
// and ingest.Pipeline: it spawns a goroutine per conversation, coalescing
// concurrent requests for the same id (spec.md §5).
func (w *Worker) Schedule(conversationID string) {
	w.mu.Lock()
	if w.inFlight[conversationID] {
		w.mu.Unlock()
		return
	}
	w.inFlight[conversationID] = true
	w.mu.Unlock()

	go func() {
		defer func() {
			w.mu.Lock()
			delete(w.inFlight, conversationID)
			w.mu.Unlock()
		}()
		if err := w.Run(context.Background(), conversationID); err != nil {
			w.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("cache pass failed")
		}
	}()
}

// Run executes one cache pass for a conversation, per spec.md §4.6 steps 1-5.
func (w *Worker) Run(ctx context.Context, conversationID string) error {
	pending, err := w.store.PendingAttachments(ctx, conversationID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	if err := os.MkdirAll(w.assetsDir, 0o755); err != nil {
		return core.NewStore("cache:mkdir_assets", err)
	}

	conv, err := w.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	source := ""
	if conv != nil {
		source = conv.Source
	}

	for _, a := range pending {
		w.processOne(ctx, a, source)
	}
	return nil
}

func (w *Worker) processOne(ctx context.Context, a store.Attachment, source string) {
	norm := classify.NormalizeURL(a.OriginalURL)
	if norm == "" {
		w.fail(ctx, a.ID, "invalid_url")
		return
	}
	if classify.IsVirtualURL(norm) {
		return
	}

	if classify.IsDataURL(norm) {
		w.processDataURL(ctx, a, norm)
		return
	}
	w.processHTTP(ctx, a, norm, source)
}

func (w *Worker) processDataURL(ctx context.Context, a store.Attachment, dataURL string) {
	rest := strings.TrimPrefix(dataURL, "data:")
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		w.fail(ctx, a.ID, "invalid_data_url")
		return
	}
	if !strings.Contains(meta, ";base64") {
		w.fail(ctx, a.ID, "invalid_data_url")
		return
	}
	mimeType, _, _ := strings.Cut(meta, ";")

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.URLEncoding.DecodeString(payload)
		if err != nil {
			w.fail(ctx, a.ID, "invalid_data_url")
			return
		}
	}
	if len(data) == 0 {
		w.fail(ctx, a.ID, "empty_data_url")
		return
	}

	w.storeBytes(ctx, a, data, mimeType)
}

func (w *Worker) processHTTP(ctx context.Context, a store.Attachment, rawURL, source string) {
	if (source == "gemini" || source == "ai_studio") && classify.IsCloudDriveFileURL(rawURL) {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		w.fail(ctx, a.ID, core.TruncateError(err))
		return
	}
	req.Header.Set("User-Agent", desktopUserAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.fail(ctx, a.ID, core.TruncateError(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.fail(ctx, a.ID, "http_status_"+strconv.Itoa(resp.StatusCode))
		return
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		w.fail(ctx, a.ID, core.TruncateError(err))
		return
	}

	mimeType := resp.Header.Get("Content-Type")
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" && a.MIME != nil {
		mimeType = *a.MIME
	}

	w.storeBytes(ctx, a, data, mimeType)
}

// storeBytes is the common store step of spec.md §4.6 step 5: hash,
// classify, write content-addressed bytes, and transition the row.
func (w *Worker) storeBytes(ctx context.Context, a store.Attachment, data []byte, mimeType string) {
	sum := sha256.Sum256(data)
	sha256Hex := hex.EncodeToString(sum[:])

	if mimeType == "" {
		mimeType = classify.InferMIME(a.OriginalURL)
	}

	ext := classify.InferExtension(a.OriginalURL, mimeType)
	filename := sha256Hex
	if ext != "" {
		filename += "." + ext
	}
	localPath := filepath.Join(w.assetsDir, filename)

	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		if err := os.WriteFile(localPath, data, 0o644); err != nil {
			w.fail(ctx, a.ID, core.TruncateError(err))
			return
		}
	}

	if err := w.store.MarkAttachmentCached(ctx, a.ID, localPath, mimeType, int64(len(data)), sha256Hex); err != nil {
		w.log.Error().Err(err).Str("attachment_id", a.ID).Msg("mark cached failed")
		return
	}

	// Only ever upgrade a "file" row to a more specific kind, matching the
	// original's kind = ?1 update (spec.md §4.1): a row already classified
	// image/pdf is never walked back down to file.
	if a.Kind == string(classify.KindFile) {
		promoted := classify.ClassifyKind("", a.OriginalURL, mimeType)
		if promoted == classify.KindImage && !decodesAsImage(data) {
			promoted = classify.KindFile
		}
		if promoted != classify.KindFile {
			if err := w.store.PromoteAttachmentKind(ctx, a.ID, string(promoted)); err != nil {
				w.log.Warn().Err(err).Str("attachment_id", a.ID).Msg("kind promotion failed")
			}
		}
	}
}

// decodesAsImage confirms bytes parse as a registered image format
// (png/jpeg/gif via the standard library, bmp/webp via golang.org/x/image),
// a belt-and-suspenders check over the MIME/extension heuristic above before
// upgrading a row's kind to image.
func decodesAsImage(data []byte) bool {
	_, _, err := image.DecodeConfig(bytes.NewReader(data))
	return err == nil
}

func (w *Worker) fail(ctx context.Context, attachmentID, reason string) {
	if err := w.store.MarkAttachmentFailed(ctx, attachmentID, reason); err != nil {
		w.log.Error().Err(err).Str("attachment_id", attachmentID).Msg("mark failed failed")
	}
}
