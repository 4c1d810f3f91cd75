// Package classify holds the pure URL normalization/classification
// predicates used by ingestion, the markdown extractor, and the cache
// worker. Nothing in this package does I/O.
package classify

import (
	"net/url"
	"path"
	"strings"
)

// Kind is the closed set of attachment kinds, modeled as a tagged value
// per spec.md §9 rather than a bare string.
type Kind string

const (
	KindImage Kind = "image"
	KindPDF   Kind = "pdf"
	KindFile  Kind = "file"
)

var imageExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "webp": true,
	"gif": true, "bmp": true, "svg": true,
}

var fileLikeExtensions = map[string]bool{
	"pdf": true, "docx": true, "pptx": true, "xlsx": true, "xls": true,
	"csv": true, "doc": true, "ppt": true, "md": true, "txt": true,
	"json": true, "tsv": true,
}

var vendorChatHosts = map[string]bool{
	"chatgpt.com":        true,
	"chat.openai.com":    true,
	"gemini.google.com":  true,
	"bard.google.com":    true,
	"aistudio.google.com": true,
	"claude.ai":          true,
}

var cloudDriveHosts = map[string]bool{
	"drive.google.com": true,
	"docs.google.com":  true,
}

// NormalizeURL accepts only http, https, data, and the app-private
// aihistory scheme. Surrounding whitespace and matching quote characters
// are stripped. Anything else normalizes to "".
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	trimmed = stripMatchingQuotes(trimmed)
	if trimmed == "" {
		return ""
	}
	scheme := urlScheme(trimmed)
	switch scheme {
	case "http", "https", "data", "aihistory":
		return trimmed
	default:
		return ""
	}
}

func stripMatchingQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

func urlScheme(raw string) string {
	idx := strings.Index(raw, ":")
	if idx <= 0 {
		return ""
	}
	scheme := raw[:idx]
	for _, r := range scheme {
		if !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') && r != '+' && r != '-' && r != '.' {
			return ""
		}
	}
	return strings.ToLower(scheme)
}

// ClassifyKind classifies an attachment by declared kind, MIME, and URL
// shape, in the precedence order documented in spec.md §4.1.
func ClassifyKind(rawKind, urlStr, mimeType string) Kind {
	declared := parseDeclaredKind(rawKind)
	if declared != "" {
		if declared == KindImage && (mimeCorroboratesImage(mimeType) || urlShapeImage(urlStr)) {
			return KindImage
		}
		if declared == KindPDF && (mimeCorroboratesPDF(mimeType) || urlShapePDF(urlStr)) {
			return KindPDF
		}
		if declared != KindImage && declared != KindPDF {
			return declared
		}
	}

	if mimeCorroboratesPDF(mimeType) {
		return KindPDF
	}
	if mimeCorroboratesImage(mimeType) {
		return KindImage
	}

	if urlShapeImage(urlStr) {
		return KindImage
	}
	if urlShapePDF(urlStr) {
		return KindPDF
	}

	return KindFile
}

func parseDeclaredKind(rawKind string) Kind {
	switch strings.ToLower(strings.TrimSpace(rawKind)) {
	case "pdf":
		return KindPDF
	case "image", "img", "photo", "picture":
		return KindImage
	case "file", "document", "doc":
		return KindFile
	default:
		return ""
	}
}

func mimeCorroboratesImage(mimeType string) bool {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	return strings.HasPrefix(m, "image/")
}

func mimeCorroboratesPDF(mimeType string) bool {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	return strings.HasSuffix(m, "/pdf")
}

func urlShapeImage(urlStr string) bool {
	lower := strings.ToLower(urlStr)
	if strings.HasPrefix(lower, "data:image/") {
		return true
	}
	if ext := extensionOf(urlStr); imageExtensions[ext] {
		return true
	}
	if fmt := queryToken(urlStr, "format"); imageExtensions[fmt] {
		return true
	}
	return false
}

func urlShapePDF(urlStr string) bool {
	lower := strings.ToLower(urlStr)
	if strings.HasSuffix(lower, ".pdf") {
		return true
	}
	if ext := extensionOf(urlStr); ext == "pdf" {
		return true
	}
	if queryToken(urlStr, "format") == "pdf" {
		return true
	}
	if strings.Contains(lower, "mime=application/pdf") || strings.Contains(lower, "mime=application%2fpdf") {
		return true
	}
	return false
}

func extensionOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	var p string
	if err == nil {
		p = u.Path
	} else {
		p = urlStr
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	return ext
}

func queryToken(urlStr, key string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get(key))
}

var vendorFilePathMarkers = []string{
	"/backend-api/files/",
	"/backend-api/estuary/content",
	"/api/files/",
	"/files/",
}

// LooksLikeFileURL is true for data URLs, virtual URLs, known cloud-drive
// file/doc URLs, known vendor backend file paths, URLs carrying
// download=/filename=/attachment= query tokens, image/pdf URLs, or known
// file-like extensions.
func LooksLikeFileURL(urlStr string) bool {
	lower := strings.ToLower(urlStr)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "aihistory:") {
		return true
	}
	if IsCloudDriveFileURL(urlStr) {
		return true
	}
	for _, marker := range vendorFilePathMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	if queryToken(urlStr, "download") != "" || queryToken(urlStr, "filename") != "" || queryToken(urlStr, "attachment") != "" {
		return true
	}
	if urlShapeImage(urlStr) || urlShapePDF(urlStr) {
		return true
	}
	if ext := extensionOf(urlStr); fileLikeExtensions[ext] {
		return true
	}
	return false
}

// IsCloudDriveFileURL reports whether the URL points at a known cloud-drive
// file/doc host (Google Drive/Docs). Used both by LooksLikeFileURL and by
// the cache worker's gemini/ai_studio skip rule (spec.md §4.6).
func IsCloudDriveFileURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	return cloudDriveHosts[strings.ToLower(u.Hostname())]
}

// IsNavigationURL is true when the host matches a known vendor chat host
// and the URL does not already pass the file/image/pdf tests, meaning it's
// almost certainly a chat-app UI hyperlink rather than a real attachment.
func IsNavigationURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	if !vendorChatHosts[strings.ToLower(u.Hostname())] {
		return false
	}
	return !LooksLikeFileURL(urlStr)
}

// VirtualAttachmentURL builds the aihistory://upload/<name> virtual URL
// used when a message references a filename but no real URL is known.
func VirtualAttachmentURL(name string) string {
	return "aihistory://upload/" + url.PathEscape(name)
}

// IsVirtualURL reports whether a (already-normalized) URL uses the
// app-private aihistory scheme.
func IsVirtualURL(urlStr string) bool {
	return strings.HasPrefix(strings.ToLower(urlStr), "aihistory:")
}

// IsDataURL reports whether the URL is a data: URL.
func IsDataURL(urlStr string) bool {
	return strings.HasPrefix(strings.ToLower(urlStr), "data:")
}
