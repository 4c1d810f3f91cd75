package classify

import (
	"net/url"
	"strings"
)

// mimeByExtension is the authoritative table from spec.md §6.
var mimeByExtension = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"svg":  "image/svg+xml",
	"pdf":  "application/pdf",
	"md":   "text/markdown",
	"txt":  "text/plain",
	"csv":  "text/csv",
	"tsv":  "text/tab-separated-values",
	"json": "application/json",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

var extensionByMIME = map[string]string{
	"image/png":        "png",
	"image/jpeg":       "jpg",
	"image/webp":       "webp",
	"image/gif":        "gif",
	"image/bmp":        "bmp",
	"image/svg+xml":    "svg",
	"application/pdf":  "pdf",
	"text/markdown":    "md",
	"text/plain":       "txt",
	"text/csv":         "csv",
	"application/json": "json",
}

// InferMIME infers a MIME type from a URL's declared mediatype (data URLs)
// or extension.
func InferMIME(urlStr string) string {
	lower := strings.ToLower(urlStr)
	if strings.HasPrefix(lower, "data:") {
		rest := lower[len("data:"):]
		if comma := strings.Index(rest, ","); comma >= 0 {
			meta := rest[:comma]
			if semi := strings.Index(meta, ";"); semi >= 0 {
				meta = meta[:semi]
			}
			if meta != "" {
				return meta
			}
		}
	}
	ext := extensionOf(urlStr)
	if mime, ok := mimeByExtension[ext]; ok {
		return mime
	}
	return ""
}

// InferExtension computes a file extension from an explicit MIME hint,
// falling back to the URL's own extension/filename.
func InferExtension(urlStr, mimeType string) string {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	if m != "" {
		if ext, ok := extensionByMIME[m]; ok {
			return ext
		}
	}
	if ext := extensionOf(urlStr); ext != "" {
		return ext
	}
	if u, err := url.Parse(urlStr); err == nil {
		name := u.Query().Get("filename")
		if name != "" {
			if idx := strings.LastIndex(name, "."); idx >= 0 {
				return strings.ToLower(name[idx+1:])
			}
		}
	}
	return ""
}
