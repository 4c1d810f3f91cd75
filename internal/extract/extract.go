// Package extract pulls inline attachments and filename candidates out of
// message markdown, the way the teacher's attachment-tag regex passes
// (other_examples' task_conversation_attachment.go ParseAttachmentTags)
// scan message content for structured markers.
package extract

import (
	"regexp"
	"strings"

	"github.com/ai-history/core/internal/classify"
)

// Attachment is an inline attachment discovered in markdown text, prior to
// persistence (it carries no id/message_id yet).
type Attachment struct {
	Kind    classify.Kind
	URL     string
	MIME    string
	Virtual bool
}

var (
	imageSyntaxRE = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)
	linkSyntaxRE  = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+)\)`)
	bareURLRE     = regexp.MustCompile(`https?://[^\s]+`)
)

// ExtractInline runs the three markdown passes documented in spec.md §4.2:
// image syntax, link syntax, and bare URL tokens.
func ExtractInline(markdown string) []Attachment {
	var out []Attachment
	seen := make(map[string]bool)

	add := func(a Attachment) {
		if a.URL == "" || seen[a.URL] {
			return
		}
		seen[a.URL] = true
		out = append(out, a)
	}

	for _, m := range imageSyntaxRE.FindAllStringSubmatch(markdown, -1) {
		norm := classify.NormalizeURL(m[1])
		if norm == "" {
			continue
		}
		add(Attachment{Kind: classify.KindImage, URL: norm, MIME: classify.InferMIME(norm)})
	}

	for _, m := range linkSyntaxRE.FindAllStringSubmatch(markdown, -1) {
		label, rawURL := m[1], m[2]
		norm := classify.NormalizeURL(rawURL)
		if norm == "" || seen[norm] {
			continue
		}
		if classify.IsNavigationURL(norm) {
			continue
		}
		kind := classifyByLabel(label, norm)
		if kind == classify.KindFile && !classify.LooksLikeFileURL(norm) {
			continue
		}
		add(Attachment{Kind: kind, URL: norm, MIME: classify.InferMIME(norm)})
	}

	for _, rawURL := range bareURLRE.FindAllString(markdown, -1) {
		trimmed := trimSurroundingPunctuation(rawURL)
		norm := classify.NormalizeURL(trimmed)
		if norm == "" || seen[norm] {
			continue
		}
		if classify.IsNavigationURL(norm) {
			continue
		}
		kind := classify.ClassifyKind("", norm, "")
		if kind == classify.KindFile && !classify.LooksLikeFileURL(norm) {
			continue
		}
		add(Attachment{Kind: kind, URL: norm, MIME: classify.InferMIME(norm)})
	}

	return out
}

func classifyByLabel(label, urlStr string) classify.Kind {
	lower := strings.ToLower(label)
	if strings.Contains(lower, "pdf") {
		return classify.KindPDF
	}
	if strings.Contains(lower, "image") || strings.Contains(label, "图片") {
		return classify.KindImage
	}
	return classify.ClassifyKind("", urlStr, "")
}

func trimSurroundingPunctuation(s string) string {
	return strings.TrimRight(strings.TrimLeft(s, "([{<\"'"), ")]}>.,;:!?\"'")
}

var namedFileExtensions = map[string]bool{
	"pdf": true, "docx": true, "pptx": true, "xlsx": true, "xls": true,
	"csv": true, "doc": true, "ppt": true, "md": true,
	"png": true, "jpg": true, "jpeg": true, "webp": true, "gif": true,
	"bmp": true, "svg": true,
}

// boundaryChars are whitespace and punctuation, ASCII and common fullwidth,
// that delimit a filename candidate.
const boundaryChars = " \t\r\n,;:!?()[]{}<>\"'“”‘’、，。；：！？「」『』（）《》"

// ExtractNamedFileAttachments scans each line for filename candidates
// matching the closed extension set, per spec.md §4.2. Intended to be
// called only for user-role turns with no non-virtual attachment already
// recorded, per the precedence rule in spec.md §4.2 (enforced by callers
// in internal/ingest, not here).
func ExtractNamedFileAttachments(markdown string) []Attachment {
	var out []Attachment
	seen := make(map[string]bool)
	for _, line := range strings.Split(markdown, "\n") {
		for _, candidate := range splitCandidates(line) {
			if !isValidFilenameCandidate(candidate) {
				continue
			}
			if seen[candidate] {
				continue
			}
			seen[candidate] = true
			out = append(out, Attachment{
				Kind:    classify.ClassifyKind("", candidate, ""),
				URL:     classify.VirtualAttachmentURL(candidate),
				MIME:    classify.InferMIME(candidate),
				Virtual: true,
			})
		}
	}
	return out
}

func splitCandidates(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return strings.ContainsRune(boundaryChars, r)
	})
}

func isValidFilenameCandidate(candidate string) bool {
	n := len(candidate)
	if n < 4 || n > 180 {
		return false
	}
	if strings.ContainsAny(candidate, "/\\") {
		return false
	}
	if strings.HasPrefix(strings.ToLower(candidate), "www.") {
		return false
	}
	if strings.Contains(candidate, "://") {
		return false
	}
	idx := strings.LastIndex(candidate, ".")
	if idx < 0 || idx == len(candidate)-1 {
		return false
	}
	ext := strings.ToLower(candidate[idx+1:])
	return namedFileExtensions[ext]
}
