// Package sanitize cleans the raw turn list a live-capture extension
// submits before it reaches internal/ingest, per spec.md §4.7. Grounded on
// the teacher's HTML-to-text helpers (goquery-based fragment stripping) and
// the general "normalize, then drop what's left empty" shape of its
// message-cleanup pass in pkg/connector/client.go.
package sanitize

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ai-history/core/internal/core"
	"github.com/ai-history/core/internal/ingest"
)

// RawTurn is one turn as submitted by the browser extension, before any
// cleanup.
type RawTurn struct {
	Role            string
	ContentMarkdown string
	ThoughtMarkdown string
}

var vendorCanonicalHosts = map[string]bool{
	"chatgpt.com":         true,
	"gemini.google.com":   true,
	"bard.google.com":     true,
	"aistudio.google.com": true,
}

// CanonicalSourceURL strips query and fragment for known vendor hosts, and
// only the fragment for anything else, so repeated captures of the same
// page converge on the same source_conversation_id.
func CanonicalSourceURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	u.Fragment = ""
	if vendorCanonicalHosts[strings.ToLower(u.Hostname())] {
		u.RawQuery = ""
	}
	return u.String()
}

const attachmentOnlyMarker = "[attachment]"

var uiNoiseLines = map[string]bool{
	"more_vert":            true,
	"chevron_right":        true,
	"chevron_left":         true,
	"expand_more":          true,
	"model thoughts":       true,
	"skip to main content": true,
}

var geminiBoilerplateSubstrings = []string{
	"如果你想让我保存或删除我们对话中关于你的信息",
	"你需要先开启过往对话记录",
	"你也可以手动添加或更新你给gemini的指令",
	"从而定制gemini的回复",
	"ifyouwantmetosaveordeleteinformationfromourconversations",
	"youneedtoturnonchathistory",
	"youcanalsomanuallyaddorupdateyourinstructionsforgemini",
}

var geminiPrefixLines = []string{
	"you said",
	"gemini said",
}

var geminiThoughtIDRE = regexp.MustCompile(`^显示思路\s*ID[_\s]*[:：]?.*$`)

var (
	brRE        = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockCloseRE = regexp.MustCompile(`(?i)</(p|div)>`)
	blankRunRE  = regexp.MustCompile(`\n{3,}`)
)

// Sanitize runs the full C7 pipeline over a raw live-capture payload and
// hands back a source_conversation_id plus ready-to-ingest turns. Returns
// an error when no valid content survives.
func Sanitize(source, pageURL string, raw []RawTurn) (sourceConversationID string, turns []ingest.NormalizedTurn, err error) {
	sourceConversationID = CanonicalSourceURL(pageURL)

	for _, rt := range raw {
		content := normalizeMarkdown(rt.ContentMarkdown, rt.Role, source)
		content = stripGeminiPrefix(content, source)
		thought := rt.ThoughtMarkdown
		if source == "gemini" {
			thought = ""
		}

		hasAttachmentMarkup := strings.Contains(rt.ContentMarkdown, "![") || strings.Contains(rt.ContentMarkdown, "http")
		if content == "" {
			if hasAttachmentMarkup {
				content = attachmentOnlyMarker
			} else {
				continue
			}
		}

		nt := ingest.NormalizedTurn{
			Role:            rt.Role,
			ContentMarkdown: content,
		}
		if thought != "" {
			nt.ThoughtMarkdown = &thought
		}
		turns = append(turns, nt)
	}

	if len(turns) == 0 {
		return "", nil, core.NewInput("no_valid_content", "no valid content extracted")
	}
	return sourceConversationID, turns, nil
}

func normalizeMarkdown(markdown, role, source string) string {
	s := strings.ReplaceAll(markdown, "\r", "")
	s = strings.ReplaceAll(s, " ", " ")
	s = brRE.ReplaceAllString(s, "\n")
	s = blockCloseRE.ReplaceAllString(s, "\n")
	s = stripResidualTags(s)

	lines := strings.Split(s, "\n")
	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if uiNoiseLines[strings.ToLower(trimmed)] {
			continue
		}
		if geminiThoughtIDRE.MatchString(trimmed) {
			continue
		}
		kept = append(kept, line)
	}
	s = strings.Join(kept, "\n")

	if source == "gemini" && role == "assistant" {
		s = dropGeminiBoilerplateParagraphs(s)
	}

	s = blankRunRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// stripResidualTags removes any other HTML tags the extension's capture
// left behind, folding their text content back into the line.
func stripResidualTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}

func dropGeminiBoilerplateParagraphs(s string) string {
	paragraphs := strings.Split(s, "\n\n")
	var kept []string
	for _, p := range paragraphs {
		norm := strings.ToLower(strings.Join(strings.Fields(p), ""))
		boilerplate := false
		for _, marker := range geminiBoilerplateSubstrings {
			if strings.Contains(norm, strings.ToLower(strings.Join(strings.Fields(marker), ""))) {
				boilerplate = true
				break
			}
		}
		if !boilerplate {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

func stripGeminiPrefix(content, source string) string {
	if source != "gemini" {
		return content
	}
	lines := strings.Split(content, "\n")
	start := 0
	for start < len(lines) {
		trimmed := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(lines[start]), ":")))
		isPrefix := false
		for _, p := range geminiPrefixLines {
			if trimmed == p {
				isPrefix = true
				break
			}
		}
		if !isPrefix {
			break
		}
		start++
	}
	return strings.TrimSpace(strings.Join(lines[start:], "\n"))
}
