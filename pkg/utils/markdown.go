package utils

import (
	"regexp"
	"strings"
)

// Markup emitted by NormalizeMarkdown.
const (
	headerOpen  = `<h4 class="mt-4 mb-3">`
	headerClose = `</h4>`
	listOpen    = `<ul class="mb-3">`
	listClose   = `</ul>`
	paragraph   = `<br><br>`
)

var (
	headerPattern = regexp.MustCompile(`(?m)^[ \t]*#{2,}[ \t]+(.+?)[ \t]*$`)
	boldPattern   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	bulletPattern = regexp.MustCompile(`(?m)^[ \t]*[•\-][ \t]+(.*?)[ \t]*$`)
	listRun       = regexp.MustCompile(`(?:<li>.*?</li>\n?)+`)
	blankLines    = regexp.MustCompile(`\n{3,}`)
	newlineBefore = regexp.MustCompile(`\n+(<h4|<ul|<li|</ul>)`)
	newlineAfter  = regexp.MustCompile(`(</h4>|</ul>|</li>)\n+`)
	bareAmpersand = regexp.MustCompile(`&(#[0-9]+;|#x[0-9a-fA-F]+;|[a-zA-Z][a-zA-Z0-9]*;)?`)
)

// legacyHeaders maps the fixed phrases older plain-text insights used as
// section headings to their display titles.
var legacyHeaders = []struct {
	phrase string
	title  string
}{
	{"Here are a few thought patterns", "Thought Patterns"},
	{"Here are a few gentle CBT strategies", "CBT Strategies"},
	{"And a little reflection for today:", "Reflection Prompt"},
}

// allowedTags are restored verbatim after escaping.
var allowedTags = []string{
	headerOpen, headerClose,
	listOpen, listClose,
	"<li>", "</li>",
	"<strong>", "</strong>",
	"<br>",
}

// NormalizeMarkdown converts the markdown-ish text produced for journal
// insights into display HTML. It understands "##" headers, "**bold**" and
// "•"/"-" bullets, and falls back to the legacy plain-text section phrases
// when no markdown is present. Normalizing its own output is a no-op.
func NormalizeMarkdown(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = escapeHTML(text)

	hasMarkdown := hasMarkdownMarkers(text)

	text = headerPattern.ReplaceAllString(text, headerOpen+"$1"+headerClose)
	text = boldPattern.ReplaceAllString(text, "<strong>$1</strong>")
	text = bulletPattern.ReplaceAllString(text, "<li>$1</li>")
	text = wrapListRuns(text)

	if !hasMarkdown {
		for _, h := range legacyHeaders {
			text = strings.ReplaceAll(text, h.phrase, headerOpen+h.title+headerClose)
		}
	}

	text = paragraphBreaks(text)
	text = newlineBefore.ReplaceAllString(text, "$1")
	text = newlineAfter.ReplaceAllString(text, "$1")

	return text
}

func hasMarkdownMarkers(text string) bool {
	for _, marker := range []string{"##", "**", "•", headerOpen, "<strong>", "<li>"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// escapeHTML escapes angle brackets and bare ampersands. Existing entities
// are left alone, and only the normalizer's own tags written with a literal
// "<" pass through, so escaped markup stays escaped and repeated passes are stable.
func escapeHTML(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for text != "" {
		at, tag := nextAllowedTag(text)
		if at < 0 {
			b.WriteString(escapeSegment(text))
			break
		}
		b.WriteString(escapeSegment(text[:at]))
		b.WriteString(tag)
		text = text[at+len(tag):]
	}
	return b.String()
}

func nextAllowedTag(text string) (int, string) {
	at, found := -1, ""
	for _, tag := range allowedTags {
		if i := strings.Index(text, tag); i >= 0 && (at < 0 || i < at) {
			at, found = i, tag
		}
	}
	return at, found
}

func escapeSegment(text string) string {
	text = bareAmpersand.ReplaceAllStringFunc(text, func(m string) string {
		if m == "&" {
			return "&amp;"
		}
		return m
	})
	text = strings.ReplaceAll(text, "<", "&lt;")
	return strings.ReplaceAll(text, ">", "&gt;")
}

// wrapListRuns wraps each contiguous run of list items in a single list,
// skipping runs that already sit directly inside one.
func wrapListRuns(text string) string {
	matches := listRun.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		b.WriteString(text[last:start])
		run := text[start:end]
		if strings.HasSuffix(strings.TrimRight(text[:start], " \t\n"), listOpen) {
			b.WriteString(run)
		} else {
			b.WriteString(listOpen + "\n" + run + listClose)
		}
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

// paragraphBreaks turns each blank-line run into one <br><br> except directly
// after a header or directly before a list.
func paragraphBreaks(text string) string {
	text = blankLines.ReplaceAllString(text, "\n\n")

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		if strings.HasPrefix(text[i:], "\n\n") &&
			!strings.HasSuffix(text[:i], headerClose) &&
			!strings.HasPrefix(text[i+2:], "<ul") {
			b.WriteString(paragraph)
			i += 2
			continue
		}
		b.WriteByte(text[i])
		i++
	}
	return b.String()
}
