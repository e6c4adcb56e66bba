package reports

import (
	"regexp"
	"strings"
)

var (
	dedentRe   = regexp.MustCompile(`(?m)^[ \t]{1,12}`)
	boldRe     = regexp.MustCompile(`\*\*(.*?)\*\*`)
	bulletRe   = regexp.MustCompile(`(?m)^\*[ \t]+`)
	blanksRe   = regexp.MustCompile(`\n{3,}`)
	headerRe   = regexp.MustCompile(`(?m)^([^\n]+)\n([=\-]{3,})[ \t]*$`)
	hashHdrRe  = regexp.MustCompile(`(?m)^#{1,6}[ \t]*`)
	innerWSRe  = regexp.MustCompile(`[ \t]{2,}`)
	newlinesRe = regexp.MustCompile(`\r\n?`)
)

// CleanReportText normalizes a generated markdown-ish report into plain
// text suitable for export: consistent newlines, no markdown markers,
// underlined headers re-drawn to match their title length.
func CleanReportText(text string) string {
	text = newlinesRe.ReplaceAllString(text, "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")

	text = dedentRe.ReplaceAllString(text, "")
	text = boldRe.ReplaceAllString(text, "$1")
	text = bulletRe.ReplaceAllString(text, "- ")
	text = blanksRe.ReplaceAllString(text, "\n\n")

	text = headerRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := headerRe.FindStringSubmatch(match)
		title := strings.TrimSpace(parts[1])
		underline := parts[2]
		if strings.HasPrefix(underline, "=") {
			title = strings.ToUpper(title)
			return title + "\n" + strings.Repeat("=", len(title))
		}
		return title + "\n" + strings.Repeat("-", len(title))
	})

	text = hashHdrRe.ReplaceAllString(text, "")
	text = innerWSRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text) + "\n"
}
