package ingest

import (
	"strings"
)

const maxTitleLen = 100

// TruncateText cuts a string to maxLen runes, appending an ellipsis if truncated.
func TruncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	if maxLen > 3 {
		return string(runes[:maxLen-3]) + "..."
	}
	return string(runes[:maxLen])
}

// Clip cuts a string to at most maxLen runes without an ellipsis.
func Clip(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen])
}

// cellString trims a cell and blanks spreadsheet null placeholders.
func cellString(v string) string {
	s := strings.TrimSpace(v)
	switch strings.ToLower(s) {
	case "none", "nan", "nat", "null":
		return ""
	}
	return s
}

// firstSentence returns text up to the first '.', '!' or newline.
func firstSentence(text string) string {
	if i := strings.IndexAny(text, ".!\n"); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// deriveTitle builds a title from the first sentence of context, falling
// back to the first sentence of whatHappened.
func deriveTitle(context, whatHappened string) string {
	if t := firstSentence(context); t != "" {
		return TruncateText(t, maxTitleLen)
	}
	return TruncateText(firstSentence(whatHappened), maxTitleLen)
}

// buildDescription joins context, the what-happened account and the
// worked/didn't-work notes into paragraphs.
func buildDescription(context, whatHappened, worked string) string {
	description := context
	if whatHappened != "" && whatHappened != context {
		if description != "" {
			description += "\n\nWhat happened: " + whatHappened
		} else {
			description = whatHappened
		}
	}
	if worked != "" {
		if description != "" {
			description += "\n\n"
		}
		description += worked
	}
	return description
}

func joinNonEmpty(parts []string, sep string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
