package documents

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	maxExcerptLength = 250
	untitledDocument = "Untitled document"
)

// excerptFromText creates a short summary from plain text content,
// preferring to cut at a sentence or word boundary.
func excerptFromText(plainText string) string {
	trimmed := strings.Join(strings.Fields(plainText), " ")
	runes := []rune(trimmed)
	if len(runes) <= maxExcerptLength {
		return trimmed
	}

	cut := string(runes[:maxExcerptLength])

	if lastPeriod := strings.LastIndex(cut, ". "); lastPeriod > 0 && lastPeriod > len(cut)-75 {
		return cut[:lastPeriod+1] + "..."
	}
	if lastSpace := strings.LastIndex(cut, " "); lastSpace > 0 && lastSpace > len(cut)-100 {
		return cut[:lastSpace] + "..."
	}
	return cut + "..."
}

// titleFromFilename turns "Rechnung_2024-03.pdf" into "Rechnung 2024 03".
func titleFromFilename(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if base == "." || base == "/" {
		return ""
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

// safeFilename strips any directory components a client may send and
// normalizes the name to NFC.
func safeFilename(filename string) string {
	base := filepath.Base(strings.ReplaceAll(norm.NFC.String(strings.TrimSpace(filename)), `\`, "/"))
	if base == "." || base == "/" || base == "" {
		return "document"
	}
	return base
}
