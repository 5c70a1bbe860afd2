package ingestion

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// ProcessedContent holds the results of content processing.
type ProcessedContent struct {
	MainHTML       string // The main HTML, cleaned and extracted.
	MainText       string // Plain text version of MainHTML.
	ExtractedTitle string // Title found by readability, may be empty.
}

// ContentProcessor cleans email HTML bodies so they can be stored and
// shown as documents.
type ContentProcessor struct {
	htmlPolicy      *bluemonday.Policy
	stripTagsPolicy *bluemonday.Policy
	baseURL         *url.URL
}

func NewContentProcessor() *ContentProcessor {
	return &ContentProcessor{
		htmlPolicy:      bluemonday.UGCPolicy(),
		stripTagsPolicy: bluemonday.StripTagsPolicy(),
		baseURL:         &url.URL{Scheme: "http", Host: "localhost"},
	}
}

// Process sanitizes rawHTML and extracts the main content. When
// readability finds nothing the sanitized HTML is used as is.
func (cp *ContentProcessor) Process(rawHTML string) (*ProcessedContent, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, fmt.Errorf("raw HTML content is empty")
	}

	cleanedHTML := cp.htmlPolicy.Sanitize(rawHTML)
	result := &ProcessedContent{}

	article, err := readability.FromReader(strings.NewReader(cleanedHTML), cp.baseURL)
	if err == nil && strings.TrimSpace(article.Content) != "" {
		result.MainHTML = article.Content
		result.MainText = article.TextContent
		result.ExtractedTitle = article.Title
	} else {
		if err != nil {
			slog.Debug("readability extraction failed, using sanitized HTML", "error", err)
		}
		result.MainHTML = cleanedHTML
		result.MainText = cp.stripTagsPolicy.Sanitize(cleanedHTML)
	}

	if strings.TrimSpace(result.MainHTML) == "" {
		return nil, fmt.Errorf("processed content is empty after cleaning")
	}
	return result, nil
}

// PlainText strips all markup from html.
func (cp *ContentProcessor) PlainText(html string) string {
	return cp.stripTagsPolicy.Sanitize(html)
}
