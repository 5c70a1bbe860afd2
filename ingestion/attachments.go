package ingestion

import (
	"mime"
	"strings"

	"github.com/jhillyerd/enmime"
)

// minInlineImageBytes filters out logos and tracking pixels embedded in
// HTML mails. Real attachments are always kept.
const minInlineImageBytes = 8 << 10

// ignoredContentTypes never become documents.
var ignoredContentTypes = map[string]bool{
	"application/pkcs7-signature":   true,
	"application/x-pkcs7-signature": true,
	"application/pgp-signature":     true,
	"application/ms-tnef":           true,
	"text/vcard":                    true,
	"text/x-vcard":                  true,
	"text/calendar":                 true,
}

// documentPart is a MIME part that will be stored as a document.
type documentPart struct {
	FileName    string
	ContentType string
	Content     []byte
	// Text is the extracted plain text, if known.
	Text string
}

// collectDocumentParts picks the parts of env worth storing: every real
// attachment, plus named inline parts that are not small images.
func collectDocumentParts(env *enmime.Envelope) []documentPart {
	var parts []documentPart
	for _, p := range env.Attachments {
		if dp, ok := toDocumentPart(p, false); ok {
			parts = append(parts, dp)
		}
	}
	for _, p := range env.Inlines {
		if dp, ok := toDocumentPart(p, true); ok {
			parts = append(parts, dp)
		}
	}
	return parts
}

func toDocumentPart(p *enmime.Part, inline bool) (documentPart, bool) {
	if p == nil || len(p.Content) == 0 {
		return documentPart{}, false
	}
	contentType := baseContentType(p.ContentType)
	if ignoredContentTypes[contentType] {
		return documentPart{}, false
	}
	if inline {
		if p.FileName == "" {
			return documentPart{}, false
		}
		if strings.HasPrefix(contentType, "image/") && len(p.Content) < minInlineImageBytes {
			return documentPart{}, false
		}
	}

	name := p.FileName
	if name == "" {
		name = "attachment" + extensionFor(contentType)
	}
	return documentPart{FileName: name, ContentType: contentType, Content: p.Content}, true
}

func baseContentType(ct string) string {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mediaType
}

// extensionFor guesses a file extension for unnamed parts.
func extensionFor(contentType string) string {
	switch contentType {
	case "application/pdf":
		return ".pdf"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
