package webutil

const (
	HeaderContentType        = "Content-Type"
	HeaderContentDisposition = "Content-Disposition"

	ContentTypeJSONUTF8      = "application/json; charset=utf-8"
	ContentTypeTextPlainUTF8 = "text/plain; charset=utf-8"
	ContentTypeHTMLUTF8      = "text/html; charset=utf-8"
	ContentTypeOctetStream   = "application/octet-stream"
)
