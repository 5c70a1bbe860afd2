package routehandlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/meinedokbox/dokbox/models"
	"github.com/meinedokbox/dokbox/webutil"
)

// multipartMemory is kept in memory per request; larger parts spill to
// temp files inside mime/multipart.
const multipartMemory = 32 << 20

// multipartOverhead covers boundaries and part headers on top of the file
// bytes themselves.
const multipartOverhead = 1 << 20

// readCandidates reads every file posted under any of fields, in order.
// maxFileBytes bounds each file; the body may carry maxFiles of them.
func readCandidates(w http.ResponseWriter, r *http.Request, maxFileBytes int64, maxFiles int, fields ...string) ([]models.UploadCandidate, error) {
	if maxFileBytes > 0 && maxFiles > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxFileBytes*int64(maxFiles)+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, webutil.NewHTTPErrorWrap(http.StatusRequestEntityTooLarge, "Upload too large", err)
		}
		return nil, webutil.ErrBadRequestWrap("Expected a multipart form upload", err)
	}
	defer r.MultipartForm.RemoveAll()

	var headers []*multipart.FileHeader
	for _, field := range fields {
		headers = append(headers, r.MultipartForm.File[field]...)
	}
	candidates := make([]models.UploadCandidate, 0, len(headers))
	for _, fh := range headers {
		if maxFileBytes > 0 && fh.Size > maxFileBytes {
			return nil, webutil.NewHTTPError(http.StatusRequestEntityTooLarge,
				fmt.Sprintf("%s is larger than the limit of %d MB per file", fh.Filename, maxFileBytes>>20))
		}
		data, err := readPart(fh)
		if err != nil {
			return nil, webutil.ErrBadRequestWrap(fmt.Sprintf("Could not read %s", fh.Filename), err)
		}
		candidates = append(candidates, models.UploadCandidate{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(webutil.HeaderContentType),
			SizeBytes:   int64(len(data)),
			Data:        data,
		})
	}
	return candidates, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
