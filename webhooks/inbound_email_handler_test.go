package webhooks

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meinedokbox/dokbox/ingestion"
	"github.com/meinedokbox/dokbox/models"
	"github.com/meinedokbox/dokbox/webutil"
)

type stubProcessor struct {
	calls []ingestion.Message
	res   *ingestion.Result
	err   error
}

func (s *stubProcessor) Process(_ context.Context, msg ingestion.Message) (*ingestion.Result, error) {
	s.calls = append(s.calls, msg)
	return s.res, s.err
}

func postForm(t *testing.T, h *InboundEmailHandler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/inbound-email", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	webutil.MakeHandler(h.HandleInbound)(rr, req)
	return rr
}

func baseForm() url.Values {
	return url.Values{
		formFieldRecipient: {"tok@in.example.com"},
		formFieldSender:    {"anna@example.com"},
		formFieldSubject:   {"Rechnung"},
		formFieldBodyMIME:  {"From: anna@example.com\r\n\r\nhallo"},
	}
}

func TestHandleInboundAcknowledgesOutcomes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"stored", nil, http.StatusOK},
		{"unknown recipient", models.ErrNotFound, http.StatusOK},
		{"sender not allowed", models.ErrUnauthorized, http.StatusOK},
		{"bad mime", models.ErrInvalidFormat, http.StatusOK},
		{"no content", ingestion.ErrNoContent, http.StatusOK},
		{"storage failure", models.ErrUploadFailed, http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			proc := &stubProcessor{res: &ingestion.Result{}, err: tc.err}
			h := NewInboundEmailHandler(proc, "", 0)

			rr := postForm(t, h, baseForm())
			assert.Equal(t, tc.code, rr.Code)
			require.Len(t, proc.calls, 1)
			assert.Equal(t, "tok@in.example.com", proc.calls[0].Recipient)
			assert.Equal(t, "anna@example.com", proc.calls[0].EnvelopeSender)
		})
	}
}

func TestHandleInboundMissingFields(t *testing.T) {
	proc := &stubProcessor{}
	h := NewInboundEmailHandler(proc, "", 0)

	form := baseForm()
	form.Del(formFieldBodyMIME)
	rr := postForm(t, h, form)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	form = baseForm()
	form.Del(formFieldRecipient)
	rr = postForm(t, h, form)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, proc.calls)
}

func TestHandleInboundSignature(t *testing.T) {
	key := "key-secret"
	now := time.Unix(1_700_000_000, 0)
	proc := &stubProcessor{res: &ingestion.Result{}}
	h := NewInboundEmailHandler(proc, key, 0)
	h.now = func() time.Time { return now }

	signed := func(ts time.Time, token string) url.Values {
		form := baseForm()
		stamp := strconv.FormatInt(ts.Unix(), 10)
		form.Set(formFieldTimestamp, stamp)
		form.Set(formFieldToken, token)
		form.Set(formFieldSignature, hex.EncodeToString(Sign([]byte(key), stamp, token)))
		return form
	}

	rr := postForm(t, h, signed(now, "abc"))
	assert.Equal(t, http.StatusOK, rr.Code)

	tampered := signed(now, "abc")
	tampered.Set(formFieldToken, "abd")
	rr = postForm(t, h, tampered)
	assert.Equal(t, http.StatusNotAcceptable, rr.Code)

	rr = postForm(t, h, signed(now.Add(-time.Hour), "abc"))
	assert.Equal(t, http.StatusNotAcceptable, rr.Code)

	rr = postForm(t, h, baseForm())
	assert.Equal(t, http.StatusNotAcceptable, rr.Code)

	assert.Len(t, proc.calls, 1)
}

func TestHandleInboundTooLarge(t *testing.T) {
	proc := &stubProcessor{res: &ingestion.Result{}}
	h := NewInboundEmailHandler(proc, "", 64)

	form := baseForm()
	form.Set(formFieldBodyMIME, strings.Repeat("x", 1024))
	rr := postForm(t, h, form)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Empty(t, proc.calls)
}
