package smtpd

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meinedokbox/dokbox/ingestion"
	"github.com/meinedokbox/dokbox/models"
)

type fakeProcessor struct {
	owners    map[string]string
	processed []ingestion.Message
	results   map[string]error
}

func (f *fakeProcessor) CheckRecipient(_ context.Context, recipient string) (*models.User, error) {
	id, ok := f.owners[recipient]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &models.User{ID: id}, nil
}

func (f *fakeProcessor) Process(_ context.Context, msg ingestion.Message) (*ingestion.Result, error) {
	f.processed = append(f.processed, msg)
	if err := f.results[msg.Recipient]; err != nil {
		return nil, err
	}
	return &ingestion.Result{OwnerID: f.owners[msg.Recipient], Documents: []*models.Document{{ID: "d1"}}}, nil
}

func newSession(p *fakeProcessor) *Session {
	s, _ := NewBackend(p, time.Second).NewSession(nil)
	return s.(*Session)
}

func smtpCode(t *testing.T, err error) int {
	t.Helper()
	var smtpErr *smtp.SMTPError
	require.True(t, errors.As(err, &smtpErr), "expected SMTPError, got %v", err)
	return smtpErr.Code
}

func TestRcptRejectsUnknownAddress(t *testing.T) {
	p := &fakeProcessor{owners: map[string]string{"tok@in.example.com": "u1"}}
	s := newSession(p)

	require.NoError(t, s.Mail("Anna@example.com", nil))
	assert.NoError(t, s.Rcpt("tok@in.example.com", nil))

	err := s.Rcpt("oldtoken@in.example.com", nil)
	assert.Equal(t, 550, smtpCode(t, err))
	assert.Equal(t, []string{"tok@in.example.com"}, s.recipients)
}

func TestDataStoresForAllowedSender(t *testing.T) {
	p := &fakeProcessor{owners: map[string]string{"tok@in.example.com": "u1"}}
	s := newSession(p)

	require.NoError(t, s.Mail("Anna@Example.com", nil))
	require.NoError(t, s.Rcpt("tok@in.example.com", nil))
	require.NoError(t, s.Data(strings.NewReader("From: anna@example.com\r\n\r\nhi")))

	require.Len(t, p.processed, 1)
	assert.Equal(t, "anna@example.com", p.processed[0].EnvelopeSender)
	assert.Equal(t, "tok@in.example.com", p.processed[0].Recipient)
}

func TestDataRejectsSenderNotAllowed(t *testing.T) {
	p := &fakeProcessor{
		owners:  map[string]string{"tok@in.example.com": "u1"},
		results: map[string]error{"tok@in.example.com": models.ErrUnauthorized},
	}
	s := newSession(p)

	require.NoError(t, s.Mail("mallory@example.com", nil))
	require.NoError(t, s.Rcpt("tok@in.example.com", nil))
	err := s.Data(strings.NewReader("From: mallory@example.com\r\n\r\nhi"))
	assert.Equal(t, 550, smtpCode(t, err))
}

func TestDataStorageFailureIsTemporary(t *testing.T) {
	p := &fakeProcessor{
		owners:  map[string]string{"tok@in.example.com": "u1"},
		results: map[string]error{"tok@in.example.com": models.ErrUploadFailed},
	}
	s := newSession(p)

	require.NoError(t, s.Rcpt("tok@in.example.com", nil))
	err := s.Data(strings.NewReader("x"))
	assert.Equal(t, 451, smtpCode(t, err))
}

func TestDataMixedRecipients(t *testing.T) {
	p := &fakeProcessor{
		owners:  map[string]string{"a@in.example.com": "u1", "b@in.example.com": "u2"},
		results: map[string]error{"b@in.example.com": models.ErrUnauthorized},
	}
	s := newSession(p)

	require.NoError(t, s.Rcpt("a@in.example.com", nil))
	require.NoError(t, s.Rcpt("b@in.example.com", nil))
	assert.NoError(t, s.Data(strings.NewReader("x")))
	assert.Len(t, p.processed, 2)
}

func TestDataWithoutRecipients(t *testing.T) {
	s := newSession(&fakeProcessor{})
	assert.Equal(t, 554, smtpCode(t, s.Data(strings.NewReader("x"))))
}

func TestReset(t *testing.T) {
	p := &fakeProcessor{owners: map[string]string{"tok@in.example.com": "u1"}}
	s := newSession(p)
	require.NoError(t, s.Mail("a@example.com", nil))
	require.NoError(t, s.Rcpt("tok@in.example.com", nil))

	s.Reset()
	assert.Empty(t, s.from)
	assert.Empty(t, s.recipients)
}
