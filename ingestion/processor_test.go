package ingestion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meinedokbox/dokbox/documents"
	"github.com/meinedokbox/dokbox/models"
)

type fakeResolver struct {
	users map[string]*models.User
}

func (f *fakeResolver) Resolve(_ context.Context, recipient string) (*models.User, error) {
	if u, ok := f.users[strings.ToLower(recipient)]; ok {
		return u, nil
	}
	return nil, models.ErrNotFound
}

type fakeGate struct {
	allowed map[string]bool
	err     error
}

func (f *fakeGate) IsAllowed(_ context.Context, ownerID, sender string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.allowed[ownerID+"|"+sender], nil
}

type recordingStorer struct {
	mu     sync.Mutex
	stored []documents.NewDocument
	err    error
}

func (r *recordingStorer) Store(_ context.Context, ownerID string, in documents.NewDocument) (*models.Document, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = append(r.stored, in)
	return &models.Document{ID: "doc-" + in.Filename, OwnerUserID: ownerID, Filename: in.Filename}, nil
}

func newTestProcessor() (*Processor, *recordingStorer, *fakeGate) {
	resolver := &fakeResolver{users: map[string]*models.User{
		"abc123@in.dokbox.test": {ID: "user-1", Email: "owner@example.com"},
	}}
	gate := &fakeGate{allowed: map[string]bool{"user-1|anna@example.com": true}}
	storer := &recordingStorer{}
	return NewProcessor(resolver, gate, storer), storer, gate
}

const mailWithAttachment = "From: Anna Example <Anna@Example.com>\r\n" +
	"To: abc123@in.dokbox.test\r\n" +
	"Subject: Rechnung Mai\r\n" +
	"Message-ID: <m1@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Anbei die Rechnung.\r\n" +
	"--b1\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"rechnung.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQKJcfsj6IK\r\n" +
	"--b1--\r\n"

const mailPlainBody = "From: anna@example.com\r\n" +
	"To: abc123@in.dokbox.test\r\n" +
	"Subject: Notiz\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Termin beim Zahnarzt am Montag.\r\n"

func TestProcessStoresAttachmentsFromWhitelistedSender(t *testing.T) {
	p, storer, _ := newTestProcessor()

	res, err := p.Process(context.Background(), Message{
		Recipient: "abc123@in.dokbox.test",
		Raw:       []byte(mailWithAttachment),
	})
	require.NoError(t, err)

	assert.Equal(t, "user-1", res.OwnerID)
	assert.Equal(t, "anna@example.com", res.Sender)
	require.Len(t, res.Documents, 1)
	require.Len(t, storer.stored, 1)

	doc := storer.stored[0]
	assert.Equal(t, "rechnung.pdf", doc.Filename)
	assert.Equal(t, models.DocumentSourceEmail, doc.Source)
	assert.Equal(t, "anna@example.com", doc.SenderEmail)
	assert.Equal(t, "Rechnung Mai", doc.Subject)
	assert.True(t, strings.HasPrefix(string(doc.Data), "%PDF"))
	assert.Equal(t, "Anbei die Rechnung.", doc.Text)
}

func TestProcessRejectsSenderNotOnWhitelist(t *testing.T) {
	p, storer, _ := newTestProcessor()
	raw := strings.Replace(mailWithAttachment, "Anna@Example.com", "mallory@example.com", 1)

	_, err := p.Process(context.Background(), Message{Recipient: "abc123@in.dokbox.test", Raw: []byte(raw)})
	require.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Empty(t, storer.stored)
}

func TestProcessRejectsUnknownRecipient(t *testing.T) {
	p, storer, _ := newTestProcessor()

	_, err := p.Process(context.Background(), Message{Recipient: "old-token@in.dokbox.test", Raw: []byte(mailWithAttachment)})
	require.ErrorIs(t, err, models.ErrNotFound)
	assert.Empty(t, storer.stored)
}

func TestProcessSenderHeaderTakesPrecedence(t *testing.T) {
	p, storer, _ := newTestProcessor()
	raw := "Sender: anna@example.com\r\n" + strings.Replace(mailPlainBody, "anna@example.com", "someone@else.org", 1)

	res, err := p.Process(context.Background(), Message{Recipient: "abc123@in.dokbox.test", Raw: []byte(raw)})
	require.NoError(t, err)
	assert.Equal(t, "anna@example.com", res.Sender)
	assert.Len(t, storer.stored, 1)
}

func TestProcessFallsBackToEnvelopeSender(t *testing.T) {
	p, storer, _ := newTestProcessor()
	raw := strings.Replace(mailPlainBody, "From: anna@example.com\r\n", "", 1)

	res, err := p.Process(context.Background(), Message{
		Recipient:      "abc123@in.dokbox.test",
		EnvelopeSender: "<ANNA@example.com>",
		Raw:            []byte(raw),
	})
	require.NoError(t, err)
	assert.Equal(t, "anna@example.com", res.Sender)
	assert.Len(t, storer.stored, 1)
}

func TestProcessStoresPlainBodyWithoutAttachments(t *testing.T) {
	p, storer, _ := newTestProcessor()

	_, err := p.Process(context.Background(), Message{Recipient: "abc123@in.dokbox.test", Raw: []byte(mailPlainBody)})
	require.NoError(t, err)
	require.Len(t, storer.stored, 1)
	assert.Equal(t, "Notiz.txt", storer.stored[0].Filename)
	assert.Equal(t, "text/plain", storer.stored[0].ContentType)
	assert.Contains(t, storer.stored[0].Text, "Zahnarzt")
}

func TestProcessNoContent(t *testing.T) {
	p, storer, _ := newTestProcessor()
	raw := "From: anna@example.com\r\nTo: abc123@in.dokbox.test\r\nSubject: leer\r\n\r\n"

	_, err := p.Process(context.Background(), Message{Recipient: "abc123@in.dokbox.test", Raw: []byte(raw)})
	require.ErrorIs(t, err, ErrNoContent)
	assert.Empty(t, storer.stored)
}

func TestProcessGateErrorStoresNothing(t *testing.T) {
	p, storer, gate := newTestProcessor()
	gate.err = errors.New("db down")

	_, err := p.Process(context.Background(), Message{Recipient: "abc123@in.dokbox.test", Raw: []byte(mailPlainBody)})
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrUnauthorized)
	assert.Empty(t, storer.stored)
}

func TestProcessStorageFailure(t *testing.T) {
	p, storer, _ := newTestProcessor()
	storer.err = models.ErrUploadFailed

	_, err := p.Process(context.Background(), Message{Recipient: "abc123@in.dokbox.test", Raw: []byte(mailWithAttachment)})
	require.ErrorIs(t, err, models.ErrUploadFailed)
}

func TestBodyFileName(t *testing.T) {
	assert.Equal(t, "email", bodyFileName("  "))
	assert.Equal(t, "a_b_c", bodyFileName("a/b:c"))
	assert.Len(t, []rune(bodyFileName(strings.Repeat("ä", 100))), 80)
}
