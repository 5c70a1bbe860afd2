// Package ingestion turns inbound emails into documents. Every message is
// checked against the owner's whitelist before anything is stored.
package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/meinedokbox/dokbox/documents"
	"github.com/meinedokbox/dokbox/models"
	"github.com/meinedokbox/dokbox/whitelist"
)

// ErrNoContent is returned for an accepted message that carries neither
// attachments nor a body.
var ErrNoContent = errors.New("message has no storable content")

// OwnerResolver maps a recipient to the owner of that inbound address.
type OwnerResolver interface {
	Resolve(ctx context.Context, recipient string) (*models.User, error)
}

// SenderGate decides whether a sender may deliver to an owner.
type SenderGate interface {
	IsAllowed(ctx context.Context, ownerID, sender string) (bool, error)
}

// DocumentStorer persists one document.
type DocumentStorer interface {
	Store(ctx context.Context, ownerID string, in documents.NewDocument) (*models.Document, error)
}

// Message is one inbound email as handed over by a transport.
type Message struct {
	Recipient      string
	EnvelopeSender string
	Subject        string
	Raw            []byte
}

// Result reports what happened to an accepted message.
type Result struct {
	OwnerID   string
	Sender    string
	MessageID string
	Documents []*models.Document
}

type Processor struct {
	owners    OwnerResolver
	gate      SenderGate
	docs      DocumentStorer
	processor *ContentProcessor
	logger    *slog.Logger
}

func NewProcessor(owners OwnerResolver, gate SenderGate, docs DocumentStorer) *Processor {
	return &Processor{
		owners:    owners,
		gate:      gate,
		docs:      docs,
		processor: NewContentProcessor(),
		logger:    slog.With("component", "ingestion"),
	}
}

// CheckRecipient resolves the owner of recipient without reading a
// message. Unknown and replaced addresses yield models.ErrNotFound.
func (p *Processor) CheckRecipient(ctx context.Context, recipient string) (*models.User, error) {
	return p.owners.Resolve(ctx, recipient)
}

// Process resolves the owner, parses the message, checks the sender
// against the owner's whitelist and stores every attachment. Without
// attachments the cleaned body is stored instead. Rejected messages store
// nothing and return models.ErrNotFound (unknown address) or
// models.ErrUnauthorized (sender not whitelisted).
func (p *Processor) Process(ctx context.Context, msg Message) (*Result, error) {
	owner, err := p.owners.Resolve(ctx, msg.Recipient)
	if err != nil {
		return nil, fmt.Errorf("resolving recipient: %w", err)
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(msg.Raw))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing MIME: %w", models.ErrInvalidFormat, err)
	}

	res := &Result{
		OwnerID:   owner.ID,
		Sender:    determineSender(env, msg.EnvelopeSender),
		MessageID: env.GetHeader("Message-ID"),
	}
	logger := p.logger.With("owner_id", owner.ID, "message_id", res.MessageID)

	if res.Sender == "" {
		logger.Warn("rejecting message without sender")
		return nil, fmt.Errorf("no sender: %w", models.ErrUnauthorized)
	}

	allowed, err := p.gate.IsAllowed(ctx, owner.ID, res.Sender)
	if err != nil {
		return nil, fmt.Errorf("checking whitelist: %w", err)
	}
	if !allowed {
		logger.Info("rejecting message from sender not on whitelist", "sender", res.Sender)
		return nil, fmt.Errorf("sender %s: %w", res.Sender, models.ErrUnauthorized)
	}

	subject := env.GetHeader("Subject")
	if subject == "" {
		subject = msg.Subject
	}

	parts := collectDocumentParts(env)
	if len(parts) == 0 {
		part, ok := p.bodyAsDocument(env, subject)
		if !ok {
			logger.Info("accepted message has no content", "sender", res.Sender)
			return res, ErrNoContent
		}
		parts = append(parts, part)
	}

	bodyText := strings.TrimSpace(env.Text)
	for _, part := range parts {
		text := part.Text
		switch {
		case text != "":
		case part.ContentType == "text/html":
			text = p.processor.PlainText(string(part.Content))
		case strings.HasPrefix(part.ContentType, "text/"):
			text = string(part.Content)
		case len(parts) == 1:
			text = bodyText
		}

		doc, err := p.docs.Store(ctx, owner.ID, documents.NewDocument{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Data:        part.Content,
			Source:      models.DocumentSourceEmail,
			SenderEmail: res.Sender,
			Subject:     subject,
			Text:        text,
		})
		if err != nil {
			return res, fmt.Errorf("storing %s: %w", part.FileName, err)
		}
		res.Documents = append(res.Documents, doc)
	}

	logger.Info("inbound email stored", "sender", res.Sender, "documents", len(res.Documents))
	return res, nil
}

// bodyAsDocument turns the message body into a document when there are no
// attachments: cleaned HTML if present, plain text otherwise.
func (p *Processor) bodyAsDocument(env *enmime.Envelope, subject string) (documentPart, bool) {
	name := bodyFileName(subject)

	if strings.TrimSpace(env.HTML) != "" {
		processed, err := p.processor.Process(env.HTML)
		if err == nil {
			title := name
			if subject == "" && processed.ExtractedTitle != "" {
				title = bodyFileName(processed.ExtractedTitle)
			}
			return documentPart{
				FileName:    title + ".html",
				ContentType: "text/html",
				Content:     []byte(processed.MainHTML),
				Text:        strings.TrimSpace(processed.MainText),
			}, true
		}
		p.logger.Debug("could not process HTML body, falling back to text", "error", err)
	}
	if text := strings.TrimSpace(env.Text); text != "" {
		return documentPart{FileName: name + ".txt", ContentType: "text/plain", Content: []byte(text)}, true
	}
	return documentPart{}, false
}

func bodyFileName(subject string) string {
	s := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(subject))
	if s == "" {
		return "email"
	}
	if r := []rune(s); len(r) > 80 {
		s = string(r[:80])
	}
	return s
}

// determineSender takes the Sender header, then From, then the envelope
// sender, and returns the normalized bare address.
func determineSender(env *enmime.Envelope, envelopeSender string) string {
	for _, header := range []string{"Sender", "From"} {
		list, err := env.AddressList(header)
		if err == nil && len(list) > 0 && list[0].Address != "" {
			return whitelist.Normalize(list[0].Address)
		}
	}
	if strings.TrimSpace(envelopeSender) == "" {
		return ""
	}
	addr := whitelist.SenderAddress(envelopeSender)
	if !strings.Contains(addr, "@") {
		return ""
	}
	return addr
}
