// Package smtpd receives inbound mail directly over SMTP and feeds it into
// the same ingestion path the webhook uses.
package smtpd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/meinedokbox/dokbox/ingestion"
	"github.com/meinedokbox/dokbox/models"
	"github.com/meinedokbox/dokbox/whitelist"
)

// maxRecipients caps RCPT commands per transaction.
const maxRecipients = 20

// Processor is the part of ingestion.Processor the SMTP session needs.
type Processor interface {
	CheckRecipient(ctx context.Context, recipient string) (*models.User, error)
	Process(ctx context.Context, msg ingestion.Message) (*ingestion.Result, error)
}

var (
	errUnknownMailbox = &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 1, 1},
		Message:      "No such mailbox",
	}
	errSenderRejected = &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 7, 1},
		Message:      "Sender not allowed for this mailbox",
	}
	errTemporary = &smtp.SMTPError{
		Code:         451,
		EnhancedCode: smtp.EnhancedCode{4, 3, 0},
		Message:      "Temporary failure, try again later",
	}
	errNoRecipients = &smtp.SMTPError{
		Code:         554,
		EnhancedCode: smtp.EnhancedCode{5, 5, 1},
		Message:      "No valid recipients",
	}
)

type Backend struct {
	processor Processor
	timeout   time.Duration
	logger    *slog.Logger
}

// NewBackend creates a backend whose sessions run each message through
// processor, allowing timeout per message.
func NewBackend(processor Processor, timeout time.Duration) *Backend {
	return &Backend{
		processor: processor,
		timeout:   timeout,
		logger:    slog.With("component", "smtpd"),
	}
}

func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	remote := ""
	if c != nil && c.Conn() != nil {
		remote = c.Conn().RemoteAddr().String()
	}
	return &Session{backend: b, logger: b.logger.With("remote", remote)}, nil
}

// NewServer builds an SMTP server for addr announcing domain.
func NewServer(b *Backend, addr, domain string, maxMessageBytes int64) *smtp.Server {
	s := smtp.NewServer(b)
	s.Addr = addr
	s.Domain = domain
	s.MaxMessageBytes = maxMessageBytes
	s.MaxRecipients = maxRecipients
	s.ReadTimeout = 60 * time.Second
	s.WriteTimeout = 60 * time.Second
	return s
}

// Session holds one SMTP transaction. Recipients are checked at RCPT time,
// senders at DATA time against each recipient owner's whitelist.
type Session struct {
	backend    *Backend
	logger     *slog.Logger
	from       string
	recipients []string
}

func (s *Session) Mail(from string, _ *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *Session) Rcpt(to string, _ *smtp.RcptOptions) error {
	ctx, cancel := s.context()
	defer cancel()

	if _, err := s.backend.processor.CheckRecipient(ctx, to); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("rejecting unknown recipient", "recipient", to)
			return errUnknownMailbox
		}
		s.logger.Error("recipient lookup failed", "recipient", to, "error", err)
		return errTemporary
	}
	s.recipients = append(s.recipients, to)
	return nil
}

func (s *Session) Data(r io.Reader) error {
	if len(s.recipients) == 0 {
		return errNoRecipients
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading message: %w", err)
	}

	var stored, rejected, failed int
	for _, rcpt := range s.recipients {
		ctx, cancel := s.context()
		res, err := s.backend.processor.Process(ctx, ingestion.Message{
			Recipient:      rcpt,
			EnvelopeSender: whitelist.Normalize(s.from),
			Raw:            raw,
		})
		cancel()

		switch {
		case err == nil:
			stored += len(res.Documents)
		case errors.Is(err, ingestion.ErrNoContent):
		case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrNotFound):
			rejected++
		case errors.Is(err, models.ErrInvalidFormat):
			return &smtp.SMTPError{Code: 554, EnhancedCode: smtp.EnhancedCode{5, 6, 0}, Message: "Malformed message"}
		default:
			s.logger.Error("storing inbound message failed", "recipient", rcpt, "error", err)
			failed++
		}
	}

	s.logger.Info("smtp message processed", "from", s.from, "recipients", len(s.recipients), "stored", stored, "rejected", rejected, "failed", failed)
	if failed > 0 {
		return errTemporary
	}
	if rejected == len(s.recipients) {
		return errSenderRejected
	}
	return nil
}

func (s *Session) Reset() {
	s.from = ""
	s.recipients = nil
}

func (s *Session) Logout() error {
	return nil
}

func (s *Session) context() (context.Context, context.CancelFunc) {
	if s.backend.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), s.backend.timeout)
}
