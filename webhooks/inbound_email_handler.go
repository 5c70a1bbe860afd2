package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/meinedokbox/dokbox/ingestion"
	"github.com/meinedokbox/dokbox/models"
	"github.com/meinedokbox/dokbox/webutil"
)

// Form fields posted by Mailgun's "store and notify" / forward-MIME routes.
const (
	formFieldRecipient = "recipient"
	formFieldSender    = "sender"
	formFieldSubject   = "subject"
	formFieldBodyMIME  = "body-mime"
	formFieldTimestamp = "timestamp"
	formFieldToken     = "token"
	formFieldSignature = "signature"
)

// maxSignatureAge bounds replayed webhook calls.
const maxSignatureAge = 15 * time.Minute

// MessageProcessor runs one inbound message through the whitelist gate and
// into storage.
type MessageProcessor interface {
	Process(ctx context.Context, msg ingestion.Message) (*ingestion.Result, error)
}

type InboundEmailHandler struct {
	processor  MessageProcessor
	signingKey []byte
	maxBytes   int64
	now        func() time.Time
	logger     *slog.Logger
}

// NewInboundEmailHandler creates the webhook handler. An empty signingKey
// disables signature verification.
func NewInboundEmailHandler(processor MessageProcessor, signingKey string, maxBytes int64) *InboundEmailHandler {
	return &InboundEmailHandler{
		processor:  processor,
		signingKey: []byte(signingKey),
		maxBytes:   maxBytes,
		now:        time.Now,
		logger:     slog.With("component", "inbound-webhook"),
	}
}

// HandleInbound accepts one forwarded email. Mail that is rejected by the
// gate, addressed to an unknown or replaced address, or not parseable is
// acknowledged with 200 so the provider does not retry it. Only storage
// failures produce a 5xx.
func (h *InboundEmailHandler) HandleInbound(w http.ResponseWriter, r *http.Request) error {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	data, err := parseWebhookRequest(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return webutil.NewHTTPErrorWrap(http.StatusRequestEntityTooLarge, "Message too large", err)
		}
		return webutil.ErrBadRequestWrap(err.Error(), err)
	}

	if len(h.signingKey) > 0 {
		if err := h.verifySignature(data); err != nil {
			h.logger.Warn("rejecting webhook with invalid signature", "error", err)
			return webutil.NewHTTPErrorWrap(http.StatusNotAcceptable, "Invalid signature", err)
		}
	}

	res, err := h.processor.Process(r.Context(), ingestion.Message{
		Recipient:      data.Recipient,
		EnvelopeSender: data.Sender,
		Subject:        data.Subject,
		Raw:            []byte(data.RawMIME),
	})
	switch {
	case err == nil:
		acknowledge(w, fmt.Sprintf("stored %d document(s)", len(res.Documents)))
		return nil
	case errors.Is(err, models.ErrNotFound):
		h.logger.Info("dropping email for unknown address", "recipient", data.Recipient)
		acknowledge(w, "unknown recipient")
		return nil
	case errors.Is(err, models.ErrUnauthorized):
		acknowledge(w, "sender not allowed")
		return nil
	case errors.Is(err, models.ErrInvalidFormat):
		h.logger.Warn("dropping unparseable email", "recipient", data.Recipient, "error", err)
		acknowledge(w, "unparseable message")
		return nil
	case errors.Is(err, ingestion.ErrNoContent):
		acknowledge(w, "no content")
		return nil
	default:
		return webutil.ErrServiceUnavailableWrap("Could not store email, please retry", err)
	}
}

type webhookInputData struct {
	RawMIME   string
	Recipient string
	Sender    string
	Subject   string
	Timestamp string
	Token     string
	Signature string
}

func parseWebhookRequest(r *http.Request) (webhookInputData, error) {
	var data webhookInputData
	var err error
	if strings.HasPrefix(r.Header.Get(webutil.HeaderContentType), "multipart/") {
		err = r.ParseMultipartForm(32 << 20)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return data, fmt.Errorf("failed to parse form data: %w", err)
	}
	data.RawMIME = r.FormValue(formFieldBodyMIME)
	data.Recipient = r.FormValue(formFieldRecipient)
	data.Sender = r.FormValue(formFieldSender)
	data.Subject = r.FormValue(formFieldSubject)
	data.Timestamp = r.FormValue(formFieldTimestamp)
	data.Token = r.FormValue(formFieldToken)
	data.Signature = r.FormValue(formFieldSignature)

	if data.RawMIME == "" {
		return data, errors.New("missing raw email content in webhook payload")
	}
	if data.Recipient == "" {
		return data, errors.New("missing recipient information in webhook")
	}
	return data, nil
}

// verifySignature checks hex(HMAC-SHA256(key, timestamp+token)).
func (h *InboundEmailHandler) verifySignature(data webhookInputData) error {
	if data.Timestamp == "" || data.Token == "" || data.Signature == "" {
		return errors.New("missing signature fields")
	}
	ts, err := strconv.ParseInt(data.Timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	if age := h.now().Sub(time.Unix(ts, 0)); age > maxSignatureAge || age < -maxSignatureAge {
		return fmt.Errorf("timestamp outside accepted window (%s)", age)
	}

	got, err := hex.DecodeString(data.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	if !hmac.Equal(got, Sign(h.signingKey, data.Timestamp, data.Token)) {
		return errors.New("signature mismatch")
	}
	return nil
}

// Sign computes the webhook signature for timestamp and token.
func Sign(key []byte, timestamp, token string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp + token))
	return mac.Sum(nil)
}

func acknowledge(w http.ResponseWriter, note string) {
	w.Header().Set(webutil.HeaderContentType, webutil.ContentTypeTextPlainUTF8)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK (" + note + ")"))
}
