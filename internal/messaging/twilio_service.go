package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/iskan70/my-logistic-bot/internal/models"
	"github.com/iskan70/my-logistic-bot/internal/twiliowhatsapp"
)

// SignatureValidator checks Twilio webhook signatures.
type SignatureValidator interface {
	ValidateSignature(fullURL string, form url.Values, signature string) bool
}

// TwilioService implements the Service interface using Twilio API
type TwilioService struct {
	*eventChannels
	client    twiliowhatsapp.TwilioWhatsAppSender
	validator SignatureValidator
	publicURL string
}

var _ Service = (*TwilioService)(nil)

// TwilioOption configures a TwilioService.
type TwilioOption func(*TwilioService)

// WithSignatureValidation rejects webhook requests whose X-Twilio-Signature does not match
// publicURL, the address Twilio is configured to post to.
func WithSignatureValidation(v SignatureValidator, publicURL string) TwilioOption {
	return func(s *TwilioService) {
		s.validator = v
		s.publicURL = publicURL
	}
}

// NewTwilioService creates a TwilioService around client.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender, opts ...TwilioOption) *TwilioService {
	s := &TwilioService{
		eventChannels: newEventChannels("TwilioService"),
		client:        client,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
// It removes all non-numeric characters and validates the result has at least 6 digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start is a no-op; inbound messages arrive through TwilioWebhookHandler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes channels and stops the service
func (s *TwilioService) Stop() error {
	if s.close() {
		slog.Info("TwilioService stopped and channels closed")
	}
	return nil
}

// SendMessage sends a message via Twilio and emits a receipt
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, "+"+canonicalTo, body); err != nil {
		return err
	}
	s.emitReceipt(models.Receipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// SendChoices sends body with its options rendered as a numbered list.
func (s *TwilioService) SendChoices(ctx context.Context, to string, body string, choices []models.Choice) error {
	return s.SendMessage(ctx, to, FormatChoices(body, choices))
}

// TwilioWebhookHandler handles inbound Twilio webhook requests.
// It parses incoming messages, inlines their media and emits them into Responses().
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService failed to parse webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if s.validator != nil && !s.validator.ValidateSignature(s.publicURL, r.PostForm, r.Header.Get("X-Twilio-Signature")) {
		slog.Warn("TwilioService webhook signature mismatch", "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	response, err := twiliowhatsapp.ParseWebhook(r.PostForm)
	if err == nil {
		err = response.Validate()
	}
	if err != nil {
		slog.Warn("TwilioService webhook rejected", "error", err)
		http.Error(w, fmt.Sprintf("Invalid message: %v", err), http.StatusBadRequest)
		return
	}

	response.Media = s.inlineMedia(r.Context(), response)
	if !s.emitResponse(response) {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// inlineMedia downloads each media item. Items that fail to download are dropped.
func (s *TwilioService) inlineMedia(ctx context.Context, r models.Response) []models.Attachment {
	if len(r.Media) == 0 {
		return nil
	}
	out := make([]models.Attachment, 0, len(r.Media))
	for _, m := range r.Media {
		att, err := s.client.FetchMedia(ctx, m.URL, m.MIMEType)
		if err != nil {
			slog.Error("TwilioService media download failed", "from", r.From, "error", err)
			continue
		}
		out = append(out, att)
	}
	return out
}
