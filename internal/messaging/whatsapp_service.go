package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/iskan70/my-logistic-bot/internal/models"
	"github.com/iskan70/my-logistic-bot/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	*eventChannels
	client   whatsapp.WhatsAppSender
	waClient *whatsapp.Client // access to the underlying client for event handling
}

var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService creates a new WhatsAppService wrapping the given WhatsAppSender.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	service := &WhatsAppService{
		eventChannels: newEventChannels("WhatsAppService"),
		client:        client,
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return service
}

// ValidateAndCanonicalizeRecipient reduces a phone number or JID user to its digits.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start registers the event handler on the underlying client.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
		return nil
	}
	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(ctx, v)
		case *events.Receipt:
			s.handleMessageReceipt(v)
		}
	})
	slog.Info("WhatsAppService event handler registered")
	return nil
}

// Stop closes the event channels.
func (s *WhatsAppService) Stop() error {
	if s.close() {
		slog.Info("WhatsAppService stopped and channels closed")
	}
	return nil
}

// SendMessage sends a message and emits a sent receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", canonicalTo)
		return err
	}
	s.emitReceipt(models.Receipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	slog.Debug("WhatsAppService message sent", "to", canonicalTo, "body_length", len(body))
	return nil
}

// SendChoices sends body with its options rendered as a numbered list.
func (s *WhatsAppService) SendChoices(ctx context.Context, to string, body string, choices []models.Choice) error {
	return s.SendMessage(ctx, to, FormatChoices(body, choices))
}

// handleIncomingMessage converts a text or image message into a Response. Images are
// downloaded and inlined so the vision model can read them.
func (s *WhatsAppService) handleIncomingMessage(ctx context.Context, evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}
	response := models.Response{
		MessageID:   evt.Info.ID,
		From:        evt.Info.Sender.User,
		DisplayName: evt.Info.PushName,
		Body:        whatsapp.MessageText(evt.Message),
		Time:        evt.Info.Timestamp.Unix(),
	}
	if img := evt.Message.GetImageMessage(); img != nil {
		att, err := s.client.DownloadImage(ctx, img)
		if err != nil {
			slog.Error("WhatsAppService image download failed", "from", response.From, "error", err)
		} else {
			response.Media = append(response.Media, att)
		}
	}
	if response.Body == "" && len(response.Media) == 0 {
		slog.Debug("WhatsAppService ignoring unsupported message", "from", response.From)
		return
	}
	s.emitResponse(response)
}

// handleMessageReceipt processes delivery and read receipts
func (s *WhatsAppService) handleMessageReceipt(evt *events.Receipt) {
	var status models.MessageStatus
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = models.MessageStatusDelivered
	case events.ReceiptTypeRead:
		status = models.MessageStatusRead
	default:
		return
	}
	s.emitReceipt(models.Receipt{To: evt.MessageSource.Chat.User, Status: status, Time: evt.Timestamp.Unix()})
}
