// Package messaging connects the chat transports to the conversation engine: the Service
// abstraction, WhatsApp and Twilio implementations, choice rendering and inbound dispatch.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/iskan70/my-logistic-bot/internal/models"
)

// Constants for service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for receipt and response channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
	// MinRecipientDigits is the shortest phone number accepted as a recipient
	MinRecipientDigits = 6
	// ChoiceOptionFormat renders one numbered option below a message
	ChoiceOptionFormat = "\n%d. %s"
)

var (
	ErrServiceStopped = errors.New("messaging service stopped")
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
)

// phoneNumberRegex matches everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable message delivery abstraction.
// It supports sending messages, and provides channels for receipt and response events.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// SendChoices sends a message followed by its numbered options.
	SendChoices(ctx context.Context, to string, body string, choices []models.Choice) error

	// Start begins any background processing (e.g., event handlers).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Receipts returns a channel of receipt events (sent, delivered, read).
	Receipts() <-chan models.Receipt

	// Responses returns a channel of incoming participant responses.
	Responses() <-chan models.Response
}

// FormatChoices appends the options to body as a numbered list. The participant answers
// with the number or the label.
func FormatChoices(body string, choices []models.Choice) string {
	if len(choices) == 0 {
		return body
	}
	var sb strings.Builder
	sb.WriteString(body)
	if body != "" {
		sb.WriteString("\n")
	}
	for i, c := range choices {
		fmt.Fprintf(&sb, ChoiceOptionFormat, i+1, c.Label)
	}
	return sb.String()
}

// canonicalizePhone strips everything but digits and enforces a minimum length.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < MinRecipientDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, MinRecipientDigits)
	}
	return canonical, nil
}
