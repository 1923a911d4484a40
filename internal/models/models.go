// Package models defines the core data structures for the logistics bot.
//
// It includes inbound message events, delivery receipts, submission records and the
// JSON envelope used by the HTTP API. These types are shared across modules.
package models

import (
	"errors"
	"strings"
)

// Validation constants for inbound events
const (
	// MaxMessageBodyLength defines the maximum inbound message length accepted by the engine
	MaxMessageBodyLength = 4096
	// MaxAttachmentsPerEvent caps the number of media items carried by one inbound event
	MaxAttachmentsPerEvent = 10
)

// Error variables for better error handling and testability
var (
	ErrEmptyConversationID = errors.New("conversation id cannot be empty")
	ErrEmptySender         = errors.New("sender cannot be empty")
	ErrEmptyEvent          = errors.New("event carries neither text nor media")
	ErrBodyTooLong         = errors.New("message body exceeds maximum length")
	ErrTooManyAttachments  = errors.New("too many attachments in one event")
)

// MessageStatus represents the delivery state of an outbound message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message left the bot.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message reached the device.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates delivery failed.
	MessageStatusFailed MessageStatus = "failed"
)

// APIStatus represents the status values of API responses.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// Receipt represents a delivery or read receipt for an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Attachment is a media item sent by a participant. URL is either a fetchable https URL
// or a data: URL holding the inlined bytes.
type Attachment struct {
	URL      string `json:"url"`
	MIMEType string `json:"mime_type,omitempty"`
}

// IsImage reports whether the attachment can be passed to a vision model.
func (a Attachment) IsImage() bool {
	if a.MIMEType == "" {
		return strings.HasPrefix(a.URL, "data:image/") || strings.HasPrefix(a.URL, "http")
	}
	return strings.HasPrefix(a.MIMEType, "image/")
}

// Response is one inbound message event from a participant.
type Response struct {
	MessageID   string       `json:"message_id,omitempty"`
	From        string       `json:"from"`
	DisplayName string       `json:"display_name,omitempty"`
	Body        string       `json:"body"`
	Media       []Attachment `json:"media,omitempty"`
	Time        int64        `json:"time"`
}

// Validate checks that a Response can be routed to the conversation engine.
func (r Response) Validate() error {
	if r.From == "" {
		return ErrEmptySender
	}
	if strings.TrimSpace(r.Body) == "" && len(r.Media) == 0 {
		return ErrEmptyEvent
	}
	if len(r.Body) > MaxMessageBodyLength {
		return ErrBodyTooLong
	}
	if len(r.Media) > MaxAttachmentsPerEvent {
		return ErrTooManyAttachments
	}
	return nil
}

// APIResponse represents the standard JSON response format for all API endpoints.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a success response with the given result.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a success response with a message and result.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error response with the given message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// Choice is one option of a closed-set question. Value is what the engine receives back;
// Label is what the participant sees.
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}
