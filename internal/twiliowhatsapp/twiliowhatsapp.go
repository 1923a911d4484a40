// Package twiliowhatsapp wraps the Twilio API for WhatsApp integration: outbound messages,
// inbound webhook parsing and signature checks, and media download.
package twiliowhatsapp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iskan70/my-logistic-bot/internal/models"
	"github.com/twilio/twilio-go"
	twilioClient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// WhatsAppPrefix marks WhatsApp addresses in Twilio's From/To fields.
const WhatsAppPrefix = "whatsapp:"

// MaxMediaBytes caps a single downloaded media item.
const MaxMediaBytes = 10 << 20

var (
	ErrMissingCredentials = errors.New("account SID and auth token must be provided")
	ErrMissingFrom        = errors.New("from number must be provided")
	ErrMediaTooLarge      = errors.New("media exceeds maximum size")
)

// TwilioWhatsAppSender sends WhatsApp messages through Twilio and fetches inbound media
// (for production and testing).
type TwilioWhatsAppSender interface {
	SendMessage(ctx context.Context, to string, body string) error
	FetchMedia(ctx context.Context, mediaURL, contentType string) (models.Attachment, error)
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
	HTTPClient *http.Client
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number, with or without the "whatsapp:" prefix.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// WithHTTPClient sets the client used to download inbound media.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	client     *twilio.RestClient
	validator  twilioClient.RequestValidator
	httpClient *http.Client
	accountSID string
	authToken  string
	fromWhats  string // WhatsApp number in "whatsapp:+1234567890" format
}

var _ TwilioWhatsAppSender = (*Client)(nil)

// NewClient creates a Twilio client. Missing options fall back to TWILIO_ACCOUNT_SID,
// TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.FromWhats == "" {
		return nil, ErrMissingFrom
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		}),
		validator:  twilioClient.NewRequestValidator(cfg.AuthToken),
		httpClient: cfg.HTTPClient,
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromWhats:  WhatsAppAddress(cfg.FromWhats),
	}, nil
}

// SendMessage sends a WhatsApp message using Twilio API. to is an E.164 number.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(WhatsAppAddress(to))
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	if resp.Sid != nil {
		slog.Debug("Twilio message sent", "to", to, "sid", *resp.Sid)
	}
	return nil
}

// FetchMedia downloads an inbound media item with the account credentials and returns it
// inlined as a data URL, since Twilio media URLs are not publicly readable.
func (c *Client) FetchMedia(ctx context.Context, mediaURL, contentType string) (models.Attachment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return models.Attachment{}, err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.Attachment{}, fmt.Errorf("failed to fetch media: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxMediaBytes+1))
	if err != nil {
		return models.Attachment{}, fmt.Errorf("failed to read media: %w", err)
	}
	if len(data) > MaxMediaBytes {
		return models.Attachment{}, ErrMediaTooLarge
	}
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	return models.Attachment{URL: DataURL(contentType, data), MIMEType: contentType}, nil
}

// ValidateSignature checks the X-Twilio-Signature of a webhook request against the full
// public URL Twilio posted to and its form parameters.
func (c *Client) ValidateSignature(fullURL string, form url.Values, signature string) bool {
	params := make(map[string]string, len(form))
	for k := range form {
		params[k] = form.Get(k)
	}
	return c.validator.Validate(fullURL, params, signature)
}

// ParseWebhook converts an inbound Twilio WhatsApp webhook form into a Response. Media
// items are returned with their Twilio URLs; FetchMedia inlines them.
func ParseWebhook(form url.Values) (models.Response, error) {
	from := strings.TrimPrefix(form.Get("From"), WhatsAppPrefix)
	if from == "" {
		return models.Response{}, models.ErrEmptySender
	}
	r := models.Response{
		MessageID:   form.Get("MessageSid"),
		From:        from,
		DisplayName: form.Get("ProfileName"),
		Body:        form.Get("Body"),
		Time:        time.Now().Unix(),
	}
	n, _ := strconv.Atoi(form.Get("NumMedia"))
	for i := 0; i < n && i < models.MaxAttachmentsPerEvent; i++ {
		u := form.Get(fmt.Sprintf("MediaUrl%d", i))
		if u == "" {
			continue
		}
		r.Media = append(r.Media, models.Attachment{URL: u, MIMEType: form.Get(fmt.Sprintf("MediaContentType%d", i))})
	}
	return r, nil
}

// WhatsAppAddress adds the "whatsapp:" prefix to a number if it is missing.
func WhatsAppAddress(number string) string {
	if strings.HasPrefix(number, WhatsAppPrefix) {
		return number
	}
	return WhatsAppPrefix + number
}

// DataURL encodes data as a base64 data URL.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// SentMessage is one message recorded by MockClient.
type SentMessage struct {
	To   string
	Body string
}

// MockClient records messages instead of calling Twilio (for tests).
type MockClient struct {
	SentMessages []SentMessage
	Media        map[string][]byte
}

var _ TwilioWhatsAppSender = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{SentMessages: []SentMessage{}}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}

// FetchMedia returns the bytes registered under mediaURL.
func (m *MockClient) FetchMedia(_ context.Context, mediaURL, contentType string) (models.Attachment, error) {
	data, ok := m.Media[mediaURL]
	if !ok {
		return models.Attachment{}, fmt.Errorf("mock: no media at %s", mediaURL)
	}
	return models.Attachment{URL: DataURL(contentType, data), MIMEType: contentType}, nil
}
