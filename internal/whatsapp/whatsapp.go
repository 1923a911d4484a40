// Package whatsapp wraps the Whatsmeow client for WhatsApp integration.
//
// It provides methods for sending messages, downloading inbound images and handling
// WhatsApp events.
package whatsapp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/iskan70/my-logistic-bot/internal/models"
	"github.com/iskan70/my-logistic-bot/internal/store"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Constants for WhatsApp client configuration
const (
	// DefaultSQLitePath is the default path for the whatsmeow SQLite database
	DefaultSQLitePath = "/var/lib/logibot/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users
	JIDSuffix = "s.whatsapp.net"
	// MaxImageBytes caps the size of an inbound image forwarded to the vision model
	MaxImageBytes = 10 << 20
)

var (
	ErrNotInitialized = errors.New("whatsapp client not initialized")
	ErrImageTooLarge  = errors.New("image exceeds maximum size")
)

// WhatsAppSender is an interface for sending WhatsApp messages and fetching inbound media
// (for production and testing).
type WhatsAppSender interface {
	SendMessage(ctx context.Context, to string, body string) error
	DownloadImage(ctx context.Context, img *waE2E.ImageMessage) (models.Attachment, error)
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // use numeric login code instead of QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput instructs the client to write the login QR code to the specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode instructs the client to print the raw login code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// Client wraps the Whatsmeow client for modular use
type Client struct {
	waClient *whatsmeow.Client
}

var _ WhatsAppSender = (*Client)(nil)

// NewClient creates a WhatsApp client, logging in with a QR code when the device store
// holds no session yet.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("WhatsApp NewClient options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}

	dbDriver := store.DetectDSNType(dbDSN)
	if dbDriver == "sqlite3" && !HasForeignKeys(dbDSN) {
		slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled; "+
			"whatsmeow recommends adding '?_foreign_keys=on' to the connection string",
			"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
	}

	slog.Debug("WhatsApp NewClient initializing DB store", "driver", dbDriver)
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))

	if waClient.Store.ID == nil {
		slog.Info("WhatsApp login required; starting QR code flow")
		qrChan, _ := waClient.GetQRChannel(ctx)
		if err := waClient.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		writer := io.Writer(os.Stdout)
		if cfg.QRPath != "" {
			f, ferr := os.Create(cfg.QRPath)
			if ferr != nil {
				return nil, fmt.Errorf("failed to create QR file: %w", ferr)
			}
			defer f.Close()
			writer = f
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				if cfg.NumericCode {
					fmt.Fprintln(writer, evt.Code)
				} else {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
				}
				continue
			}
			slog.Info("WhatsApp login event", "event", evt.Event)
		}
	} else {
		slog.Debug("WhatsApp already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}
	slog.Info("WhatsApp client connected successfully")
	return &Client{waClient: waClient}, nil
}

// SendMessage sends a WhatsApp text message to the specified phone number (digits only).
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if c.waClient == nil || c.waClient.Store == nil {
		return ErrNotInitialized
	}
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}

	slog.Debug("Sending WhatsApp message", "to", to, "body_length", len(body))
	jid := types.NewJID(to, JIDSuffix)
	if _, err := c.waClient.SendMessage(ctx, jid, &waE2E.Message{Conversation: &body}); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	return nil
}

// DownloadImage fetches and decrypts an inbound image and returns it inlined as a data URL.
func (c *Client) DownloadImage(ctx context.Context, img *waE2E.ImageMessage) (models.Attachment, error) {
	if c.waClient == nil {
		return models.Attachment{}, ErrNotInitialized
	}
	if img.GetFileLength() > MaxImageBytes {
		return models.Attachment{}, fmt.Errorf("%w: %d bytes", ErrImageTooLarge, img.GetFileLength())
	}
	data, err := c.waClient.Download(ctx, img)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("failed to download image: %w", err)
	}
	mime := img.GetMimetype()
	if mime == "" {
		mime = "image/jpeg"
	}
	slog.Debug("WhatsApp image downloaded", "bytes", len(data), "mime", mime)
	return models.Attachment{URL: DataURL(mime, data), MIMEType: mime}, nil
}

// GetClient returns the underlying whatsmeow client for event handling
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// DataURL encodes data as an RFC 2397 base64 data URL.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// MessageText returns the text of a message: plain conversation, extended text or an
// image caption.
func MessageText(msg *waE2E.Message) string {
	switch {
	case msg == nil:
		return ""
	case msg.Conversation != nil:
		return msg.GetConversation()
	case msg.ExtendedTextMessage != nil:
		return msg.GetExtendedTextMessage().GetText()
	case msg.ImageMessage != nil:
		return msg.GetImageMessage().GetCaption()
	}
	return ""
}

// HasForeignKeys reports whether a SQLite DSN enables foreign keys.
func HasForeignKeys(dsn string) bool {
	return strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "foreign_keys")
}

// MockClient implements WhatsAppSender without a connection (for tests).
type MockClient struct {
	Sent   []string
	Images map[string][]byte
	Err    error
}

var _ WhatsAppSender = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(_ context.Context, to string, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, to+": "+body)
	return nil
}

// DownloadImage returns the bytes registered under the image's direct path.
func (m *MockClient) DownloadImage(_ context.Context, img *waE2E.ImageMessage) (models.Attachment, error) {
	data, ok := m.Images[img.GetDirectPath()]
	if !ok {
		return models.Attachment{}, fmt.Errorf("mock: no image at %q", img.GetDirectPath())
	}
	return models.Attachment{URL: DataURL(img.GetMimetype(), data), MIMEType: img.GetMimetype()}, nil
}
