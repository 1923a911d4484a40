package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/iskan70/my-logistic-bot/internal/flow"
	"github.com/iskan70/my-logistic-bot/internal/util"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for bot state data
	DefaultStateDir = "/var/lib/logibot"
	// DefaultWhatsAppDBFileName is the whatsmeow device store inside the state directory
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultAPIAddr is the default listen address of the HTTP API
	DefaultAPIAddr = ":8080"
)

// Transport, session backend and sink names.
const (
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"

	SessionMemory = "memory"
	SessionRedis  = "redis"
	SessionSQL    = "sql"

	SinkStore  = "store"
	SinkSheets = "sheets"
	SinkNone   = "none"
)

// Config holds the resolved runtime configuration.
type Config struct {
	StateDir     string
	DatabaseURL  string
	WhatsAppDSN  string
	QRPath       string
	NumericCode  bool
	OpenAIKey    string
	OpenAIModel  string
	AIDebug      bool
	APIAddr      string
	Transport    string
	CatalogFile  string
	DocBatchIdle time.Duration

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioPublicURL  string

	SessionBackend string
	SessionTTL     time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	Sink                  string
	SheetID               string
	GoogleCredentialsFile string
}

// loadEnvironmentConfig loads configuration from environment variables and the .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	cfg := Config{
		StateDir:     util.GetEnv("LOGIBOT_STATE_DIR", DefaultStateDir),
		DatabaseURL:  util.GetEnv("DATABASE_URL", ""),
		WhatsAppDSN:  util.GetEnv("WHATSAPP_DB_DSN", ""),
		OpenAIKey:    util.GetEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  util.GetEnv("OPENAI_MODEL", ""),
		AIDebug:      util.ParseBoolEnv("AI_DEBUG", false),
		APIAddr:      util.GetEnv("API_ADDR", DefaultAPIAddr),
		Transport:    util.GetEnv("TRANSPORT", TransportWhatsApp),
		CatalogFile:  util.GetEnv("CATALOG_FILE", ""),
		DocBatchIdle: util.ParseDurationEnv("DOC_BATCH_IDLE", flow.DefaultDocBatchIdle),

		TwilioAccountSID: util.GetEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  util.GetEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:       util.GetEnv("TWILIO_FROM_NUMBER", ""),
		TwilioPublicURL:  util.GetEnv("TWILIO_WEBHOOK_URL", ""),

		SessionBackend: util.GetEnv("SESSION_BACKEND", SessionMemory),
		SessionTTL:     util.ParseDurationEnv("SESSION_TTL", 24*time.Hour),
		RedisAddr:      util.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  util.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:        util.ParseIntEnv("REDIS_DB", 0),

		Sink:                  util.GetEnv("SINK", SinkStore),
		SheetID:               util.GetEnv("SHEET_ID", ""),
		GoogleCredentialsFile: util.GetEnv("GOOGLE_CREDENTIALS_FILE", ""),
	}

	slog.Debug("environment variables loaded",
		"LOGIBOT_STATE_DIR", cfg.StateDir,
		"DATABASE_URL_SET", cfg.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", cfg.WhatsAppDSN != "",
		"OPENAI_API_KEY_SET", cfg.OpenAIKey != "",
		"TRANSPORT", cfg.Transport,
		"SESSION_BACKEND", cfg.SessionBackend,
		"SINK", cfg.Sink)
	return cfg
}

// applyFlags overrides cfg with every flag set explicitly on the command line.
func applyFlags(cmd *cobra.Command, cfg *Config) {
	fs := cmd.Flags()
	str := func(name string, dst *string) {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	str("state-dir", &cfg.StateDir)
	str("db-dsn", &cfg.DatabaseURL)
	str("whatsapp-dsn", &cfg.WhatsAppDSN)
	str("qr-output", &cfg.QRPath)
	str("openai-api-key", &cfg.OpenAIKey)
	str("openai-model", &cfg.OpenAIModel)
	str("api-addr", &cfg.APIAddr)
	str("transport", &cfg.Transport)
	str("catalog", &cfg.CatalogFile)
	str("session-backend", &cfg.SessionBackend)
	str("sink", &cfg.Sink)
	if fs.Changed("numeric-code") {
		cfg.NumericCode, _ = fs.GetBool("numeric-code")
	}
	if fs.Changed("doc-batch-idle") {
		cfg.DocBatchIdle, _ = fs.GetDuration("doc-batch-idle")
	}

	if cfg.WhatsAppDSN == "" {
		cfg.WhatsAppDSN = filepath.Join(cfg.StateDir, DefaultWhatsAppDBFileName)
	}
}

// validate checks the enumerated settings and the credentials each choice needs.
func (c Config) validate() error {
	switch c.Transport {
	case TransportWhatsApp:
	case TransportTwilio:
		if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioFrom == "" {
			return fmt.Errorf("transport %q requires TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER", c.Transport)
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	switch c.SessionBackend {
	case SessionMemory, SessionRedis, SessionSQL:
	default:
		return fmt.Errorf("unknown session backend %q", c.SessionBackend)
	}
	switch c.Sink {
	case SinkStore, SinkNone:
	case SinkSheets:
		if c.SheetID == "" {
			return fmt.Errorf("sink %q requires SHEET_ID", c.Sink)
		}
	default:
		return fmt.Errorf("unknown sink %q", c.Sink)
	}
	if c.DocBatchIdle <= 0 {
		return fmt.Errorf("document batch idle must be positive, got %v", c.DocBatchIdle)
	}
	return nil
}
