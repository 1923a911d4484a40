package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/iskan70/my-logistic-bot/internal/api"
	"github.com/iskan70/my-logistic-bot/internal/catalog"
	"github.com/iskan70/my-logistic-bot/internal/flow"
	"github.com/iskan70/my-logistic-bot/internal/genai"
	"github.com/iskan70/my-logistic-bot/internal/lockfile"
	"github.com/iskan70/my-logistic-bot/internal/messaging"
	"github.com/iskan70/my-logistic-bot/internal/recovery"
	"github.com/iskan70/my-logistic-bot/internal/session"
	"github.com/iskan70/my-logistic-bot/internal/sink"
	"github.com/iskan70/my-logistic-bot/internal/store"
	"github.com/iskan70/my-logistic-bot/internal/twiliowhatsapp"
	"github.com/iskan70/my-logistic-bot/internal/whatsapp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to WhatsApp and serve conversations",
	Long: `Starts the conversation engine on the configured transport together with the HTTP API
(health, metrics, statistics, customs calculator and the Twilio webhook).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadEnvironmentConfig()
		applyFlags(cmd, &cfg)
		if err := cfg.validate(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServeFlags(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("state-dir", "", "state directory for bot data (overrides $LOGIBOT_STATE_DIR)")
	f.String("db-dsn", "", "application database DSN, SQLite path or Postgres URL (overrides $DATABASE_URL)")
	f.String("whatsapp-dsn", "", "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)")
	f.String("qr-output", "", "path to write the login QR code")
	f.Bool("numeric-code", false, "print the raw login code instead of a QR code")
	f.String("openai-api-key", "", "OpenAI API key (overrides $OPENAI_API_KEY)")
	f.String("openai-model", "", "OpenAI chat model (overrides $OPENAI_MODEL)")
	f.String("api-addr", "", "API server address (overrides $API_ADDR)")
	f.String("transport", "", "whatsapp or twilio (overrides $TRANSPORT)")
	f.String("session-backend", "", "memory, redis or sql (overrides $SESSION_BACKEND)")
	f.String("sink", "", "store, sheets or none (overrides $SINK)")
	f.Duration("doc-batch-idle", 0, "idle time before a document batch is analyzed (overrides $DOC_BATCH_IDLE)")
}

func runServe(ctx context.Context, cfg Config) error {
	lock, err := lockfile.Acquire(cfg.StateDir, cfg.Transport)
	if err != nil {
		return err
	}
	defer lock.Release()

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	sessions, closeSessions, err := buildSessionStore(ctx, cfg, st)
	if err != nil {
		return err
	}
	defer closeSessions()

	engineOpts, err := buildEngineOptions(ctx, cfg, cat, st)
	if err != nil {
		return err
	}

	svc, webhook, disconnect, err := buildMessagingService(ctx, cfg)
	if err != nil {
		return err
	}
	defer disconnect()

	engine := flow.NewEngine(sessions, cat, messaging.NewSender(svc), engineOpts...)
	defer engine.Stop()

	if lister, ok := sessions.(session.Lister); ok && cfg.SessionBackend != SessionMemory {
		rm := recovery.NewManager(lister)
		rm.Register(engine)
		if err := rm.RecoverAll(ctx); err != nil {
			slog.Warn("Session recovery incomplete", "error", err)
		}
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s service: %w", cfg.Transport, err)
	}
	defer svc.Stop()

	rhOpts := []messaging.ResponseHandlerOption{messaging.WithTransportName(cfg.Transport)}
	if cfg.DatabaseURL != "" {
		rhOpts = append(rhOpts, messaging.WithDedup(st))
	}
	rh := messaging.NewResponseHandler(svc, engine, rhOpts...)
	rh.Start(ctx)
	defer rh.Wait()

	apiOpts := []api.Option{api.WithAddr(cfg.APIAddr), api.WithCatalog(cat), api.WithStats(st)}
	if webhook != nil {
		apiOpts = append(apiOpts, api.WithTwilioWebhook(webhook))
	}
	slog.Info("Bootstrapping logibot", "transport", cfg.Transport, "sessions", cfg.SessionBackend, "sink", cfg.Sink, "api_addr", cfg.APIAddr)
	return api.NewServer(apiOpts...).Run(ctx)
}

// buildSessionStore returns the session store for cfg.SessionBackend and its close func.
func buildSessionStore(ctx context.Context, cfg Config, st store.Store) (session.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.SessionBackend {
	case SessionRedis:
		rs := session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, session.WithTTL(cfg.SessionTTL))
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		slog.Debug("Using Redis session store", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL)
		return rs, rs.Close, nil
	case SessionSQL:
		slog.Debug("Using SQL session store")
		return session.NewSQLStore(st), noop, nil
	default:
		slog.Debug("Using in-memory session store")
		return session.NewMemoryStore(), noop, nil
	}
}

// buildSink returns the submission sink for cfg.Sink, nil for "none". Sheets records are
// also kept in the store so that /api/stats sees them.
func buildSink(ctx context.Context, cfg Config, st store.Store) (flow.Sink, error) {
	switch cfg.Sink {
	case SinkNone:
		return nil, nil
	case SinkSheets:
		var opts []sink.SheetsOption
		if cfg.GoogleCredentialsFile != "" {
			opts = append(opts, sink.WithCredentialsFile(cfg.GoogleCredentialsFile))
		}
		sheets, err := sink.NewSheetsSink(ctx, cfg.SheetID, opts...)
		if err != nil {
			return nil, err
		}
		return sink.Multi{sheets, sink.NewStoreSink(st)}, nil
	default:
		return sink.NewStoreSink(st), nil
	}
}

// buildEngineOptions wires the sink and, when an API key is configured, the language model.
func buildEngineOptions(ctx context.Context, cfg Config, cat *catalog.Catalog, st store.Store) ([]flow.Option, error) {
	opts := []flow.Option{flow.WithDocBatchIdle(cfg.DocBatchIdle)}

	s, err := buildSink(ctx, cfg, st)
	if err != nil {
		return nil, err
	}
	if s != nil {
		opts = append(opts, flow.WithSink(s))
	}

	if cfg.OpenAIKey == "" {
		slog.Warn("OPENAI_API_KEY not set; advisory lookup, consultant and document analysis are disabled")
		return opts, nil
	}
	genaiOpts := []genai.Option{genai.WithAPIKey(cfg.OpenAIKey), genai.WithDebugMode(cfg.AIDebug, cfg.StateDir)}
	if cfg.OpenAIModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(cfg.OpenAIModel))
	}
	client, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	assistant := genai.NewAssistant(client, cat.Prompts)
	return append(opts,
		flow.WithAdvisor(assistant),
		flow.WithConsultant(assistant),
		flow.WithDocAnalyzer(assistant),
	), nil
}

// buildMessagingService connects the configured transport. webhook is non-nil for Twilio.
func buildMessagingService(ctx context.Context, cfg Config) (messaging.Service, http.HandlerFunc, func(), error) {
	if cfg.Transport == TransportTwilio {
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(cfg.TwilioAccountSID),
			twiliowhatsapp.WithAuthToken(cfg.TwilioAuthToken),
			twiliowhatsapp.WithFromWhats(cfg.TwilioFrom),
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		var opts []messaging.TwilioOption
		if cfg.TwilioPublicURL != "" {
			opts = append(opts, messaging.WithSignatureValidation(client, cfg.TwilioPublicURL))
		} else {
			slog.Warn("TWILIO_WEBHOOK_URL not set; webhook signatures are not verified")
		}
		svc := messaging.NewTwilioService(client, opts...)
		return svc, svc.TwilioWebhookHandler, func() {}, nil
	}

	var waOpts []whatsapp.Option
	if cfg.WhatsAppDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(cfg.WhatsAppDSN))
	}
	if cfg.QRPath != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(cfg.QRPath))
	}
	if cfg.NumericCode {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	client, err := whatsapp.NewClient(ctx, waOpts...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
	}
	disconnect := func() {
		if wa := client.GetClient(); wa != nil {
			wa.Disconnect()
		}
	}
	return messaging.NewWhatsAppService(client), nil, disconnect, nil
}
