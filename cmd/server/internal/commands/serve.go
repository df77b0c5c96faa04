package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/otelconnect"
	"github.com/rs/zerolog"
	"github.com/saga-it/qyburn/internal/audit"
	"github.com/saga-it/qyburn/internal/bot"
	"github.com/saga-it/qyburn/internal/client"
	"github.com/saga-it/qyburn/internal/events"
	"github.com/saga-it/qyburn/internal/integrations"
	"github.com/saga-it/qyburn/internal/logger"
	"github.com/saga-it/qyburn/internal/notify"
	"github.com/saga-it/qyburn/internal/seed"
	"github.com/saga-it/qyburn/internal/server"
	"github.com/saga-it/qyburn/internal/store"
	memorystore "github.com/saga-it/qyburn/internal/store/memory"
	postgresstore "github.com/saga-it/qyburn/internal/store/postgres"
	"github.com/saga-it/qyburn/internal/telemetry"
	"github.com/saga-it/qyburn/internal/workflow"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
)

type ServeCmd struct {
	// Server configuration
	Listen          string        `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"QYBURN_LISTEN"`
	Cert            string        `help:"path to TLS cert file, plaintext HTTP/2 when empty" default:"" env:"QYBURN_TLS_CERT"`
	Key             string        `help:"path to TLS key file" default:"" env:"QYBURN_TLS_KEY"`
	ShutdownTimeout time.Duration `help:"grace period for in-flight requests on shutdown" default:"10s" env:"QYBURN_SHUTDOWN_TIMEOUT"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"QYBURN_CORS_ORIGINS"`

	// Observability
	Tracing     bool    `help:"enable tracing" default:"false" env:"QYBURN_TRACING"`
	SampleRatio float64 `help:"fraction of traces sampled when tracing is enabled" default:"1" env:"QYBURN_TRACE_SAMPLE_RATIO"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"QYBURN_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
	SeedFile      string             `help:"YAML catalog used to seed an empty store, built-in catalog when empty" default:"" env:"QYBURN_SEED_FILE"`
	NoSeed        bool               `help:"start with an empty store" default:"false" env:"QYBURN_NO_SEED"`

	// Upstream integrations, stubbed when unconfigured
	Graph     GraphFlags     `embed:"" prefix:"graph-"`
	Slack     SlackFlags     `embed:"" prefix:"slack-"`
	Anthropic AnthropicFlags `embed:"" prefix:"anthropic-"`

	RateLimit RateLimitFlags `embed:"" prefix:"rate-limit-"`
	SSE       SSEFlags       `embed:"" prefix:"sse-"`
}

type PostgresStoreFlags struct {
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	QueryTimeout int32 `help:"query timeout in seconds" default:"10"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`

	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"QYBURN_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

// GraphFlags configures the Microsoft Graph directory.
type GraphFlags struct {
	TenantID     string `help:"Entra ID tenant" env:"QYBURN_GRAPH_TENANT_ID"`
	ClientID     string `help:"app registration client ID" env:"QYBURN_GRAPH_CLIENT_ID"`
	ClientSecret string `help:"app registration client secret" env:"QYBURN_GRAPH_CLIENT_SECRET"`
	BaseURL      string `help:"Graph API base URL" default:"https://graph.microsoft.com/v1.0" env:"QYBURN_GRAPH_BASE_URL"`
	CacheDir     string `help:"directory for the Graph HTTP cache, in memory when empty" env:"QYBURN_GRAPH_CACHE_DIR"`
}

func (g GraphFlags) config() integrations.GraphConfig {
	return integrations.GraphConfig{
		TenantID:     g.TenantID,
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		BaseURL:      g.BaseURL,
		HTTPClient:   client.NewCachingHTTPClient(g.CacheDir),
	}
}

// SlackFlags configures outbound Slack messages.
type SlackFlags struct {
	BotToken string `help:"Slack bot token" env:"QYBURN_SLACK_BOT_TOKEN"`
	Channel  string `help:"channel for onboarding announcements" default:"#it-support" env:"QYBURN_SLACK_CHANNEL"`
}

// AnthropicFlags configures the chat model used for free-text questions.
type AnthropicFlags struct {
	APIKey    string `help:"Anthropic API key" env:"QYBURN_ANTHROPIC_API_KEY"`
	Model     string `help:"model name" default:"" env:"QYBURN_ANTHROPIC_MODEL"`
	MaxTokens int    `help:"maximum tokens per reply" default:"1024" env:"QYBURN_ANTHROPIC_MAX_TOKENS"`
}

// RateLimitFlags configures the per-caller bot limiter.
type RateLimitFlags struct {
	PerMinute float64 `help:"bot calls per caller per minute, zero disables limiting" default:"30" env:"QYBURN_RATE_LIMIT_PER_MINUTE"`
	Burst     int     `help:"burst size per caller" default:"5" env:"QYBURN_RATE_LIMIT_BURST"`
}

// SSEFlags configures the live event stream.
type SSEFlags struct {
	Heartbeat    time.Duration `help:"keepalive interval" default:"30s" env:"QYBURN_SSE_HEARTBEAT"`
	DemoActivity time.Duration `help:"synthetic activity interval, zero disables" default:"45s" env:"QYBURN_SSE_DEMO_ACTIVITY"`
	ClientBuffer int           `help:"events buffered per client before dropping" default:"16" env:"QYBURN_SSE_CLIENT_BUFFER"`
}

func (c *ServeCmd) Validate() error {
	if c.StoreType == "postgres" {
		if err := c.PostgresStore.Validate(); err != nil {
			return err
		}
	}
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS certificate and key must be provided together (--cert and --key)")
	}
	if c.SampleRatio < 0 {
		return errors.New("trace sample ratio must not be negative")
	}
	if c.SSE.Heartbeat <= 0 {
		return errors.New("SSE heartbeat interval must be positive")
	}
	if c.RateLimit.PerMinute < 0 {
		return errors.New("rate limit must not be negative")
	}
	return nil
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	interceptors := []connect.Interceptor{}
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "qyburn-server",
			Version:     globals.Version,
			SampleRatio: c.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
		otelInterceptor, err := otelconnect.NewInterceptor()
		if err != nil {
			return fmt.Errorf("failed to create OTEL interceptor: %w", err)
		}
		interceptors = append(interceptors, otelInterceptor)
	}

	st, closeStore, err := c.openStore(ctx, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if !c.NoSeed {
		if err := c.seed(ctx, st); err != nil {
			return err
		}
	}

	bus := events.NewBus()
	defer bus.Close()

	directory, messaging, chat := c.integrations(ctx, log)

	ledger := audit.NewLedger(st, bus)
	inbox := notify.NewInbox(st, bus)
	engine := workflow.NewEngine(st, directory, ledger, inbox, bus,
		workflow.WithMessaging(messaging),
		workflow.WithChannel(c.Slack.Channel),
	)

	limiter := bot.NewLimiter(bot.RateLimitConfig{
		PerMinute: c.RateLimit.PerMinute,
		Burst:     c.RateLimit.Burst,
	})

	srv := server.NewServer(server.Deps{
		Store:        st,
		Engine:       engine,
		Ledger:       ledger,
		Inbox:        inbox,
		Bus:          bus,
		Router:       bot.NewRouter(engine, limiter),
		Conversation: bot.NewConversation(directory, chat, ledger, limiter),
	}, server.StreamConfig{
		Heartbeat:    c.SSE.Heartbeat,
		DemoActivity: c.SSE.DemoActivity,
		ClientBuffer: c.SSE.ClientBuffer,
	})

	handler, err := protectHandler(c.CORSOrigins, srv.Handler(log, connect.WithInterceptors(interceptors...)))
	if err != nil {
		return fmt.Errorf("invalid CORS origin: %w", err)
	}

	// h2c serves HTTP/2 without TLS so connect clients can multiplex locally
	httpServer := configureHTTPServer(c.Listen, h2c.NewHandler(handler, &http2.Server{}))
	// cancels open event streams on shutdown
	httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Starting HTTP server")

		var err error
		if c.Cert != "" {
			err = httpServer.ListenAndServeTLS(c.Cert, c.Key)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore returns the configured backend and a function releasing it.
func (c *ServeCmd) openStore(ctx context.Context, log zerolog.Logger) (store.Store, func(), error) {
	if c.StoreType != "postgres" {
		log.Info().Msg("Using in-memory store")
		return memorystore.New(), func() {}, nil
	}

	pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
		ConnString:      c.PostgresStore.ConnString,
		MaxConns:        c.PostgresStore.MaxConns,
		MinConns:        c.PostgresStore.MinConns,
		MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
		MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if c.PostgresStore.AutoMigrate {
		if err := postgresstore.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info().Msg("Database migrations completed")
	}

	pgStore, err := postgresstore.NewStore(pool, &postgresstore.StoreConfig{
		QueryTimeoutSeconds: c.PostgresStore.QueryTimeout,
	})
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := pgStore.Start(); err != nil {
		pool.Close()
		return nil, nil, err
	}

	log.Info().Msg("Using PostgreSQL store")

	return pgStore, func() {
		if err := pgStore.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop store")
		}
		pool.Close()
	}, nil
}

func (c *ServeCmd) seed(ctx context.Context, st store.Store) error {
	var (
		cat *seed.Catalog
		err error
	)
	if c.SeedFile != "" {
		cat, err = seed.ReadFile(c.SeedFile)
	} else {
		cat, err = seed.Default()
	}
	if err != nil {
		return fmt.Errorf("failed to load seed catalog: %w", err)
	}
	return seed.LoadIfEmpty(ctx, st, cat, time.Now().UTC())
}

// integrations picks real upstream clients when credentials are configured and
// in-process stubs otherwise, so the server runs fully offline by default.
func (c *ServeCmd) integrations(ctx context.Context, log zerolog.Logger) (integrations.Directory, integrations.Messaging, integrations.Chat) {
	var (
		directory integrations.Directory
		messaging integrations.Messaging
		chat      integrations.Chat
	)

	if graphCfg := c.Graph.config(); graphCfg.Configured() {
		directory = integrations.NewGraph(ctx, graphCfg)
		log.Info().Str("tenant", c.Graph.TenantID).Msg("Using Microsoft Graph directory")
	} else {
		directory = integrations.NewStubDirectory()
		log.Warn().Msg("Graph credentials not set, using stub directory")
	}

	if c.Slack.BotToken != "" {
		messaging = integrations.NewSlack(integrations.SlackConfig{BotToken: c.Slack.BotToken})
		log.Info().Str("channel", c.Slack.Channel).Msg("Using Slack messaging")
	} else {
		messaging = integrations.NewStubMessaging()
		log.Warn().Msg("Slack token not set, messages are only logged")
	}

	if c.Anthropic.APIKey != "" {
		chat = integrations.NewAnthropic(integrations.AnthropicConfig{
			APIKey:    c.Anthropic.APIKey,
			Model:     c.Anthropic.Model,
			MaxTokens: c.Anthropic.MaxTokens,
		})
		log.Info().Msg("Using Anthropic chat")
	} else {
		chat = integrations.StubChat{}
		log.Warn().Msg("Anthropic key not set, using canned replies")
	}

	return directory, messaging, chat
}
