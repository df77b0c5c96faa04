package server

import (
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"
	"github.com/saga-it/qyburn/api/bot/v1/botv1connect"
	"github.com/saga-it/qyburn/internal/audit"
	"github.com/saga-it/qyburn/internal/bot"
	"github.com/saga-it/qyburn/internal/events"
	httpmw "github.com/saga-it/qyburn/internal/http"
	"github.com/saga-it/qyburn/internal/logger"
	"github.com/saga-it/qyburn/internal/notify"
	"github.com/saga-it/qyburn/internal/store"
	"github.com/saga-it/qyburn/internal/workflow"
)

// StreamConfig controls the timers of each live event connection.
type StreamConfig struct {
	Heartbeat    time.Duration
	DemoActivity time.Duration // zero disables synthetic activity
	ClientBuffer int
}

// DefaultStreamConfig matches what dashboard clients expect: a keepalive every
// 30s and a synthetic activity item every 45s.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Heartbeat:    30 * time.Second,
		DemoActivity: 45 * time.Second,
		ClientBuffer: 16,
	}
}

// Deps are the collaborators shared by the REST API, bot RPC and event stream.
type Deps struct {
	Store        store.Store
	Engine       *workflow.Engine
	Ledger       *audit.Ledger
	Inbox        *notify.Inbox
	Bus          *events.Bus
	Router       *bot.Router
	Conversation *bot.Conversation
}

// Server wraps the dashboard API, the bot service and the live event feed.
type Server struct {
	store  store.Store
	engine *workflow.Engine
	ledger *audit.Ledger
	inbox  *notify.Inbox
	bus    *events.Bus
	bot    *BotServer
	stream StreamConfig
}

// NewServer creates a server over deps. Unset stream settings fall back to
// DefaultStreamConfig, except DemoActivity.
func NewServer(deps Deps, stream StreamConfig) *Server {
	defaults := DefaultStreamConfig()
	if stream.Heartbeat <= 0 {
		stream.Heartbeat = defaults.Heartbeat
	}
	if stream.ClientBuffer <= 0 {
		stream.ClientBuffer = defaults.ClientBuffer
	}

	return &Server{
		store:  deps.Store,
		engine: deps.Engine,
		ledger: deps.Ledger,
		inbox:  deps.Inbox,
		bus:    deps.Bus,
		bot:    NewBotServer(deps.Engine, deps.Router, deps.Conversation),
		stream: stream,
	}
}

// Handler returns the HTTP handler for the server. REST responses are gzip
// compressed; the event stream is not, so frames reach clients as they are written.
func (s *Server) Handler(log zerolog.Logger, opts ...connect.HandlerOption) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Register bot service
	opts = append([]connect.HandlerOption{
		connect.WithInterceptors(logger.NewConnectRequests(log)),
	}, opts...)
	botPath, botHandler := botv1connect.NewBotServiceHandler(s.bot, opts...)
	mux.Handle(botPath, botHandler)

	api := http.NewServeMux()
	s.registerREST(api)

	clientIP := httpmw.ClientIPMiddleware()
	requests := logger.HTTPRequests(log)

	mux.Handle("/api/", requests(clientIP(gzhttp.GzipHandler(api))))
	mux.Handle("GET /api/events", requests(clientIP(http.HandlerFunc(s.streamEvents))))

	return mux
}

func (s *Server) registerREST(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/dashboard", s.dashboard)

	mux.HandleFunc("GET /api/licenses", s.listLicenses)
	mux.HandleFunc("POST /api/licenses", s.createLicense)
	mux.HandleFunc("GET /api/licenses/{id}", s.getLicense)
	mux.HandleFunc("PATCH /api/licenses/{id}", s.updateLicense)
	mux.HandleFunc("DELETE /api/licenses/{id}", s.deleteLicense)
	mux.HandleFunc("GET /api/licenses/{id}/assignments", s.listAssignments)
	mux.HandleFunc("POST /api/licenses/{id}/revoke", s.revokeLicense)

	mux.HandleFunc("GET /api/groups", s.listGroups)
	mux.HandleFunc("POST /api/groups", s.createGroup)
	mux.HandleFunc("GET /api/groups/{id}", s.getGroup)
	mux.HandleFunc("PATCH /api/groups/{id}", s.updateGroup)
	mux.HandleFunc("DELETE /api/groups/{id}", s.deleteGroup)

	mux.HandleFunc("GET /api/groups/requests", s.listRequests)
	mux.HandleFunc("POST /api/groups/requests", s.createRequest)
	mux.HandleFunc("PATCH /api/groups/requests", s.reviewRequest)

	mux.HandleFunc("GET /api/onboarding", s.listTemplates)
	mux.HandleFunc("POST /api/onboarding", s.createTemplate)
	mux.HandleFunc("GET /api/onboarding/{id}", s.getTemplate)
	mux.HandleFunc("PATCH /api/onboarding/{id}", s.updateTemplate)
	mux.HandleFunc("DELETE /api/onboarding/{id}", s.deleteTemplate)
	mux.HandleFunc("POST /api/onboarding/{id}/start", s.startOnboarding)

	mux.HandleFunc("GET /api/knowledge", s.listDocuments)
	mux.HandleFunc("POST /api/knowledge", s.createDocument)
	mux.HandleFunc("GET /api/knowledge/{id}", s.getDocument)
	mux.HandleFunc("PATCH /api/knowledge/{id}", s.updateDocument)
	mux.HandleFunc("DELETE /api/knowledge/{id}", s.deleteDocument)

	mux.HandleFunc("GET /api/audit", s.listAudit)
	mux.HandleFunc("POST /api/audit", s.appendAudit)

	mux.HandleFunc("GET /api/notifications", s.listNotifications)
	mux.HandleFunc("PATCH /api/notifications", s.markNotifications)
}
