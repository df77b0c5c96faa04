package commands

import (
	"context"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/otelconnect"
	"github.com/rs/zerolog"
	"github.com/saga-it/qyburn/api/bot/v1/botv1connect"
	"github.com/saga-it/qyburn/internal/audit"
	"github.com/saga-it/qyburn/internal/bot"
	"github.com/saga-it/qyburn/internal/client"
	"github.com/saga-it/qyburn/internal/events"
	"github.com/saga-it/qyburn/internal/integrations"
	"github.com/saga-it/qyburn/internal/notify"
	"github.com/saga-it/qyburn/internal/seed"
	"github.com/saga-it/qyburn/internal/server"
	memorystore "github.com/saga-it/qyburn/internal/store/memory"
	"github.com/saga-it/qyburn/internal/workflow"
)

type Globals struct {
	Debug   bool
	Version string
}

// Target selects where bot calls go: a running server, or a seeded in-memory
// instance when Server is empty.
type Target struct {
	Server  string        `help:"Server URL, runs in process against the seed catalog when empty" default:"" env:"QYBURN_SERVER"`
	Timeout time.Duration `help:"RPC timeout" default:"30s"`
}

// local is an in-process bot over a freshly seeded memory store.
type local struct {
	bot          *server.BotServer
	conversation *bot.Conversation
	messaging    *integrations.StubMessaging
}

func newLocal(ctx context.Context) (*local, error) {
	st := memorystore.New()
	cat, err := seed.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load seed catalog: %w", err)
	}
	if err := seed.Load(ctx, st, cat, time.Now().UTC()); err != nil {
		return nil, err
	}

	bus := events.NewBus()
	directory := integrations.NewStubDirectory()
	messaging := integrations.NewStubMessaging()
	ledger := audit.NewLedger(st, bus)
	inbox := notify.NewInbox(st, bus)
	engine := workflow.NewEngine(st, directory, ledger, inbox, bus, workflow.WithMessaging(messaging))
	conversation := bot.NewConversation(directory, integrations.StubChat{}, ledger, nil)

	return &local{
		bot:          server.NewBotServer(engine, bot.NewRouter(engine, nil), conversation),
		conversation: conversation,
		messaging:    messaging,
	}, nil
}

// dial returns a BotService client for the target. The in-process server
// satisfies the same interface, so commands do not care which one they get.
func (t Target) dial(ctx context.Context, globals *Globals) (botv1connect.BotServiceClient, error) {
	if t.Server == "" {
		if !globals.Debug {
			quietLogs()
		}
		l, err := newLocal(ctx)
		if err != nil {
			return nil, err
		}
		return l.bot, nil
	}

	otelInterceptor, err := otelconnect.NewInterceptor()
	if err != nil {
		return nil, fmt.Errorf("failed to create interceptor: %w", err)
	}

	clients := client.NewClients(client.Config{
		ServerURL: t.Server,
		Timeout:   t.Timeout,
	}, connect.WithInterceptors(otelInterceptor))

	return clients.Bot, nil
}

// quietLogs hides the seed and workflow logs of the in-process bot.
func quietLogs() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
}
