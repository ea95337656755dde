// Package app wires configuration, storage and the bot services together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/evabot/bot/conversation"
	"github.com/m3rciful/evabot/bot/features"
	"github.com/m3rciful/evabot/bot/handlers"
	"github.com/m3rciful/evabot/bot/workflow"
	"github.com/m3rciful/evabot/core/ai"
	"github.com/m3rciful/evabot/core/bootstrap"
	corecmd "github.com/m3rciful/evabot/core/cmd"
	coreconfig "github.com/m3rciful/evabot/core/config"
	"github.com/m3rciful/evabot/core/crosslink"
	"github.com/m3rciful/evabot/core/dadata"
	"github.com/m3rciful/evabot/core/gc"
	"github.com/m3rciful/evabot/core/logger"
	"github.com/m3rciful/evabot/core/storage/redisstore"
	"github.com/m3rciful/evabot/core/storage/sqlstore"
	tg "github.com/m3rciful/evabot/core/telegram"
	"github.com/m3rciful/evabot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/evabot/core/telegram/helpers"
	"github.com/m3rciful/evabot/core/telegram/middleware"
	"github.com/m3rciful/evabot/core/telegram/router"
	"github.com/m3rciful/evabot/core/telegram/state"
)

const (
	msgRateLimited = "Слишком много запросов, подождите немного."
	msgAdminOnly   = "Команда доступна только администратору."
	msgStaleButton = "Кнопка устарела"
)

// Services are the long-lived objects built once per process.
type Services struct {
	Machine      *state.Machine
	Links        *crosslink.Cache
	Lookups      *crosslink.Cache
	Suite        *features.Suite
	Conversation *conversation.Service
	Handlers     *handlers.Handlers
	// Limiter is nil when rate limiting is disabled.
	Limiter *middleware.RateLimiter
	GC      *gc.Scheduler
}

// App implements core/cmd.TelegramApp.
type App struct {
	cfg      *Config
	infra    *bootstrap.Result
	services *Services

	gcCancel context.CancelFunc
	gcDone   chan struct{}
}

var _ corecmd.TelegramApp = (*App)(nil)

// Bootstrap brings up logging and storage and builds the services.
func Bootstrap(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	infra, err := bootstrap.Run(ctx, bootstrap.Options{Config: &cfg.Config, Database: cfg.Database})
	if err != nil {
		return nil, err
	}
	app, err := newApp(ctx, cfg, infra)
	if err != nil {
		return nil, errors.Join(err, infra.Close())
	}
	return app, nil
}

func newApp(ctx context.Context, cfg *Config, infra *bootstrap.Result) (*App, error) {
	var provider bootstrap.TypedServiceProvider[*Services] = bootstrap.TypedServiceProviderFunc[*Services](provideServices)
	services, err := provider.ProvideTyped(ctx, cfg, infra.Storage)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, infra: infra, services: services}, nil
}

func provideServices(ctx context.Context, raw any, storage bootstrap.Storage) (*Services, error) {
	cfg, ok := raw.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", raw)
	}
	conv := cfg.Conversation
	sessions, linkBackend, lookupBackend := stores(cfg, storage)

	timeouts := make(map[state.State]time.Duration, len(conv.StateTimeouts))
	for name, d := range conv.StateTimeouts {
		timeouts[state.State(name)] = d
	}
	machine, err := state.NewMachine(state.Options{
		Graph:            workflow.NewGraph(workflow.Options{StrictINN: conv.StrictINNChecksum}),
		Store:            sessions,
		HistoryDepth:     conv.HistoryDepth,
		SessionTTL:       conv.SessionTTL,
		TimeoutOverrides: timeouts,
	})
	if err != nil {
		return nil, fmt.Errorf("app: state machine: %w", err)
	}

	links := crosslink.New(linkBackend, crosslink.Options{TTL: conv.CrossLinkTTL})
	lookups := crosslink.New(lookupBackend, crosslink.Options{TTL: conv.LookupTTL})
	companies := dadata.New(cfg.DaData, tg.NewRetryingClient(cfg.DaData.Timeout), lookups)

	var completer features.Completer
	if cfg.OpenAI.APIKey != "" {
		client, err := ai.New(cfg.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("app: openai: %w", err)
		}
		completer = client
	}

	suite := features.New(features.Options{Links: links, AI: completer, Companies: companies})
	svc, err := conversation.New(conversation.Options{Machine: machine, Suite: suite})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, logger.CompApp, "services",
		slog.String("status", "ok"),
		slog.String("backend", storage.Backend),
		slog.Bool("ai", suite.AIEnabled()),
		slog.Bool("dadata", companies.Configured()),
		slog.Int("timeout_overrides", len(timeouts)),
	)
	sweepers := map[string]gc.Sweeper{
		"sessions":   machine,
		"crosslinks": links,
		"lookups":    lookups,
	}
	limiter := tg.NewRateLimiter(cfg.CoreConfig(), replyRateLimited)
	if limiter != nil {
		sweepers["rate_limit"] = limiter
	}
	return &Services{
		Machine:      machine,
		Links:        links,
		Lookups:      lookups,
		Suite:        suite,
		Conversation: svc,
		Handlers:     handlers.New(svc, machine),
		Limiter:      limiter,
		GC:           &gc.Scheduler{Sweepers: sweepers, Interval: conv.SweepInterval},
	}, nil
}

// stores picks the session and cross-link backends for the configured storage.
func stores(cfg *Config, storage bootstrap.Storage) (state.Store, crosslink.Backend, crosslink.Backend) {
	conv := cfg.Conversation
	switch {
	case storage.Backend == coreconfig.BackendRedis && storage.Redis != nil:
		prefix := cfg.Storage.KeyPrefix
		return redisstore.NewSessions(storage.Redis, prefix, conv.SessionTTL),
			redisstore.NewEntries(storage.Redis, prefix, redisstore.NamespaceCrossLinks, conv.CrossLinkTTL),
			redisstore.NewEntries(storage.Redis, prefix, redisstore.NamespaceCompanyLookups, conv.LookupTTL)
	case storage.Backend == coreconfig.BackendSQL && storage.DB != nil:
		return sqlstore.NewSessions(storage.DB),
			sqlstore.NewCrossLinks(storage.DB),
			sqlstore.NewCompanyLookups(storage.DB)
	}
	return state.NewMemoryStore(), crosslink.NewMemoryBackend(), crosslink.NewMemoryBackend()
}

// Services exposes the wired services.
func (a *App) Services() *Services { return a.services }

// TelegramRunOptions registers handlers and describes routes and lifecycle hooks.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	h := a.services.Handlers
	reg := tg.NewRegistry()
	if err := h.Register(reg); err != nil {
		return tg.RunOptions{}, err
	}
	core := a.cfg.CoreConfig()

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: core.Telegram.AdminID,
		OnAdminReject: func(c tele.Context) error {
			return tghelpers.SendText(c, msgAdminOnly)
		},
	})
	textOpts, cbOpts := router.FallbackOptions(h)
	cbOpts.NotFoundText = msgStaleButton
	routes = append(routes, router.CallbackRoute(reg, cbOpts))
	routes = append(routes, router.TextRoutes(h.FSM(), reg, textOpts)...)

	return tg.RunOptions{
		Config:      core,
		Registry:    reg,
		Middlewares: tg.DefaultMiddlewares(a.services.Limiter),
		Routes:      routes,
		OnBot: func(bot *tele.Bot) error {
			a.services.Machine.SetTimeoutHook(h.TimeoutHook(bot))
			return nil
		},
		OnStart: a.start,
		OnStop:  a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, _ tg.Runtime) error {
	gcCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.gcCancel, a.gcDone = cancel, done
	go func() {
		defer close(done)
		a.services.GC.Run(gcCtx)
	}()
	return nil
}

func (a *App) stop(ctx context.Context, _ tg.Runtime) error {
	if a.gcCancel != nil {
		a.gcCancel()
		<-a.gcDone
	}
	err := a.infra.Close()
	logger.Event(ctx, logger.CompApp, levelFor(err), "storage.close",
		slog.String("status", logger.Status(err)),
	)
	return err
}

func replyRateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return callbacks.Answer(c, msgRateLimited)
	}
	return tghelpers.SendText(c, msgRateLimited)
}

func levelFor(err error) slog.Level {
	if err != nil {
		return slog.LevelError
	}
	return slog.LevelInfo
}
