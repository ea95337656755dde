package router

import (
	"context"
	"log/slog"
	"sort"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/evabot/core/logger"
	tg "github.com/m3rciful/evabot/core/telegram"
	"github.com/m3rciful/evabot/core/telegram/middleware"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes prepares command handlers wrapped with shared middleware.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}

	adminOpts := middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	}

	names := make([]string, 0, len(reg.Commands()))
	for name := range reg.Commands() {
		names = append(names, name)
	}
	sort.Strings(names)

	var routes []tg.Route
	aliases := 0
	for _, name := range names {
		def := reg.Commands()[name]
		h := def.Handler
		h = middleware.RecoverMiddleware(h)
		h = middleware.LoggerMiddleware(h)
		if def.AdminOnly {
			h = middleware.AdminOnlyMiddleware(adminOpts)(h)
		}
		endpoints := def.Endpoints(name)
		aliases += len(endpoints) - 1
		for _, endpoint := range endpoints {
			routes = append(routes, tg.Route{Endpoint: endpoint, Handler: h})
		}
	}

	logger.Info(context.Background(), logger.CompWire, "complete",
		slog.String("status", "ok"),
		slog.Int("commands", len(reg.Commands())),
		slog.Int("aliases", aliases),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)

	return routes
}
