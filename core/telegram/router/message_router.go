package router

import (
	"context"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/evabot/core/telegram"
	tghelpers "github.com/m3rciful/evabot/core/telegram/helpers"
	"github.com/m3rciful/evabot/core/telegram/middleware"
)

// FSM is the part of the conversation state machine the text routes need.
// state.Router satisfies it.
type FSM interface {
	InProgress(ctx context.Context, userID int64) bool
	ManagerHandler(c tele.Context) error
}

func inProgress(fsm FSM, c tele.Context) bool {
	userID, ok := tghelpers.SenderID(c)
	if fsm == nil || !ok {
		return false
	}
	return fsm.InProgress(tghelpers.BuildContext(c), userID)
}

// TextOptions controls fallback behaviour for text/document updates.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

// TextRoutes builds handlers for text and document updates. A state that
// expects input wins over commands typed as text and over fallbacks.
func TextRoutes(fsmMgr FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if inProgress(fsmMgr, c) {
			return handleWithSummary(c, "fsm", start, func() error {
				return fsmMgr.ManagerHandler(c)
			})
		}

		if name, ok := commandName(c.Text()); ok && reg != nil {
			if key, cmd, found := reg.LookupCommand(name); found && cmd.Handler != nil {
				return handleWithSummary(c, normalizeHandlerName(key), start, func() error {
					return cmd.Handler(c)
				})
			}
		}

		fallback := opts.UnknownText
		if reg != nil && reg.TextFallback() != nil {
			fallback = reg.TextFallback()
		}
		if fallback == nil {
			logSkipped(c, "unknown_text", start)
			return nil
		}
		return handleWithSummary(c, "unknown_text", start, func() error {
			return fallback(c)
		})
	}

	docHandler := func(c tele.Context) error {
		start := time.Now()
		switch {
		case inProgress(fsmMgr, c):
			return handleWithSummary(c, "fsm_document", start, func() error {
				return fsmMgr.ManagerHandler(c)
			})
		case opts.UnknownDocument != nil:
			return handleWithSummary(c, "unexpected_document", start, func() error {
				return opts.UnknownDocument(c)
			})
		}
		logSkipped(c, "unexpected_document", start)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
		{
			Endpoint: tele.OnDocument,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(docHandler)),
		},
	}
}

// commandName extracts "/name" from "/name@bot args". Text without a leading
// slash is never a command.
func commandName(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name, _, _ := strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	return name, len(name) > 1
}
