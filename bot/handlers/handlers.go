// Package handlers adapts Telegram updates to the conversation service and
// renders its replies.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/evabot/bot/conversation"
	"github.com/m3rciful/evabot/bot/workflow"
	"github.com/m3rciful/evabot/core/logger"
	tg "github.com/m3rciful/evabot/core/telegram"
	"github.com/m3rciful/evabot/core/telegram/callbacks"
	"github.com/m3rciful/evabot/core/telegram/commands"
	"github.com/m3rciful/evabot/core/telegram/format"
	tghelpers "github.com/m3rciful/evabot/core/telegram/helpers"
	"github.com/m3rciful/evabot/core/telegram/keyboard"
	"github.com/m3rciful/evabot/core/telegram/state"
	"github.com/m3rciful/evabot/core/telegram/ui"
)

const buttonsPerRow = 2

var _ ui.FallbackProvider = (*Handlers)(nil)

// Handlers binds the conversation service to telebot.
type Handlers struct {
	svc *conversation.Service
	fsm *state.Router
}

// New builds Handlers and the state router for free-form input.
func New(svc *conversation.Service, m *state.Machine) *Handlers {
	h := &Handlers{svc: svc, fsm: state.NewRouter(m)}
	for _, st := range svc.InputStates() {
		switch m.Graph().InputFor(st) {
		case state.InputDocument:
			h.fsm.Handle(st, h.onDocument)
		default:
			h.fsm.Handle(st, h.onText)
		}
	}
	return h
}

// FSM routes text and documents for states that expect them.
func (h *Handlers) FSM() *state.Router { return h.fsm }

// Register adds commands and one callback per action to reg.
func (h *Handlers) Register(reg *tg.Registry) error {
	cmds := []struct {
		name string
		cmd  commands.Command
	}{
		{"/start", commands.Command{Handler: h.start, Description: "Главное меню"}},
		{"/menu", commands.Command{Handler: h.menu, Description: "Вернуться в главное меню"}},
		{"/back", commands.Command{Handler: h.back, Description: "Шаг назад"}},
		{"/reset", commands.Command{Handler: h.reset, Description: "Начать заново", Aliases: []string{"cancel"}}},
		{"/links", commands.Command{Handler: h.links, Description: "Сохранённые результаты"}},
		{"/stats", commands.Command{Handler: h.stats, Description: "Статистика сессий", AdminOnly: true}},
	}
	var errs []error
	for _, c := range cmds {
		if err := reg.RegisterCommand(c.name, c.cmd); err != nil {
			errs = append(errs, err)
		}
	}

	keys := make([]string, 0, len(h.svc.Actions()))
	for _, a := range h.svc.Actions() {
		keys = append(keys, string(a))
		if err := reg.RegisterCallback(string(a), h.onCallback); err != nil {
			errs = append(errs, err)
		}
	}
	if missing := reg.MissingCallbacks(keys...); len(missing) > 0 {
		errs = append(errs, fmt.Errorf("handlers: callbacks without handler: %s", strings.Join(missing, ", ")))
	}
	reg.SetCallbackNotFound(h.UnknownCallback())
	return errors.Join(errs...)
}

// UnknownText answers text outside input states with the current screen.
func (h *Handlers) UnknownText() tele.HandlerFunc { return h.onText }

// UnknownDocument answers unexpected files with the current screen.
func (h *Handlers) UnknownDocument() tele.HandlerFunc { return h.onDocument }

// UnknownCallback answers buttons from outdated keyboards.
func (h *Handlers) UnknownCallback() tele.HandlerFunc { return h.onCallback }

func (h *Handlers) start(c tele.Context) error {
	return h.command(c, h.svc.Start)
}

func (h *Handlers) menu(c tele.Context) error {
	return h.command(c, h.svc.Menu)
}

func (h *Handlers) back(c tele.Context) error {
	return h.command(c, h.svc.Back)
}

func (h *Handlers) reset(c tele.Context) error {
	return h.command(c, h.svc.ResetSession)
}

func (h *Handlers) command(c tele.Context, run func(context.Context, int64) (conversation.Reply, error)) error {
	userID, ok := tghelpers.SenderID(c)
	if !ok {
		return nil
	}
	r, err := run(tghelpers.BuildContext(c), userID)
	if err != nil {
		return err
	}
	return send(c, r)
}

func (h *Handlers) links(c tele.Context) error {
	userID, ok := tghelpers.SenderID(c)
	if !ok {
		return nil
	}
	text, err := h.svc.Links(tghelpers.BuildContext(c), userID)
	if err != nil {
		return err
	}
	return tghelpers.SendText(c, text)
}

func (h *Handlers) stats(c tele.Context) error {
	text, err := h.svc.Stats(tghelpers.BuildContext(c))
	if err != nil {
		return err
	}
	return tghelpers.SendText(c, text)
}

func (h *Handlers) onCallback(c tele.Context) error {
	userID, ok := tghelpers.SenderID(c)
	if !ok || c.Callback() == nil {
		return nil
	}
	return h.handle(c, conversation.Event{
		UserID:  userID,
		Kind:    conversation.KindCallback,
		Payload: callbacks.CallbackKey(c),
	})
}

func (h *Handlers) onText(c tele.Context) error {
	userID, ok := tghelpers.SenderID(c)
	if !ok {
		return nil
	}
	return h.handle(c, conversation.Event{
		UserID:  userID,
		Kind:    conversation.KindMessage,
		Payload: c.Text(),
	})
}

func (h *Handlers) onDocument(c tele.Context) error {
	userID, ok := tghelpers.SenderID(c)
	if !ok || c.Message() == nil {
		return nil
	}
	ev := conversation.Event{UserID: userID, Kind: conversation.KindDocument}
	if doc := c.Message().Document; doc != nil {
		ev.Document = documentInput(c.Bot(), doc)
	}
	return h.handle(c, ev)
}

func documentInput(api tele.API, doc *tele.Document) *conversation.DocumentInput {
	return &conversation.DocumentInput{
		Name: doc.FileName,
		MIME: doc.MIME,
		Size: int64(doc.FileSize),
		Open: func(context.Context) (io.ReadCloser, error) {
			return api.File(&doc.File)
		},
	}
}

func (h *Handlers) handle(c tele.Context, ev conversation.Event) error {
	r, err := h.svc.Handle(tghelpers.BuildContext(c), ev)
	if err != nil {
		return err
	}
	return send(c, r)
}

// TimeoutHook pushes the timeout screen to the user once a state timer fired.
func (h *Handlers) TimeoutHook(api tele.API) state.TimeoutHook {
	return func(ctx context.Context, userID int64, expired state.State) {
		r, err := h.svc.TimeoutReply(ctx, userID, expired)
		if err == nil {
			text, markup := Render(r)
			_, err = api.Send(&tele.User{ID: userID}, text, &tele.SendOptions{
				ParseMode:   tele.ModeMarkdownV2,
				ReplyMarkup: markup,
			})
		}
		logger.Event(ctx, logger.CompConversation, levelFor(err), "timeout.notify",
			slog.String("status", logger.Status(err)),
			slog.String("state", string(expired)),
			errAttr(err),
		)
	}
}

func send(c tele.Context, r conversation.Reply) error {
	text, markup := Render(r)
	if c.Callback() != nil {
		return tghelpers.EditOrSendMDV2(c, text, markup)
	}
	return tghelpers.SendMDV2(c, text, markup)
}

// Render formats a reply as MarkdownV2 text with one button per action;
// back and home share the last row.
func Render(r conversation.Reply) (string, *tele.ReplyMarkup) {
	parts := make([]string, 0, 3)
	if r.Label != "" {
		parts = append(parts, "*"+format.V2(r.Label)+"*")
	}
	if r.Body != "" {
		parts = append(parts, format.V2(r.Body))
	}
	if r.Notice != "" {
		parts = append(parts, "_"+format.V2(r.Notice)+"_")
	}

	var choices, nav []keyboard.InlineBtn
	for _, a := range r.Actions {
		btn := keyboard.InlineBtn{Text: workflow.ActionLabel(a), Unique: string(a)}
		switch a {
		case workflow.ActionBack:
			if r.CanGoBack {
				nav = append(nav, btn)
			}
		case workflow.ActionHome:
			nav = append(nav, btn)
		default:
			choices = append(choices, btn)
		}
	}
	return strings.Join(parts, "\n\n"), keyboard.Menu(choices, buttonsPerRow, nav...)
}

func levelFor(err error) slog.Level {
	if err != nil {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

func errAttr(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("err", err.Error())
}
