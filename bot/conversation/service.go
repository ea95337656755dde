// Package conversation turns normalized inbound events into state machine
// operations and feature calls, and answers with what to render next.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/m3rciful/evabot/bot/features"
	"github.com/m3rciful/evabot/bot/workflow"
	"github.com/m3rciful/evabot/core/crosslink"
	"github.com/m3rciful/evabot/core/logger"
	"github.com/m3rciful/evabot/core/telegram/state"
)

// Kind is the shape of an inbound event.
type Kind string

const (
	KindMessage  Kind = "message"
	KindCallback Kind = "callback"
	KindDocument Kind = "document"
)

// DefaultMaxDocument is the largest upload read for analysis (Bot API download limit).
const DefaultMaxDocument = 20 << 20

const maxInlineText = 1 << 20

// User-facing notices.
const (
	msgUnavailable   = "Действие недоступно. Выберите один из вариантов ниже."
	msgFailure       = "Не удалось обработать запрос. Попробуйте ещё раз или вернитесь в главное меню."
	msgUseButtons    = "Выберите действие с помощью кнопок ниже."
	msgSendDocument  = "Пришлите договор файлом."
	msgSendText      = "Отправьте ответ текстом."
	msgStale         = "Результаты устарели. Повторите проверку или анализ."
	msgServiceDown   = "Сервис временно недоступен. Попробуйте позже."
	msgTooLarge      = "Файл слишком большой для анализа."
	msgReset         = "Сессия сброшена."
	msgTimedOut      = "Время ожидания истекло"
	msgNotifyOn      = "Уведомления включены."
	msgNotifyOff     = "Уведомления выключены."
	msgCompanyAbsent = "Организация с ИНН %s не найдена. Проверьте номер."
)

// DocumentInput describes an uploaded file. Open is called only when the
// file is actually analysed.
type DocumentInput struct {
	Name string
	MIME string
	Size int64
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// Event is an inbound update already stripped of transport details.
type Event struct {
	UserID   int64
	Kind     Kind
	Payload  string
	Document *DocumentInput
}

// Reply is everything the adapter needs to render the next message.
type Reply struct {
	State     state.State
	Label     string
	Body      string
	Notice    string
	Actions   []state.Action
	CanGoBack bool
}

type (
	actionFunc func(ctx context.Context, userID int64, desc state.Description) (string, error)
	inputFunc  func(ctx context.Context, ev Event, desc state.Description, normalized string) (string, error)
)

// Options wires a Service.
type Options struct {
	Machine *state.Machine
	Suite   *features.Suite
	// MaxDocument caps uploads; 0 means DefaultMaxDocument.
	MaxDocument int64
}

// Service is the conversation entry point. Events for one user are handled
// one at a time.
type Service struct {
	machine     *state.Machine
	graph       *state.Graph
	suite       *features.Suite
	maxDocument int64

	locks   state.KeyedLocks
	actions map[state.Action]actionFunc
	inputs  map[state.State]inputFunc
}

// New builds the Service and checks that every action and every input state
// of the graph has a handler.
func New(opts Options) (*Service, error) {
	if opts.Machine == nil || opts.Suite == nil {
		return nil, errors.New("conversation: machine and suite are required")
	}
	s := &Service{
		machine:     opts.Machine,
		graph:       opts.Machine.Graph(),
		suite:       opts.Suite,
		maxDocument: opts.MaxDocument,
	}
	if s.maxDocument <= 0 {
		s.maxDocument = DefaultMaxDocument
	}
	s.actions = s.actionTable()
	s.inputs = s.inputTable()
	if err := s.check(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) check() error {
	var errs []error
	for _, a := range s.graph.AllActions() {
		if _, ok := s.actions[a]; !ok {
			errs = append(errs, fmt.Errorf("conversation: no handler for action %q", a))
		}
	}
	for _, st := range s.graph.States() {
		if s.graph.InputFor(st) == state.InputCallback {
			continue
		}
		if _, ok := s.inputs[st]; !ok {
			errs = append(errs, fmt.Errorf("conversation: no input handler for state %q", st))
		}
	}
	return errors.Join(errs...)
}

// Actions lists every action the adapter must bind.
func (s *Service) Actions() []state.Action { return s.graph.AllActions() }

// InputStates lists states that take free-form input.
func (s *Service) InputStates() []state.State {
	var out []state.State
	for st := range s.inputs {
		out = append(out, st)
	}
	slices.Sort(out)
	return out
}

// Handle processes one event and returns the reply to render.
func (s *Service) Handle(ctx context.Context, ev Event) (Reply, error) {
	unlock := s.locks.Lock(ev.UserID)
	defer unlock()
	ctx = logger.WithUser(ctx, ev.UserID)

	var (
		notice string
		err    error
	)
	switch ev.Kind {
	case KindCallback:
		notice, err = s.onAction(ctx, ev.UserID, state.Action(ev.Payload))
	case KindMessage, KindDocument:
		notice, err = s.onInput(ctx, ev)
	default:
		notice = msgUseButtons
	}
	return s.finish(ctx, ev.UserID, string(ev.Kind), notice, err)
}

func (s *Service) onAction(ctx context.Context, userID int64, a state.Action) (string, error) {
	h, ok := s.actions[a]
	if !ok {
		logger.Warn(ctx, logger.CompConversation, "action.unknown",
			slog.String("status", "rejected"),
			slog.String("action", logger.SanitizeLimit(string(a), 64)),
		)
		return msgUnavailable, nil
	}
	desc, err := s.machine.Describe(ctx, userID)
	if err != nil {
		return "", err
	}
	if !slices.Contains(desc.Actions, a) {
		logger.Info(ctx, logger.CompConversation, "action.stale",
			slog.String("status", "rejected"),
			slog.String("action", string(a)),
			slog.String("state", string(desc.State)),
		)
		return msgUnavailable, nil
	}
	return h(ctx, userID, desc)
}

func (s *Service) onInput(ctx context.Context, ev Event) (string, error) {
	kind, input := state.InputText, ev.Payload
	if ev.Kind == KindDocument {
		if ev.Document == nil {
			return msgSendDocument, nil
		}
		kind, input = state.InputDocument, ev.Document.Name
	}
	res, err := s.machine.ValidateInput(ctx, ev.UserID, input, kind)
	if err != nil {
		return "", err
	}
	desc, err := s.machine.Describe(ctx, ev.UserID)
	if err != nil {
		return "", err
	}
	if !res.Valid {
		if res.Code == state.CodeKindMismatch {
			return expectHint(desc.ExpectedInput), nil
		}
		return res.Error, nil
	}
	h, ok := s.inputs[desc.State]
	if !ok {
		return "", nil
	}
	return h(ctx, ev, desc, res.Normalized)
}

func expectHint(k state.InputKind) string {
	switch k {
	case state.InputDocument:
		return msgSendDocument
	case state.InputText:
		return msgSendText
	}
	return msgUseButtons
}

// finish maps the outcome to a reply. Store failures become a generic retry
// message; the session stays as it was.
func (s *Service) finish(ctx context.Context, userID int64, op, notice string, err error) (Reply, error) {
	if err != nil {
		var te *state.TransitionError
		switch {
		case errors.As(err, &te):
			notice = msgUnavailable
		default:
			event := op
			if isStoreFailure(err) {
				event = "store.unavailable"
			}
			logger.Error(ctx, logger.CompConversation, event,
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			return failureReply(), nil
		}
	}
	r, err := s.render(ctx, userID, notice)
	if err != nil {
		logger.Error(ctx, logger.CompConversation, "render",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return failureReply(), nil
	}
	return r, nil
}

func failureReply() Reply {
	return Reply{
		State:   workflow.Error,
		Label:   "Ошибка",
		Notice:  msgFailure,
		Actions: []state.Action{workflow.ActionHome},
	}
}

func (s *Service) render(ctx context.Context, userID int64, notice string) (Reply, error) {
	desc, err := s.machine.Describe(ctx, userID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		State:     desc.State,
		Label:     desc.Label,
		Body:      body(desc),
		Notice:    notice,
		Actions:   desc.Actions,
		CanGoBack: desc.CanGoBack,
	}, nil
}

var contractTitles = map[string]string{
	workflow.ContractSupply:  "поставка",
	workflow.ContractService: "услуги",
	workflow.ContractMixed:   "смешанный",
}

func body(desc state.Description) string {
	parts := make([]string, 0, 3)
	if workflow.ShowsResult(desc.State) {
		if r := desc.Data[workflow.KeyResult]; r != "" {
			parts = append(parts, r)
		}
	}
	switch desc.State {
	case workflow.EverestWizardStep3:
		parts = append(parts, fmt.Sprintf("Тип договора: %s\nКонтрагент: %s\nИНН: %s\nАдрес: %s",
			contractTitles[desc.Data[workflow.KeyContractType]],
			desc.Data[workflow.KeyPartyName],
			desc.Data[workflow.KeyPartyINN],
			desc.Data[workflow.KeyPartyAddress],
		))
	case workflow.SettingsNotifications, workflow.SettingsProfile:
		status := "включены"
		if desc.Data[workflow.KeyNotify] == notifyOff {
			status = "выключены"
		}
		parts = append(parts, "Уведомления: "+status)
	}
	if p := workflow.Prompt(desc.State); p != "" {
		parts = append(parts, p)
	}
	return strings.Join(parts, "\n\n")
}

// isStoreFailure reports errors that mean a backend is down.
func isStoreFailure(err error) bool {
	return errors.Is(err, state.ErrStoreUnavailable) || errors.Is(err, crosslink.ErrStoreUnavailable)
}
