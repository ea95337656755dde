package state

import (
	"context"
	"log/slog"
	"sync"

	"github.com/m3rciful/evabot/core/logger"
	tghelpers "github.com/m3rciful/evabot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Router dispatches free-form updates (text, documents) to the handler
// registered for the sender's current state.
type Router struct {
	machine *Machine

	mu       sync.RWMutex
	handlers map[State]tele.HandlerFunc
}

// NewRouter binds a Router to m.
func NewRouter(m *Machine) *Router {
	return &Router{machine: m, handlers: make(map[State]tele.HandlerFunc)}
}

// Handle associates a state with its handler. Nil handlers are ignored.
func (r *Router) Handle(st State, h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[st] = h
}

func (r *Router) handler(st State) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[st]
	return h, ok
}

// InProgress reports whether the user's current state has a handler.
func (r *Router) InProgress(ctx context.Context, userID int64) bool {
	_, ok := r.handler(r.machine.GetState(ctx, userID))
	return ok
}

// ManagerHandler runs the handler registered for the sender's current state.
func (r *Router) ManagerHandler(c tele.Context) error {
	userID, ok := tghelpers.SenderID(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	current := r.machine.GetState(ctx, userID)
	h, found := r.handler(current)
	logger.Debug(ctx, logger.CompFSM, "route",
		slog.String("status", logger.Status(nil)),
		slog.String("state", string(current)),
		slog.Bool("handled", found),
	)
	if !found {
		return nil
	}
	return h(c)
}
