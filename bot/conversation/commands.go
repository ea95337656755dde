package conversation

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/m3rciful/evabot/bot/features"
	"github.com/m3rciful/evabot/bot/workflow"
	"github.com/m3rciful/evabot/core/buildinfo"
	"github.com/m3rciful/evabot/core/logger"
	"github.com/m3rciful/evabot/core/telegram/state"
)

// Start drops any previous session and opens the main menu.
func (s *Service) Start(ctx context.Context, userID int64) (Reply, error) {
	return s.command(ctx, userID, "start", func() (string, error) {
		if err := s.machine.Reset(ctx, userID); err != nil {
			return "", err
		}
		return "", s.machine.Transition(ctx, userID, workflow.MainMenu, nil)
	})
}

// Menu opens the main menu keeping history.
func (s *Service) Menu(ctx context.Context, userID int64) (Reply, error) {
	return s.command(ctx, userID, "menu", func() (string, error) {
		if s.machine.GetState(ctx, userID) == workflow.MainMenu {
			return "", nil
		}
		return "", s.machine.Transition(ctx, userID, workflow.MainMenu, nil)
	})
}

// Back is the command form of the back button.
func (s *Service) Back(ctx context.Context, userID int64) (Reply, error) {
	return s.command(ctx, userID, "back", func() (string, error) {
		return "", s.back(ctx, userID)
	})
}

// ResetSession clears the session and leaves the user at the main menu.
func (s *Service) ResetSession(ctx context.Context, userID int64) (Reply, error) {
	return s.command(ctx, userID, "reset", func() (string, error) {
		if err := s.machine.Reset(ctx, userID); err != nil {
			return "", err
		}
		return msgReset, s.machine.Transition(ctx, userID, workflow.MainMenu, nil)
	})
}

// Current renders the user's current state without changing it.
func (s *Service) Current(ctx context.Context, userID int64) (Reply, error) {
	return s.command(ctx, userID, "current", func() (string, error) { return "", nil })
}

// TimeoutReply renders the screen shown after a state timer fired.
func (s *Service) TimeoutReply(ctx context.Context, userID int64, expired state.State) (Reply, error) {
	return s.command(ctx, userID, "timeout", func() (string, error) {
		return fmt.Sprintf("%s (%s)", msgTimedOut, s.graph.LabelFor(expired)), nil
	})
}

func (s *Service) command(ctx context.Context, userID int64, op string, fn func() (string, error)) (Reply, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()
	ctx = logger.WithUser(ctx, userID)
	notice, err := fn()
	return s.finish(ctx, userID, op, notice, err)
}

// Links lists what earlier steps produced for the user and is still fresh.
func (s *Service) Links(ctx context.Context, userID int64) (string, error) {
	keys, err := s.suite.Links(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "Сохранённых результатов нет.", nil
	}
	var b strings.Builder
	b.WriteString("Доступные результаты:")
	for _, k := range keys {
		b.WriteString("\n• ")
		b.WriteString(features.KeyTitle(k))
	}
	return b.String(), nil
}

// Stats summarises stored sessions for operators.
func (s *Service) Stats(ctx context.Context) (string, error) {
	a, err := s.machine.Analytics(ctx)
	if err != nil {
		return "", err
	}
	states := make([]state.State, 0, len(a.ByState))
	for st := range a.ByState {
		states = append(states, st)
	}
	slices.SortFunc(states, func(x, y state.State) int {
		if d := a.ByState[y] - a.ByState[x]; d != 0 {
			return d
		}
		return strings.Compare(string(x), string(y))
	})
	var b strings.Builder
	fmt.Fprintf(&b, "Пользователей: %d\nСредняя глубина истории: %.1f", a.TotalUsers, a.AverageHistory)
	for _, st := range states {
		fmt.Fprintf(&b, "\n%s: %d", st, a.ByState[st])
	}
	fmt.Fprintf(&b, "\nВерсия: %s", buildinfo.String())
	return b.String(), nil
}
