package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/m3rciful/evabot/core/logger"
)

const defaultHistoryDepth = 10

// TimeoutHook is told about a timer that moved a user into the timeout state.
type TimeoutHook func(ctx context.Context, userID int64, expired State)

// Options configures a Machine.
type Options struct {
	Graph *Graph
	Store Store

	// HistoryDepth caps the back-navigation history; 0 means 10.
	HistoryDepth int
	// SessionTTL is the inactivity window used by Sweep; 0 disables sweeping.
	SessionTTL time.Duration
	// TimeoutOverrides replaces graph timeouts per state; zero disables the timer.
	TimeoutOverrides map[State]time.Duration

	Now       func() time.Time
	AfterFunc func(d time.Duration, f func())
	OnTimeout TimeoutHook
}

// Machine owns every user's workflow position and is the sole authority on
// whether a transition is legal. Operations for one user are linearised.
type Machine struct {
	graph      *Graph
	store      Store
	depth      int
	sessionTTL time.Duration
	timeouts   map[State]time.Duration

	now       func() time.Time
	afterFunc func(time.Duration, func())
	onTimeout TimeoutHook

	locks UserLocks
}

// NewMachine validates the graph and builds a Machine.
func NewMachine(opts Options) (*Machine, error) {
	if opts.Graph == nil {
		return nil, errors.New("state: nil graph")
	}
	if err := opts.Graph.Validate(); err != nil {
		return nil, err
	}
	if opts.HistoryDepth < 0 {
		return nil, fmt.Errorf("state: negative history depth %d", opts.HistoryDepth)
	}
	m := &Machine{
		graph:      opts.Graph,
		store:      opts.Store,
		depth:      opts.HistoryDepth,
		sessionTTL: opts.SessionTTL,
		timeouts:   maps.Clone(opts.Graph.Timeouts),
		now:        opts.Now,
		afterFunc:  opts.AfterFunc,
		onTimeout:  opts.OnTimeout,
	}
	if m.timeouts == nil {
		m.timeouts = map[State]time.Duration{}
	}
	for st, d := range opts.TimeoutOverrides {
		if !m.graph.Declared(st) {
			return nil, fmt.Errorf("state: timeout override for %w %q", ErrUnknownState, st)
		}
		if st == m.graph.Timeout {
			return nil, fmt.Errorf("state: timeout state %q must not have a timer", st)
		}
		m.timeouts[st] = d
	}
	if m.store == nil {
		m.store = NewMemoryStore()
	}
	if m.depth == 0 {
		m.depth = defaultHistoryDepth
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.afterFunc == nil {
		m.afterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	return m, nil
}

// Graph exposes the workflow description.
func (m *Machine) Graph() *Graph { return m.graph }

// SetTimeoutHook replaces the hook called after a timer fires.
// It must be called before the machine serves traffic.
func (m *Machine) SetTimeoutHook(h TimeoutHook) { m.onTimeout = h }

// GetState returns the user's current state, or the initial state when the
// user has no session. A store failure is logged and also reads as initial.
func (m *Machine) GetState(ctx context.Context, userID int64) State {
	s, err := m.load(ctx, userID)
	if err != nil {
		return m.graph.Initial
	}
	return s.State
}

// Session returns a copy of the user's session, creating a fresh one in
// memory (not persisted) for unknown users.
func (m *Machine) Session(ctx context.Context, userID int64) (*Session, error) {
	return m.load(ctx, userID)
}

// Transition moves the user to target and shallow-merges data into the session.
// Rejections return a *TransitionError wrapping ErrInvalidTransition or
// ErrUnknownDataKey and leave the session untouched.
func (m *Machine) Transition(ctx context.Context, userID int64, target State, data Data) error {
	unlock := m.locks.Lock(userID)
	defer unlock()

	cur, err := m.load(ctx, userID)
	if err != nil {
		return err
	}
	if !m.graph.Declared(target) {
		return m.reject(ctx, cur, target, ErrUnknownState)
	}
	if !m.graph.Allowed(cur.State, target) {
		return m.reject(ctx, cur, target, ErrInvalidTransition)
	}
	if err := m.graph.checkDataKeys(target, data); err != nil {
		return m.reject(ctx, cur, target, err)
	}

	next := m.advance(cur, target, data)
	if err := m.save(ctx, next); err != nil {
		return err
	}
	m.arm(next)
	logger.Debug(ctx, logger.CompFSM, "transition.accepted",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("from", string(cur.State)),
		slog.String("to", string(target)),
		slog.Int("history", len(next.History)),
	)
	return nil
}

// GoBack restores the most recent history entry together with its data
// snapshot. With empty history the user lands on the home state.
func (m *Machine) GoBack(ctx context.Context, userID int64) (State, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	cur, err := m.load(ctx, userID)
	if err != nil {
		return cur.State, err
	}

	var next *Session
	n := len(cur.History)
	switch {
	case n > 0:
		entry := cur.History[n-1]
		next = cur.Clone()
		next.History = next.History[:n-1]
		next.State = entry.State
		next.Data = entry.Snapshot.Clone()
		if next.Data == nil {
			next.Data = Data{}
		}
		next.Token++
		next.LastActivity = m.now()
	case cur.State == m.graph.Home:
		return cur.State, nil
	default:
		next = m.advance(cur, m.graph.Home, nil)
	}

	if err := m.save(ctx, next); err != nil {
		return cur.State, err
	}
	m.arm(next)
	logger.Debug(ctx, logger.CompFSM, "back",
		slog.Int64("user_id", userID),
		slog.String("from", string(cur.State)),
		slog.String("to", string(next.State)),
		slog.Int("history", len(next.History)),
	)
	return next.State, nil
}

// Reset returns the user to the initial state with empty data and history.
func (m *Machine) Reset(ctx context.Context, userID int64) error {
	unlock := m.locks.Lock(userID)
	defer unlock()

	cur, err := m.load(ctx, userID)
	if err != nil {
		return err
	}
	next := &Session{
		UserID:       userID,
		State:        m.graph.Initial,
		Data:         Data{},
		Token:        cur.Token + 1,
		LastActivity: m.now(),
	}
	if err := m.save(ctx, next); err != nil {
		return err
	}
	m.arm(next)
	logger.Debug(ctx, logger.CompFSM, "reset",
		slog.Int64("user_id", userID),
		slog.String("from", string(cur.State)),
	)
	return nil
}

// Describe projects the session into what the adapter needs to render next.
func (m *Machine) Describe(ctx context.Context, userID int64) (Description, error) {
	s, err := m.load(ctx, userID)
	if err != nil {
		return Description{}, err
	}
	return Description{
		State:         s.State,
		Label:         m.graph.LabelFor(s.State),
		Data:          s.Data.Clone(),
		CanGoBack:     len(s.History) > 0,
		ExpectedInput: m.graph.InputFor(s.State),
		Actions:       m.graph.ActionsFor(s.State),
	}, nil
}

// ValidateInput checks the input kind against the current state first and
// then runs the state's validator. Failures are results, not errors; the
// error return is reserved for store failures.
func (m *Machine) ValidateInput(ctx context.Context, userID int64, input string, kind InputKind) (ValidationResult, error) {
	s, err := m.load(ctx, userID)
	if err != nil {
		return ValidationResult{}, err
	}
	expected := m.graph.InputFor(s.State)
	if expected != InputAny && kind != expected {
		return ValidationResult{
			Error: fmt.Sprintf("state %s expects %s input, got %s", s.State, expected, kind),
			Code:  CodeKindMismatch,
		}, nil
	}
	if v, ok := m.graph.Validators[s.State]; ok && v != nil {
		return v(input), nil
	}
	return Valid(strings.TrimSpace(input)), nil
}

// Sweep removes sessions idle for longer than SessionTTL.
func (m *Machine) Sweep(ctx context.Context, now time.Time) (int, error) {
	if m.sessionTTL <= 0 {
		return 0, nil
	}
	n, err := m.store.Sweep(ctx, now.Add(-m.sessionTTL))
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Analytics counts sessions per state and the mean history length.
func (m *Machine) Analytics(ctx context.Context) (Analytics, error) {
	a := Analytics{ByState: map[State]int{}}
	history := 0
	err := m.store.Range(ctx, func(s *Session) bool {
		a.TotalUsers++
		a.ByState[s.State]++
		history += len(s.History)
		return true
	})
	if err != nil {
		return a, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if a.TotalUsers > 0 {
		a.AverageHistory = float64(history) / float64(a.TotalUsers)
	}
	return a, nil
}

func (m *Machine) load(ctx context.Context, userID int64) (*Session, error) {
	s, err := m.store.Load(ctx, userID)
	switch {
	case err == nil:
		if s.Data == nil {
			s.Data = Data{}
		}
		return s, nil
	case errors.Is(err, ErrSessionNotFound):
		return &Session{UserID: userID, State: m.graph.Initial, Data: Data{}, LastActivity: m.now()}, nil
	}
	logger.Error(ctx, logger.CompFSM, "store.load",
		slog.String("status", "fail"),
		slog.Int64("user_id", userID),
		slog.String("err", err.Error()),
	)
	return &Session{UserID: userID, State: m.graph.Initial}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func (m *Machine) save(ctx context.Context, s *Session) error {
	if err := m.store.Save(ctx, s); err != nil {
		logger.Error(ctx, logger.CompFSM, "store.save",
			slog.String("status", "fail"),
			slog.Int64("user_id", s.UserID),
			slog.String("state", string(s.State)),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (m *Machine) reject(ctx context.Context, cur *Session, target State, cause error) error {
	logger.Warn(ctx, logger.CompFSM, "transition.rejected",
		slog.String("status", "rejected"),
		slog.Int64("user_id", cur.UserID),
		slog.String("from", string(cur.State)),
		slog.String("to", string(target)),
		slog.String("cause", cause.Error()),
	)
	return &TransitionError{From: cur.State, To: target, Err: cause}
}

// advance builds the session that results from entering target. cur is not modified.
func (m *Machine) advance(cur *Session, target State, data Data) *Session {
	now := m.now()
	next := cur.Clone()
	next.History = append(next.History, HistoryEntry{
		State:     cur.State,
		Timestamp: now,
		Snapshot:  cur.Data.Clone(),
	})
	if over := len(next.History) - m.depth; over > 0 {
		next.History = append([]HistoryEntry(nil), next.History[over:]...)
	}
	if next.Data == nil {
		next.Data = Data{}
	}
	maps.Copy(next.Data, data)
	next.State = target
	next.Token++
	next.LastActivity = now
	return next
}

func (m *Machine) arm(s *Session) {
	d := m.timeouts[s.State]
	if d <= 0 {
		return
	}
	userID, armed, token := s.UserID, s.State, s.Token
	m.afterFunc(d, func() { m.expire(userID, armed, token) })
}

// expire runs when a state timer fires. It only acts when the user is still
// in the exact state entry the timer was armed for.
func (m *Machine) expire(userID int64, armed State, token uint64) {
	ctx := logger.WithUser(context.Background(), userID)
	unlock := m.locks.Lock(userID)

	cur, err := m.store.Load(ctx, userID)
	if err != nil {
		unlock()
		if !errors.Is(err, ErrSessionNotFound) {
			logger.Warn(ctx, logger.CompFSM, "timeout.load",
				slog.String("status", "fail"),
				slog.String("state", string(armed)),
				slog.String("err", err.Error()),
			)
		}
		return
	}
	if cur.State != armed || cur.Token != token {
		unlock()
		logger.Debug(ctx, logger.CompFSM, "timeout.stale",
			slog.String("status", "skip"),
			slog.String("state", string(armed)),
			slog.Uint64("token", token),
		)
		return
	}
	next := m.advance(cur, m.graph.Timeout, nil)
	err = m.save(ctx, next)
	unlock()
	if err != nil {
		return
	}
	logger.Info(ctx, logger.CompFSM, "timeout.fired",
		slog.String("status", "ok"),
		slog.String("from", string(armed)),
		slog.String("to", string(m.graph.Timeout)),
	)
	if m.onTimeout != nil {
		m.onTimeout(ctx, userID, armed)
	}
}
