package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	stMain    State = "main_menu"
	stUpload  State = "document_upload"
	stResults State = "document_results"
	stINN     State = "inn_input"
	stError   State = "error"
	stTimeout State = "timeout"
)

func testGraph() *Graph {
	return &Graph{
		Initial:   StateIdle,
		Home:      stMain,
		Timeout:   stTimeout,
		Universal: []State{stMain, stError},
		Transitions: map[State][]State{
			StateIdle: {stMain},
			stMain:    {stUpload, stINN},
			stUpload:  {stResults},
			stResults: {stUpload},
			stINN:     {stResults},
			stError:   {},
			stTimeout: {},
		},
		Timeouts: map[State]time.Duration{stINN: 5 * time.Minute},
		Inputs:   map[State]InputKind{stUpload: InputDocument, stINN: InputText},
		Actions:  map[State][]Action{stMain: {"contracts", "inn_check"}},
		Validators: map[State]Validator{
			stINN: func(in string) ValidationResult {
				if len(in) != 10 {
					return Invalid("need 10 characters")
				}
				return Valid(in)
			},
		},
		DataKeys:       map[State][]string{stResults: {"inn", "file_id"}},
		DefaultActions: []Action{"back", "home"},
	}
}

type fakeTimers struct {
	mu    sync.Mutex
	fired []func()
	waits []time.Duration
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, d)
	f.fired = append(f.fired, fn)
}

func (f *fakeTimers) fire(i int) { f.fired[i]() }

type fixture struct {
	m      *Machine
	store  *MemoryStore
	timers *fakeTimers
	now    time.Time
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{store: NewMemoryStore(), timers: &fakeTimers{}, now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts := Options{
		Graph:      testGraph(),
		Store:      f.store,
		SessionTTL: 24 * time.Hour,
		Now:        func() time.Time { return f.now },
		AfterFunc:  f.timers.AfterFunc,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	m, err := NewMachine(opts)
	require.NoError(t, err)
	f.m = m
	return f
}

func TestGetStateDefaultsToIdle(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, StateIdle, f.m.GetState(context.Background(), 42))
	assert.Zero(t, f.store.Len(), "reading must not create a session")
}

func TestDeclaredAndUniversalTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.m.Transition(ctx, 1, stMain, nil))
	require.NoError(t, f.m.Transition(ctx, 1, stUpload, nil))

	err := f.m.Transition(ctx, 1, stINN, nil)
	require.ErrorIs(t, err, ErrInvalidTransition)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, stUpload, te.From)
	assert.Equal(t, stINN, te.To)
	assert.Equal(t, stUpload, f.m.GetState(ctx, 1))

	require.NoError(t, f.m.Transition(ctx, 1, stError, nil), "error is reachable from anywhere")
	require.NoError(t, f.m.Transition(ctx, 1, stMain, nil), "main menu is reachable from anywhere")
}

func TestRejectedTransitionLeavesSessionUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Transition(ctx, 1, stMain, Data{"k": "v"}))
	before, err := f.m.Session(ctx, 1)
	require.NoError(t, err)

	require.Error(t, f.m.Transition(ctx, 1, stResults, Data{"inn": "1"}))
	require.ErrorIs(t, f.m.Transition(ctx, 1, "no_such_state", nil), ErrUnknownState)

	after, err := f.m.Session(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestTransitionMergesDataShallowly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Transition(ctx, 1, stMain, Data{"a": "1", "b": "2"}))
	require.NoError(t, f.m.Transition(ctx, 1, stINN, Data{"b": "3", "c": "4"}))

	s, err := f.m.Session(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Data{"a": "1", "b": "3", "c": "4"}, s.Data)
}

func TestUnknownDataKeyIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Transition(ctx, 1, stMain, nil))
	require.NoError(t, f.m.Transition(ctx, 1, stUpload, nil))

	err := f.m.Transition(ctx, 1, stResults, Data{"amount": "10"})
	require.ErrorIs(t, err, ErrUnknownDataKey)
	assert.Equal(t, stUpload, f.m.GetState(ctx, 1))

	require.NoError(t, f.m.Transition(ctx, 1, stResults, Data{"file_id": "f1"}))
}

func TestGoBackRestoresStateAndSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Transition(ctx, 1, stMain, Data{"x": "1"}))
	require.NoError(t, f.m.Transition(ctx, 1, stINN, Data{"x": "2", "y": "3"}))

	st, err := f.m.GoBack(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, stMain, st)

	s, err := f.m.Session(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, stMain, s.State)
	assert.Equal(t, Data{"x": "1"}, s.Data)
	assert.Len(t, s.History, 1)
}

func TestGoBackWithEmptyHistoryFallsBackHome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.m.GoBack(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, stMain, st)
	assert.Equal(t, stMain, f.m.GetState(ctx, 7))
}

func TestGoBackAtHomeWithEmptyHistoryStaysHome(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.HistoryDepth = 1 })
	ctx := context.Background()
	require.NoError(t, f.m.Transition(ctx, 7, stMain, nil))
	require.NoError(t, f.m.Transition(ctx, 7, stINN, nil))
	_, err := f.m.GoBack(ctx, 7)
	require.NoError(t, err)
	before, err := f.m.Session(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, before.History)

	st, err := f.m.GoBack(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, stMain, st)
	after, err := f.m.Session(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestHistoryIsCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Transition(ctx, 1, stMain, nil))
	require.NoError(t, f.m.Transition(ctx, 1, stUpload, nil))
	for i := 0; i < 25; i++ {
		target := stResults
		if i%2 == 1 {
			target = stUpload
		}
		require.NoError(t, f.m.Transition(ctx, 1, target, Data{"inn": fmt.Sprint(i)}))
	}

	s, err := f.m.Session(ctx, 1)
	require.NoError(t, err)
	require.Len(t, s.History, 10)
	assert.Equal(t, "14", s.History[0].Snapshot["inn"], "oldest entries are dropped")
	assert.Equal(t, "23", s.History[9].Snapshot["inn"])
}

func TestCustomHistoryDepth(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.HistoryDepth = 2 })
	ctx := context.Background()
	require.NoError(t, f.m.Transition(ctx, 1, stMain, nil))
	require.NoError(t, f.m.Transition(ctx, 1, stUpload, nil))
	require.NoError(t, f.m.Transition(ctx, 1, stResults, nil))
	s, err := f.m.Session(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []State{stMain, stUpload}, []State{s.History[0].State, s.History[1].State})
}

func TestResetClearsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Transition(ctx, 1, stMain, Data{"a": "1"}))
	require.NoError(t, f.m.Transition(ctx, 1, stINN, nil))
	require.NoError(t, f.m.Reset(ctx, 1))

	d, err := f.m.Describe(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, d.State)
	assert.Empty(t, d.Data)
	assert.False(t, d.CanGoBack)
}

func TestTimerFiresOnlyForCurrentEntry(t *testing.T) {
	var hooked []State
	f := newFixture(t, func(o *Options) {
		o.OnTimeout = func(_ context.Context, _ int64, expired State) { hooked = append(hooked, expired) }
	})
	ctx := context.Background()
	require.NoError(t, f.m.Transition(ctx, 1, stMain, nil))
	require.NoError(t, f.m.Transition(ctx, 1, stINN, nil))
	require.Len(t, f.timers.fired, 1)
	assert.Equal(t, 5*time.Minute, f.timers.waits[0])

	// leave and come back: the first timer is now stale
	require.NoError(t, f.m.Transition(ctx, 1, stMain, nil))
	f.timers.fire(0)
	assert.Equal(t, stMain, f.m.GetState(ctx, 1))

	require.NoError(t, f.m.Transition(ctx, 1, stINN, nil))
	require.Len(t, f.timers.fired, 2)
	f.timers.fire(0)
	assert.Equal(t, stINN, f.m.GetState(ctx, 1), "stale timer must not act after re-entry")
	assert.Empty(t, hooked)

	f.timers.fire(1)
	assert.Equal(t, stTimeout, f.m.GetState(ctx, 1))
	assert.Equal(t, []State{stINN}, hooked)

	st, err := f.m.GoBack(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, stINN, st, "timeout is a regular history step")
}

func TestTimerAfterResetIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Transition(ctx, 1, stMain, nil))
	require.NoError(t, f.m.Transition(ctx, 1, stINN, nil))
	require.NoError(t, f.m.Reset(ctx, 1))
	f.timers.fire(0)
	assert.Equal(t, StateIdle, f.m.GetState(ctx, 1))
}

func TestResetArmsInitialTimeout(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.TimeoutOverrides = map[State]time.Duration{StateIdle: time.Minute}
	})
	ctx := context.Background()
	require.NoError(t, f.m.Transition(ctx, 1, stMain, nil))
	require.NoError(t, f.m.Reset(ctx, 1))
	require.Equal(t, []time.Duration{time.Minute}, f.timers.waits)

	f.timers.fire(0)
	assert.Equal(t, stTimeout, f.m.GetState(ctx, 1))
}

func TestTimeoutOverrides(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.TimeoutOverrides = map[State]time.Duration{stINN: 0, stUpload: time.Minute}
	})
	ctx := context.Background()
	require.NoError(t, f.m.Transition(ctx, 1, stMain, nil))
	require.NoError(t, f.m.Transition(ctx, 1, stINN, nil))
	assert.Empty(t, f.timers.fired)
	require.NoError(t, f.m.Transition(ctx, 2, stMain, nil))
	require.NoError(t, f.m.Transition(ctx, 2, stUpload, nil))
	assert.Equal(t, []time.Duration{time.Minute}, f.timers.waits)

	_, err := NewMachine(Options{Graph: testGraph(), TimeoutOverrides: map[State]time.Duration{"nope": time.Second}})
	require.ErrorIs(t, err, ErrUnknownState)
}

func TestDescribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Transition(ctx, 1, stMain, nil))

	d, err := f.m.Describe(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, stMain, d.State)
	assert.True(t, d.CanGoBack)
	assert.Equal(t, InputCallback, d.ExpectedInput)
	assert.Equal(t, []Action{"contracts", "inn_check"}, d.Actions)

	require.NoError(t, f.m.Transition(ctx, 1, stUpload, nil))
	d, err = f.m.Describe(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, InputDocument, d.ExpectedInput)
	assert.Equal(t, []Action{"back", "home"}, d.Actions)

	d.Actions[0] = "mutated"
	d2, _ := f.m.Describe(ctx, 1)
	assert.Equal(t, Action("back"), d2.Actions[0], "describe returns copies")
}

func TestValidateInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Transition(ctx, 1, stMain, nil))
	require.NoError(t, f.m.Transition(ctx, 1, stINN, nil))

	res, err := f.m.ValidateInput(ctx, 1, "x", InputDocument)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, CodeKindMismatch, res.Code)

	res, err = f.m.ValidateInput(ctx, 1, "123", InputText)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "need 10 characters", res.Error)

	res, err = f.m.ValidateInput(ctx, 1, "1234567890", InputText)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "1234567890", res.Normalized)

	require.NoError(t, f.m.Transition(ctx, 2, stMain, nil))
	res, err = f.m.ValidateInput(ctx, 2, "contracts", InputCallback)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

type flakyStore struct {
	*MemoryStore
	failSave bool
	failLoad bool
}

func (s *flakyStore) Save(ctx context.Context, sess *Session) error {
	if s.failSave {
		return errors.New("connection refused")
	}
	return s.MemoryStore.Save(ctx, sess)
}

func (s *flakyStore) Load(ctx context.Context, id int64) (*Session, error) {
	if s.failLoad {
		return nil, errors.New("connection refused")
	}
	return s.MemoryStore.Load(ctx, id)
}

func TestStoreFailureIsNotPartiallyApplied(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	timers := &fakeTimers{}
	m, err := NewMachine(Options{Graph: testGraph(), Store: store, AfterFunc: timers.AfterFunc})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, m.Transition(ctx, 1, stMain, Data{"a": "1"}))

	store.failSave = true
	err = m.Transition(ctx, 1, stINN, Data{"a": "2"})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Empty(t, timers.fired, "no timer for a transition that did not happen")

	store.failSave = false
	s, err := m.Session(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, stMain, s.State)
	assert.Equal(t, Data{"a": "1"}, s.Data)
	assert.Len(t, s.History, 1)

	store.failLoad = true
	_, err = m.Describe(ctx, 1)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, StateIdle, m.GetState(ctx, 1))
}

func TestSweepAndAnalytics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Transition(ctx, 1, stMain, nil))
	f.now = f.now.Add(20 * time.Hour)
	require.NoError(t, f.m.Transition(ctx, 2, stMain, nil))
	require.NoError(t, f.m.Transition(ctx, 2, stINN, nil))

	a, err := f.m.Analytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, a.TotalUsers)
	assert.Equal(t, map[State]int{stMain: 1, stINN: 1}, a.ByState)
	assert.InDelta(t, 1.5, a.AverageHistory, 0.001)

	n, err := f.m.Sweep(ctx, f.now.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, StateIdle, f.m.GetState(ctx, 1))
	assert.Equal(t, stINN, f.m.GetState(ctx, 2))
}

func TestGraphValidate(t *testing.T) {
	g := testGraph()
	g.Transitions[stMain] = append(g.Transitions[stMain], "ghost")
	g.Timeouts[stTimeout] = time.Minute
	g.Actions["phantom"] = []Action{"x"}

	err := g.Validate()
	require.Error(t, err)
	for _, want := range []string{`"ghost"`, `"phantom"`, "must not have a timer"} {
		assert.True(t, strings.Contains(err.Error(), want), "missing %s in %v", want, err)
	}

	_, err = NewMachine(Options{Graph: g})
	require.Error(t, err)
}

func TestConcurrentUsersAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for u := int64(1); u <= 50; u++ {
		wg.Add(1)
		go func(u int64) {
			defer wg.Done()
			_ = f.m.Transition(ctx, u, stMain, nil)
			for i := 0; i < 20; i++ {
				_ = f.m.Transition(ctx, u, stUpload, nil)
				_ = f.m.Transition(ctx, u, stResults, nil)
			}
		}(u)
	}
	wg.Wait()
	for u := int64(1); u <= 50; u++ {
		assert.Equal(t, stResults, f.m.GetState(ctx, u))
	}
}
