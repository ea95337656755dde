package conversation

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/evabot/bot/features"
	"github.com/m3rciful/evabot/bot/workflow"
	"github.com/m3rciful/evabot/core/crosslink"
	"github.com/m3rciful/evabot/core/dadata"
	"github.com/m3rciful/evabot/core/telegram/state"
)

const user int64 = 42

type finder struct{}

func (finder) FindByINN(_ context.Context, inn string) (dadata.Company, error) {
	switch inn {
	case "7707083893":
		return dadata.Company{
			Found: true, INN: inn, KPP: "773601001", Name: "ПАО Сбербанк",
			Address: "г Москва, ул Вавилова, д 19", Status: dadata.StatusActive,
			RegisteredAt: time.Date(1991, 6, 20, 0, 0, 0, 0, time.UTC),
		}, nil
	case "0000000000":
		return dadata.Company{}, errors.New("upstream down")
	}
	return dadata.Company{INN: inn}, nil
}

type flakyStore struct {
	*state.MemoryStore
	down bool
}

func (f *flakyStore) Load(ctx context.Context, userID int64) (*state.Session, error) {
	if f.down {
		return nil, errors.New("connection refused")
	}
	return f.MemoryStore.Load(ctx, userID)
}

type harness struct {
	mu      sync.Mutex
	svc     *Service
	machine *state.Machine
	timers  []func()
	expired []state.State
}

func newHarness(t *testing.T, store state.Store) *harness {
	t.Helper()
	return newHarnessWith(t, store, finder{}, nil)
}

func newHarnessWith(t *testing.T, store state.Store, companies features.CompanyFinder, links crosslink.Backend) *harness {
	t.Helper()
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	h := &harness{}
	m, err := state.NewMachine(state.Options{
		Graph: workflow.NewGraph(workflow.Options{}),
		Store: store,
		Now:   clock,
		AfterFunc: func(_ time.Duration, f func()) {
			h.mu.Lock()
			h.timers = append(h.timers, f)
			h.mu.Unlock()
		},
		OnTimeout: func(_ context.Context, _ int64, expired state.State) {
			h.mu.Lock()
			h.expired = append(h.expired, expired)
			h.mu.Unlock()
		},
	})
	require.NoError(t, err)
	suite := features.New(features.Options{
		Links:     crosslink.New(links, crosslink.Options{TTL: time.Hour, Now: clock}),
		Companies: companies,
		Now:       clock,
		NewID:     func() string { return "doc-1" },
	})
	svc, err := New(Options{Machine: m, Suite: suite})
	require.NoError(t, err)
	h.svc, h.machine = svc, m
	return h
}

func (h *harness) start(t *testing.T) Reply {
	t.Helper()
	r, err := h.svc.Start(context.Background(), user)
	require.NoError(t, err)
	return r
}

func (h *harness) press(t *testing.T, a state.Action) Reply {
	t.Helper()
	r, err := h.svc.Handle(context.Background(), Event{UserID: user, Kind: KindCallback, Payload: string(a)})
	require.NoError(t, err)
	return r
}

func (h *harness) send(t *testing.T, text string) Reply {
	t.Helper()
	r, err := h.svc.Handle(context.Background(), Event{UserID: user, Kind: KindMessage, Payload: text})
	require.NoError(t, err)
	return r
}

func (h *harness) upload(t *testing.T, name, body string) Reply {
	t.Helper()
	r, err := h.svc.Handle(context.Background(), Event{
		UserID: user,
		Kind:   KindDocument,
		Document: &DocumentInput{
			Name: name,
			MIME: "text/plain; charset=utf-8",
			Size: int64(len(body)),
			Open: func(context.Context) (io.ReadCloser, error) {
				return io.NopCloser(strings.NewReader(body)), nil
			},
		},
	})
	require.NoError(t, err)
	return r
}

func TestNewCoversGraph(t *testing.T) {
	h := newHarness(t, nil)
	assert.ElementsMatch(t, []state.State{
		workflow.DocumentUpload, workflow.INNInput, workflow.EverestWizardStep2,
		workflow.DocParamsInput, workflow.LegalQuestion,
	}, h.svc.InputStates())
	assert.Contains(t, h.svc.Actions(), workflow.ActionRestart)

	_, err := New(Options{})
	assert.Error(t, err)
}

func TestContractAnalysisAndBack(t *testing.T) {
	h := newHarness(t, nil)

	r := h.start(t)
	assert.Equal(t, workflow.MainMenu, r.State)
	assert.Contains(t, r.Actions, workflow.ActionContracts)

	r = h.press(t, workflow.ActionContracts)
	assert.Equal(t, workflow.DocumentUpload, r.State)

	r = h.send(t, "вот договор")
	assert.Equal(t, workflow.DocumentUpload, r.State)
	assert.Equal(t, msgSendDocument, r.Notice)

	r = h.upload(t, "contract.exe", "")
	assert.Equal(t, workflow.DocumentUpload, r.State)
	assert.Contains(t, r.Notice, "Поддерживаются файлы")

	r = h.upload(t, "contract.txt", "Неустойка 1% в день. Штраф 100 000 рублей.")
	require.Equal(t, workflow.DocumentResults, r.State)
	assert.Contains(t, r.Body, "contract.txt")
	assert.Contains(t, r.Body, "Неустойка")
	assert.Contains(t, r.Body, "Штрафы")
	assert.True(t, r.CanGoBack)

	r = h.press(t, workflow.ActionRedline)
	require.Equal(t, workflow.DocumentRedline, r.State)
	assert.Contains(t, r.Body, "Предлагаем")

	r = h.press(t, workflow.ActionBack)
	assert.Equal(t, workflow.DocumentResults, r.State)

	r = h.press(t, workflow.ActionBack)
	assert.Equal(t, workflow.DocumentUpload, r.State, "analyzing is skipped")
}

func TestStaleAndUnknownActions(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	r := h.press(t, workflow.ActionRedline)
	assert.Equal(t, workflow.MainMenu, r.State)
	assert.Equal(t, msgUnavailable, r.Notice)

	r = h.press(t, "nonexistent")
	assert.Equal(t, workflow.MainMenu, r.State)
	assert.Equal(t, msgUnavailable, r.Notice)

	r = h.send(t, "привет")
	assert.Equal(t, msgUseButtons, r.Notice)
}

func TestINNFlow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.start(t)
	h.press(t, workflow.ActionINNCheck)

	r := h.send(t, "123")
	assert.Equal(t, workflow.INNInput, r.State)
	assert.Contains(t, r.Notice, "10 или 12 цифр")

	r = h.send(t, "1234567890")
	assert.Equal(t, workflow.INNInput, r.State)
	assert.Contains(t, r.Notice, "не найдена")

	r = h.send(t, "7707 083 893")
	require.Equal(t, workflow.INNResults, r.State)
	assert.Contains(t, r.Body, "ПАО Сбербанк")

	r = h.press(t, workflow.ActionDetailedInfo)
	assert.Equal(t, workflow.INNDetailed, r.State)

	links, err := h.svc.Links(ctx, user)
	require.NoError(t, err)
	assert.Contains(t, links, "Реквизиты контрагента")

	h.press(t, workflow.ActionNewCheck)
	r = h.send(t, "0000000000")
	assert.Equal(t, workflow.Error, r.State)
	assert.Equal(t, msgServiceDown, r.Notice)
	assert.Equal(t, []state.Action{workflow.ActionHome, workflow.ActionRestart}, r.Actions)

	r = h.press(t, workflow.ActionHome)
	assert.Equal(t, workflow.MainMenu, r.State)
}

func TestWizardUsesCompanyData(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.press(t, workflow.ActionEverest)
	h.press(t, workflow.ActionWizard)
	h.press(t, workflow.ActionWizardStart)
	r := h.press(t, workflow.ActionSupply)
	require.Equal(t, workflow.EverestWizardStep2, r.State)

	r = h.send(t, "Название: ООО Ромашка")
	assert.Equal(t, workflow.EverestWizardStep2, r.State)
	assert.Contains(t, r.Notice, "Отсутствуют обязательные поля")

	r = h.send(t, "Название: ООО Ромашка\nИНН: 7707083893\nАдрес: г Москва\nКПП: 770101001")
	require.Equal(t, workflow.EverestWizardStep3, r.State)
	assert.Contains(t, r.Body, "ООО Ромашка")
	assert.Contains(t, r.Body, "поставка")

	r = h.press(t, workflow.ActionGenerate)
	require.Equal(t, workflow.DocReady, r.State)
	assert.Contains(t, r.Body, "ДОГОВОР ПОСТАВКИ")
	assert.Contains(t, r.Body, "ООО Ромашка")
	assert.Contains(t, r.Body, "КПП 770101001")
}

func TestDocumentTemplateFlow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.start(t)
	h.press(t, workflow.ActionDocuments)
	r := h.press(t, workflow.ActionTplInvoice)
	require.Equal(t, workflow.DocParamsInput, r.State)

	r = h.send(t, "номер: 15\nсумма: 1000")
	require.Equal(t, workflow.DocReady, r.State)
	assert.Contains(t, r.Body, "СЧЁТ НА ОПЛАТУ № 15")

	sess, err := h.machine.Session(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", sess.Data[workflow.KeyDocID])
	assert.Equal(t, workflow.TemplateInvoice, sess.Data[workflow.KeyDocType])
}

func TestLegalQuestionFlow(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.press(t, workflow.ActionLegalHelp)
	r := h.press(t, workflow.ActionCatLabor)
	require.Equal(t, workflow.LegalQuestion, r.State)

	r = h.send(t, "   ")
	assert.Equal(t, workflow.LegalQuestion, r.State)
	assert.NotEmpty(t, r.Notice)

	r = h.send(t, "Как уволить сотрудника по соглашению сторон?")
	require.Equal(t, workflow.LegalResponse, r.State)
	assert.Contains(t, r.Body, "трудовое право")

	r = h.press(t, workflow.ActionBack)
	assert.Equal(t, workflow.LegalQuestion, r.State)
}

func TestToggleNotifications(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.press(t, workflow.ActionSettings)
	r := h.press(t, workflow.ActionNotifications)
	assert.Contains(t, r.Body, "включены")

	r = h.press(t, workflow.ActionToggleNotify)
	assert.Equal(t, workflow.SettingsMenu, r.State)
	assert.Equal(t, msgNotifyOff, r.Notice)

	r = h.press(t, workflow.ActionNotifications)
	assert.Contains(t, r.Body, "выключены")
	r = h.press(t, workflow.ActionToggleNotify)
	assert.Equal(t, msgNotifyOn, r.Notice)
}

func TestTimeoutMovesUserAndNotifies(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.start(t)
	h.press(t, workflow.ActionINNCheck)
	require.Len(t, h.timers, 1)

	h.timers[0]()
	assert.Equal(t, []state.State{workflow.INNInput}, h.expired)
	assert.Equal(t, workflow.Timeout, h.machine.GetState(ctx, user))

	r, err := h.svc.TimeoutReply(ctx, user, workflow.INNInput)
	require.NoError(t, err)
	assert.Equal(t, workflow.Timeout, r.State)
	assert.Contains(t, r.Notice, "Ожидание ввода ИНН")

	r = h.press(t, workflow.ActionINNCheck)
	assert.Equal(t, msgUnavailable, r.Notice)

	r = h.press(t, workflow.ActionRestart)
	assert.Equal(t, workflow.MainMenu, r.State)
}

func TestStaleTimerIgnored(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.start(t)
	h.press(t, workflow.ActionINNCheck)
	h.press(t, workflow.ActionBack)
	require.Len(t, h.timers, 1)

	h.timers[0]()
	assert.Empty(t, h.expired)
	assert.Equal(t, workflow.MainMenu, h.machine.GetState(ctx, user))
}

func TestStoreFailureReturnsGenericReply(t *testing.T) {
	store := &flakyStore{MemoryStore: state.NewMemoryStore()}
	h := newHarness(t, store)
	h.start(t)

	store.down = true
	r := h.press(t, workflow.ActionContracts)
	assert.Equal(t, workflow.Error, r.State)
	assert.Equal(t, msgFailure, r.Notice)

	r, err := h.svc.Start(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, msgFailure, r.Notice)

	store.down = false
	r = h.press(t, workflow.ActionContracts)
	assert.Equal(t, workflow.DocumentUpload, r.State, "session survives the outage")
}

func TestResetAndStats(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.start(t)
	h.press(t, workflow.ActionHelp)

	r, err := h.svc.ResetSession(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, workflow.MainMenu, r.State)
	assert.Equal(t, msgReset, r.Notice)

	_, err = h.svc.Start(ctx, user+1)
	require.NoError(t, err)

	stats, err := h.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Contains(t, stats, "Пользователей: 2")
	assert.Contains(t, stats, "main_menu: 2")
	assert.Contains(t, stats, "Версия: dev (local)")

	links, err := h.svc.Links(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "Сохранённых результатов нет.", links)
}

func TestOversizedDocumentRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.press(t, workflow.ActionContracts)

	r, err := h.svc.Handle(context.Background(), Event{
		UserID:   user,
		Kind:     KindDocument,
		Document: &DocumentInput{Name: "big.pdf", Size: DefaultMaxDocument + 1},
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.DocumentUpload, r.State)
	assert.Equal(t, msgTooLarge, r.Notice)
}

// gatedFinder blocks lookups until release is closed.
type gatedFinder struct {
	started chan struct{}
	release chan struct{}
}

func (g gatedFinder) FindByINN(ctx context.Context, inn string) (dadata.Company, error) {
	close(g.started)
	select {
	case <-g.release:
	case <-ctx.Done():
		return dadata.Company{}, ctx.Err()
	}
	return dadata.Company{INN: inn}, nil
}

func TestSlowLookupDoesNotBlockOtherUsers(t *testing.T) {
	g := gatedFinder{started: make(chan struct{}), release: make(chan struct{})}
	h := newHarnessWith(t, nil, g, nil)
	ctx := context.Background()
	const slow, other int64 = 1, 65

	_, err := h.svc.Start(ctx, slow)
	require.NoError(t, err)
	_, err = h.svc.Handle(ctx, Event{UserID: slow, Kind: KindCallback, Payload: string(workflow.ActionINNCheck)})
	require.NoError(t, err)

	lookup := make(chan Reply, 1)
	go func() {
		r, _ := h.svc.Handle(ctx, Event{UserID: slow, Kind: KindMessage, Payload: "7707083893"})
		lookup <- r
	}()
	<-g.started

	started := make(chan Reply, 1)
	go func() {
		r, _ := h.svc.Start(ctx, other)
		started <- r
	}()
	select {
	case r := <-started:
		assert.Equal(t, workflow.MainMenu, r.State)
	case <-time.After(time.Second):
		t.Fatal("start for another user waited on a pending lookup")
	}

	close(g.release)
	r := <-lookup
	assert.Equal(t, workflow.INNInput, r.State)
}

type failingPuts struct{ *crosslink.MemoryBackend }

func (failingPuts) Put(context.Context, crosslink.Entry) error {
	return errors.New("connection refused")
}

func TestTemplateFailureMovesToError(t *testing.T) {
	h := newHarnessWith(t, nil, finder{}, failingPuts{crosslink.NewMemoryBackend()})
	ctx := context.Background()
	h.start(t)
	h.press(t, workflow.ActionEverest)

	r := h.press(t, workflow.ActionSupplyContract)
	assert.Equal(t, workflow.Error, r.State)
	assert.Equal(t, msgServiceDown, r.Notice)
	assert.Equal(t, workflow.Error, h.machine.GetState(ctx, user))
}
