package dadata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/evabot/core/crosslink"
)

const partyJSON = `{"suggestions":[{"value":"ООО \"РОМАШКА\"","data":{
	"inn":"7707083893","kpp":"773601001","ogrn":"1027700132195",
	"name":{"full_with_opf":"ОБЩЕСТВО С ОГРАНИЧЕННОЙ ОТВЕТСТВЕННОСТЬЮ \"РОМАШКА\"","short_with_opf":"ООО \"РОМАШКА\""},
	"address":{"value":"г Москва, ул Вавилова, д 19"},
	"management":{"name":"Петров Пётр Петрович","post":"ГЕНЕРАЛЬНЫЙ ДИРЕКТОР"},
	"okved":"64.19",
	"state":{"status":"ACTIVE","registration_date":677376000000,"liquidation_date":null},
	"employee_count":120}}]}`

type fakeParty struct {
	calls atomic.Int32
	body  string
	code  int
	req   map[string]any
	hdr   http.Header
}

func (f *fakeParty) serve(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/findById/party", r.URL.Path)
		f.hdr = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &f.req)
		if f.code != 0 {
			w.WriteHeader(f.code)
		}
		_, _ = io.WriteString(w, f.body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestFindByINN(t *testing.T) {
	fake := &fakeParty{body: partyJSON}
	c := New(Config{APIKey: "key", Secret: "sec", BaseURL: fake.serve(t)}, nil, nil)

	got, err := c.FindByINN(context.Background(), "7707083893")
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.False(t, got.Stub)
	assert.Equal(t, "7707083893", got.INN)
	assert.Equal(t, "773601001", got.KPP)
	assert.Equal(t, `ООО "РОМАШКА"`, got.Name)
	assert.Equal(t, "г Москва, ул Вавилова, д 19", got.Address)
	assert.Equal(t, "Петров Пётр Петрович", got.Manager)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, 1991, got.RegisteredAt.Year())
	assert.True(t, got.LiquidatedAt.IsZero())
	assert.Equal(t, 120, got.EmployeeCount)

	assert.Equal(t, "Token key", fake.hdr.Get("Authorization"))
	assert.Equal(t, "sec", fake.hdr.Get("X-Secret"))
	assert.Equal(t, "7707083893", fake.req["query"])
}

func TestFindByINNNotFound(t *testing.T) {
	fake := &fakeParty{body: `{"suggestions":[]}`}
	c := New(Config{APIKey: "key", BaseURL: fake.serve(t)}, nil, nil)
	got, err := c.FindByINN(context.Background(), "500100732259")
	require.NoError(t, err)
	assert.False(t, got.Found)
	assert.Equal(t, "500100732259", got.INN)
}

func TestFindByINNUpstreamError(t *testing.T) {
	fake := &fakeParty{code: http.StatusForbidden, body: `{"message":"forbidden"}`}
	c := New(Config{APIKey: "key", BaseURL: fake.serve(t)}, nil, nil)
	_, err := c.FindByINN(context.Background(), "7707083893")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestFindByINNUsesCache(t *testing.T) {
	fake := &fakeParty{body: partyJSON}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cache := crosslink.New(nil, crosslink.Options{TTL: 24 * time.Hour, Now: func() time.Time { return now }})
	c := New(Config{APIKey: "key", BaseURL: fake.serve(t)}, nil, cache)
	ctx := context.Background()

	first, err := c.FindByINN(ctx, "7707083893")
	require.NoError(t, err)
	second, err := c.FindByINN(ctx, "7707083893")
	require.NoError(t, err)
	assert.Equal(t, first.Name, second.Name)
	assert.True(t, first.RegisteredAt.Equal(second.RegisteredAt))
	assert.Equal(t, int32(1), fake.calls.Load())

	now = now.Add(24 * time.Hour)
	_, err = c.FindByINN(ctx, "7707083893")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.calls.Load())
}

func TestStubWithoutKey(t *testing.T) {
	c := New(Config{}, nil, nil)
	assert.False(t, c.Configured())
	a, err := c.FindByINN(context.Background(), "7707083893")
	require.NoError(t, err)
	b, err := c.FindByINN(context.Background(), "7707083893")
	require.NoError(t, err)
	assert.True(t, a.Stub)
	assert.Equal(t, a, b)
	assert.Contains(t, a.Name, "3893")
}

func TestAssess(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	healthy := Company{Found: true, Status: StatusActive, RegisteredAt: now.AddDate(-5, 0, 0), EmployeeCount: 50, EmployeesKnown: true}
	a := Assess(healthy, now)
	assert.Equal(t, RiskLow, a.Level)
	assert.Equal(t, 100, a.Score)

	young := Company{Found: true, Status: StatusReorganizing, RegisteredAt: now.AddDate(0, -2, 0), EmployeeCount: 1, EmployeesKnown: true}
	a = Assess(young, now)
	assert.Equal(t, 40, a.Score)
	assert.Equal(t, RiskHigh, a.Level)
	assert.Len(t, a.Risks, 3)

	a = Assess(Company{Found: true, Status: StatusLiquidated}, now)
	assert.Equal(t, RiskCritical, a.Level)
	assert.Zero(t, a.Score)

	a = Assess(Company{}, now)
	assert.Equal(t, RiskCritical, a.Level)
}
