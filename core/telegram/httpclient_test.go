package telegram

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyTripper struct {
	fails  int
	calls  int
	bodies []string
}

func (f *flakyTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		f.bodies = append(f.bodies, string(b))
	}
	if f.calls <= f.fails {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil))}, nil
}

func TestRetryTransportReplaysBody(t *testing.T) {
	base := &flakyTripper{fails: 2}
	rt := &retryTransport{base: base, maxRetries: 3}

	req, err := http.NewRequest(http.MethodPost, "http://example.invalid/findById/party", bytes.NewReader([]byte(`{"query":"1"}`)))
	require.NoError(t, err)

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 3, base.calls)
	assert.Equal(t, []string{`{"query":"1"}`, `{"query":"1"}`, `{"query":"1"}`}, base.bodies)
}

func TestRetryTransportGivesUp(t *testing.T) {
	base := &flakyTripper{fails: 10}
	rt := &retryTransport{base: base, maxRetries: 1}

	req, err := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	require.NoError(t, err)

	_, err = rt.RoundTrip(req)
	assert.Error(t, err)
	assert.Equal(t, 2, base.calls)
}

type statusTripper struct {
	codes []int
	calls int
}

func (s *statusTripper) RoundTrip(*http.Request) (*http.Response, error) {
	code := s.codes[min(s.calls, len(s.codes)-1)]
	s.calls++
	return &http.Response{StatusCode: code, Header: http.Header{}, Body: io.NopCloser(bytes.NewReader(nil))}, nil
}

func TestRetryTransportRetriesGatewayStatus(t *testing.T) {
	base := &statusTripper{codes: []int{http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusOK}}
	rt := &retryTransport{base: base, maxRetries: 3}

	req, err := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, base.calls)
}

func TestRetryTransportReturnsLastStatus(t *testing.T) {
	base := &statusTripper{codes: []int{http.StatusServiceUnavailable}}
	rt := &retryTransport{base: base, maxRetries: 1}

	req, err := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 2, base.calls)

	base = &statusTripper{codes: []int{http.StatusInternalServerError}}
	rt.base = base
	resp, err = rt.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 1, base.calls, "500 is not retried")
}

func TestRetryTransportSkipsUnreplayableBody(t *testing.T) {
	base := &flakyTripper{fails: 1}
	rt := &retryTransport{base: base, maxRetries: 3}

	req, err := http.NewRequest(http.MethodPost, "http://example.invalid/", io.NopCloser(bytes.NewReader([]byte("x"))))
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	assert.Error(t, err)
	assert.Equal(t, 1, base.calls)
}
