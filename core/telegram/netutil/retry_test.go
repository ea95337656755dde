package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestShouldRetry(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad request"), false},
		{"canceled", fmt.Errorf("send: %w", context.Canceled), false},
		{"dial", dial, true},
		{"url wrapped dial", &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: dial}, true},
		{"timeout", &url.Error{Op: "Get", Err: timeoutErr{}}, true},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldRetry(tc.err))
		})
	}
}

func TestRetryableStatus(t *testing.T) {
	assert.True(t, RetryableStatus(http.StatusServiceUnavailable))
	assert.True(t, RetryableStatus(http.StatusTooManyRequests))
	assert.False(t, RetryableStatus(http.StatusInternalServerError))
	assert.False(t, RetryableStatus(http.StatusOK))
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "timeout", Kind(context.DeadlineExceeded))
	assert.Equal(t, "canceled", Kind(context.Canceled))
	assert.Equal(t, "dns", Kind(&net.DNSError{Err: "no such host", Name: "x"}))
	assert.Equal(t, "dial", Kind(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.Equal(t, "reset", Kind(&net.OpError{Op: "read", Err: syscall.ECONNRESET}))
	assert.Equal(t, "unknown", Kind(errors.New("boom")))
}
