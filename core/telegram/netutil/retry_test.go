package netutil

import (
	"errors"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(errors.New("bad request")))
	assert.True(t, Retryable(timeoutErr{}))
	assert.True(t, Retryable(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.True(t, Retryable(&url.Error{Op: "Post", URL: "x", Err: timeoutErr{}}))
	assert.False(t, Retryable(&url.Error{Op: "Post", URL: "x", Err: errors.New("eof")}))
}
