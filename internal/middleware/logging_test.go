// internal/middleware/logging_test.go
package middleware

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// hijackRecorder fakes a hijackable connection the way a real HTTP/1 server
// provides one.
type hijackRecorder struct {
	*httptest.ResponseRecorder
	conn net.Conn
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return h.conn, bufio.NewReadWriter(bufio.NewReader(h.conn), bufio.NewWriter(h.conn)), nil
}

func TestLogMiddleware_CapturesStatus(t *testing.T) {
	handler := LogMiddleware(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestLogMiddleware_WriterStaysHijackable(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	inner := &hijackRecorder{ResponseRecorder: httptest.NewRecorder(), conn: server}

	var hijacked net.Conn
	handler := LogMiddleware(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The websocket upgrade path type-asserts the writer directly.
		hj, ok := w.(http.Hijacker)
		require.True(t, ok, "wrapped writer must remain hijackable for ws upgrades")
		conn, rw, err := hj.Hijack()
		require.NoError(t, err)
		require.NotNil(t, rw)
		hijacked = conn
	}))

	handler.ServeHTTP(inner, httptest.NewRequest(http.MethodGet, "/game/ws/abc", nil))
	assert.Same(t, server, hijacked, "hijack reaches the underlying connection")
}

func TestLogMiddleware_HijackWithoutSupportErrors(t *testing.T) {
	handler := LogMiddleware(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, err := w.(http.Hijacker).Hijack()
		assert.Error(t, err, "plain recorder cannot be hijacked")
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
}
