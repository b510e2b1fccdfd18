package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/telhawk-stream/common/middleware"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/heartbeat"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/metrics"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/supervisor"
)

type fixedSource struct {
	sess *supervisor.Session
}

func (f fixedSource) Current() *supervisor.Session { return f.sess }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, healthResponse) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))

	var body healthResponse
	if rr.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

func TestHealth(t *testing.T) {
	sess := supervisor.NewSession(2, testLogger())
	router := NewRouter(NewHandlers(fixedSource{sess}), testLogger())

	tests := []struct {
		state      heartbeat.State
		wantCode   int
		wantStatus string
	}{
		{heartbeat.StateStarting, http.StatusOK, "healthy"},
		{heartbeat.StateRunning, http.StatusOK, "healthy"},
		{heartbeat.StateStalled, http.StatusServiceUnavailable, "unhealthy"},
		{heartbeat.StateTerminating, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			sess.Heart.SetState(tt.state)
			rr, body := get(t, router, "/healthz")
			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, sess.ID, body.Session)
			assert.Equal(t, 2, body.Attempt)
			require.NotNil(t, body.Heart)
			assert.Equal(t, tt.state.String(), body.Heart.State)
		})
	}
}

func TestHealth_CodeMatchesReportedState(t *testing.T) {
	sess := supervisor.NewSession(1, testLogger())
	router := NewRouter(NewHandlers(fixedSource{sess}), testLogger())

	stop := make(chan struct{})
	flipped := make(chan struct{})
	go func() {
		defer close(flipped)
		states := []heartbeat.State{heartbeat.StateRunning, heartbeat.StateStalled}
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				sess.Heart.SetState(states[i%2])
			}
		}
	}()

	for i := 0; i < 200; i++ {
		rr, body := get(t, router, "/healthz")
		require.NotNil(t, body.Heart)
		if body.Heart.State == heartbeat.StateRunning.String() {
			assert.Equal(t, http.StatusOK, rr.Code)
		} else {
			assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		}
	}
	close(stop)
	<-flipped
}

func TestHealth_NoSession(t *testing.T) {
	router := NewRouter(NewHandlers(fixedSource{}), testLogger())
	rr, body := get(t, router, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "no session", body.Status)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestReady(t *testing.T) {
	sess := supervisor.NewSession(1, testLogger())
	router := NewRouter(NewHandlers(fixedSource{sess}), testLogger())

	rr, body := get(t, router, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "session is STARTING", body.Error)

	sess.Heart.SetState(heartbeat.StateRunning)
	rr, body = get(t, router, "/readyz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ready", body.Status)

	sess.SetReadiness(func(context.Context) error { return errors.New("queue unreachable") })
	rr, body = get(t, router, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "queue unreachable", body.Error)
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter(NewHandlers(fixedSource{}), testLogger())
	before := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/healthz", "503"))

	get(t, router, "/healthz")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "telhawk_streamer_http_requests_total")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/healthz", "503")))
}

func TestRouter_UnknownPath(t *testing.T) {
	router := NewRouter(NewHandlers(fixedSource{}), testLogger())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/services/collector/event", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	series := testutil.CollectAndCount(metrics.HTTPRequests)
	unmatched := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(middleware.RouteUnmatched, "404"))

	for _, path := range []string{"/admin", "/wp-login.php", "/healthz/extra", "/.env"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}

	assert.Equal(t, series, testutil.CollectAndCount(metrics.HTTPRequests))
	assert.Equal(t, unmatched+4, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(middleware.RouteUnmatched, "404")))
}

func TestServer_ServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(ln.Addr().String(), NewRouter(NewHandlers(fixedSource{}), testLogger()), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/healthz")
		return err == nil
	}, time.Second, 10*time.Millisecond)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * shutdownTimeout):
		t.Fatal("server did not shut down")
	}
}
