package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_backend/internal/feature/convergence/domain/entity"
	convergencehandler "signal_backend/internal/feature/convergence/transport/handler"
	jwtmw "signal_backend/internal/platform/jwt"
)

type stubRunner struct{ calls int }

func (s *stubRunner) Run(_ context.Context, pair entity.Pair) (entity.RunReport, error) {
	s.calls++
	return entity.RunReport{Pair: pair}, nil
}

type stubLister struct{}

func (stubLister) List(context.Context, entity.Pair, int) ([]entity.ScoredSignal, error) {
	return nil, nil
}

type stubDiagnoser struct{}

func (stubDiagnoser) Diagnose(_ context.Context, pair entity.Pair, tol int) (entity.DiagnosticReport, error) {
	return entity.DiagnosticReport{Pair: pair, Tolerance: tol}, nil
}

const secret = "router-test-secret"

func newTestRouter(runner *stubRunner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := convergencehandler.NewConvergenceHandler(runner, stubLister{}, stubDiagnoser{}, time.Minute, 5)
	return NewRouter(h, Options{
		Log:            zerolog.Nop(),
		JWTSecret:      secret,
		AllowedOrigins: []string{"http://localhost:5173"},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
		Ready: func(c *gin.Context) { c.Status(http.StatusOK) },
	})
}

func TestNewRouter_PublicRoutes(t *testing.T) {
	r := newTestRouter(&stubRunner{})

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/signals/BTCUSDT/1h", "/diagnostics/BTCUSDT/1h"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestNewRouter_RunRequiresOperatorToken(t *testing.T) {
	runner := &stubRunner{}
	r := newTestRouter(runner)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/signals/BTCUSDT/1h/run", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, runner.calls)

	token, err := jwtmw.NewGenerator(secret, time.Hour).GenerateToken("ops")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/signals/BTCUSDT/1h/run", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, runner.calls)
}

func TestNewRouter_CORS(t *testing.T) {
	r := newTestRouter(&stubRunner{})

	req := httptest.NewRequest(http.MethodOptions, "/signals/BTCUSDT/1h/run", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
