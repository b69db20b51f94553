package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/brokerwatch/pkg/prometheus"
	"github.com/lk2023060901/brokerwatch/pkg/web/errors"
	"github.com/lk2023060901/brokerwatch/pkg/web/metrics"
	"github.com/lk2023060901/brokerwatch/pkg/web/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(&Config{Addr: "127.0.0.1:0", Mode: gin.TestMode}, nil)
	require.NoError(t, err)
	return s
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.ErrorIs(t, (&Config{Mode: gin.TestMode}).Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, (&Config{Addr: ":1", Mode: "prod"}).Validate(), ErrInvalidConfig)
}

func TestResponseEnvelope(t *testing.T) {
	s := newTestServer(t)
	s.Router().GET("/ok", func(c *gin.Context) { Success(c, gin.H{"n": 1}) })
	s.Router().GET("/missing", func(c *gin.Context) { Error(c, errors.CodeNotFound, "no such tenant") })
	s.Router().GET("/panic", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, errors.CodeOK, resp.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "no such tenant", resp.Message)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCodeToStatus(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, errors.CodeToStatus(errors.CodeRateLimited))
	assert.Equal(t, http.StatusBadRequest, errors.CodeToStatus(errors.CodeInvalidParams))
	assert.Equal(t, http.StatusServiceUnavailable, errors.CodeToStatus(errors.CodeUnavailable))
	assert.Equal(t, http.StatusInternalServerError, errors.CodeToStatus(50099))
}

func TestRateLimitPerKey(t *testing.T) {
	s := newTestServer(t)
	limiter := middleware.NewRateLimiter(nil, middleware.RateLimitConfig{
		Interval: time.Hour,
		Burst:    1,
		KeyFunc:  func(c *gin.Context) string { return c.Param("tenant") },
	})
	s.Router().POST("/poll/:tenant", middleware.RateLimit(limiter), func(c *gin.Context) { Accepted(c, nil) })

	do := func(tenant string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/poll/"+tenant, nil))
		return rec
	}

	assert.Equal(t, http.StatusAccepted, do("acme").Code)
	rec := do("acme")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusAccepted, do("globex").Code)
	assert.Equal(t, 2, limiter.Len())
}

func TestMetricsMiddleware(t *testing.T) {
	prom, err := prometheus.New(&prometheus.Config{Namespace: "test", Path: "/metrics"})
	require.NoError(t, err)
	m, err := metrics.NewHTTPMetrics(prom)
	require.NoError(t, err)

	s := newTestServer(t)
	s.Router().Use(middleware.Metrics(m))
	s.Router().GET("/health", func(c *gin.Context) { Success(c, nil) })

	for i := 0; i < 3; i++ {
		s.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/health", "GET", "200")))
}

func TestServerStartStop(t *testing.T) {
	s := newTestServer(t)
	s.Router().GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.ErrorIs(t, s.Start(ctx), ErrServerAlreadyStarted)

	resp, err := http.Get("http://" + s.Addr() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	require.NoError(t, s.Stop(ctx))
}
