package loggingmw

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souqdev/souq/internal/logging"
)

func newTestServer(buf *bytes.Buffer) *echo.Echo {
	base := slog.New(slog.NewJSONHandler(buf, nil))

	e := echo.New()
	e.Use(middleware.RequestID())
	e.Use(RequestLogger(base))
	e.GET("/ping", func(c echo.Context) error {
		logging.FromContext(c.Request().Context()).Info("handler_reached")
		return c.NoContent(http.StatusOK)
	})
	e.GET("/boom", func(c echo.Context) error {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "nope"})
	})
	return e
}

func TestRequestLoggerCarriesLoggerIntoContext(t *testing.T) {
	var buf bytes.Buffer
	e := newTestServer(&buf)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	out := buf.String()
	assert.Contains(t, out, "handler_reached", "handlers must log through the context logger")
	assert.Contains(t, out, `"request_id":"req-123"`)
	assert.Contains(t, out, `"path":"/ping"`)
	assert.Contains(t, out, "request completed")
}

func TestRequestLoggerGeneratedRequestID(t *testing.T) {
	var buf bytes.Buffer
	e := newTestServer(&buf)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	rid := rec.Header().Get(echo.HeaderXRequestID)
	require.NotEmpty(t, rid)
	assert.Contains(t, buf.String(), `"request_id":"`+rid+`"`)
}

func TestRequestLoggerWarnsOnClientError(t *testing.T) {
	var buf bytes.Buffer
	e := newTestServer(&buf)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), `"status":400`)
}
