package csrf

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() *echo.Echo {
	e := echo.New()
	g := e.Group("/cart", Middleware(Config{}))
	g.GET("", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	g.POST("", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	return e
}

func issuedToken(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "XSRF-TOKEN" {
			return cookie.Value
		}
	}
	t.Fatal("no CSRF cookie issued")
	return ""
}

func TestGetIssuesTokenAndPasses(t *testing.T) {
	t.Parallel()

	e := newTestServer()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	token := issuedToken(t, rec)
	assert.NotEmpty(t, token)
	assert.Equal(t, token, rec.Header().Get("X-CSRF-Token"))
}

func TestMutationWithoutTokenRejected(t *testing.T) {
	t.Parallel()

	e := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/cart", strings.NewReader("{}"))
	req.Header.Set("Origin", "http://"+req.Host)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMutationWithMatchingTokenPasses(t *testing.T) {
	t.Parallel()

	e := newTestServer()

	get := httptest.NewRecorder()
	e.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/cart", nil))
	token := issuedToken(t, get)

	req := httptest.NewRequest(http.MethodPost, "/cart", strings.NewReader("{}"))
	req.Header.Set("Origin", "http://"+req.Host)
	req.AddCookie(&http.Cookie{Name: "XSRF-TOKEN", Value: token})
	req.Header.Set("X-CSRF-Token", token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMutationWithMismatchedTokenRejected(t *testing.T) {
	t.Parallel()

	e := newTestServer()

	get := httptest.NewRecorder()
	e.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/cart", nil))
	token := issuedToken(t, get)

	req := httptest.NewRequest(http.MethodPost, "/cart", strings.NewReader("{}"))
	req.Header.Set("Origin", "http://"+req.Host)
	req.AddCookie(&http.Cookie{Name: "XSRF-TOKEN", Value: token})
	req.Header.Set("X-CSRF-Token", "forged-token-of-the-same-shape")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCrossOriginMutationRejected(t *testing.T) {
	t.Parallel()

	e := newTestServer()

	get := httptest.NewRecorder()
	e.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/cart", nil))
	token := issuedToken(t, get)

	req := httptest.NewRequest(http.MethodPost, "/cart", strings.NewReader("{}"))
	req.Header.Set("Origin", "http://evil.example")
	req.AddCookie(&http.Cookie{Name: "XSRF-TOKEN", Value: token})
	req.Header.Set("X-CSRF-Token", token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
