package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/locator-validation/internal/config"
	"github.com/iliyamo/locator-validation/internal/model"
)

const testSecret = "test-secret"

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func serve(h echo.HandlerFunc, token string, mw ...echo.MiddlewareFunc) *httptest.ResponseRecorder {
	e := echo.New()
	e.GET("/x", h, mw...)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthStoresActor(t *testing.T) {
	tok := sign(t, testSecret, jwt.MapClaims{
		"sub":      "42",
		"username": "driver1",
		"roles":    []string{"driver"},
		"role":     "ADMIN",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	var (
		got    model.Actor
		legacy any
	)
	rec := serve(func(c echo.Context) error {
		got = ActorFrom(c)
		legacy = c.Get("user_id")
		return c.NoContent(http.StatusNoContent)
	}, tok, JWTAuth(testSecret))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "42", got.UserID)
	assert.Equal(t, "driver1", got.Username)
	assert.ElementsMatch(t, []string{"DRIVER", "ADMIN"}, got.Roles)
	assert.Nil(t, legacy, "the actor is the only identity stored on the context")
}

func TestJWTAuthNumericSubject(t *testing.T) {
	a := actorFromClaims(jwt.MapClaims{"sub": float64(7), "role": "driver"})
	assert.Equal(t, "7", a.UserID)
	assert.True(t, a.HasRole("DRIVER"))
}

func TestJWTAuthRejects(t *testing.T) {
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

	assert.Equal(t, http.StatusUnauthorized, serve(ok, "", JWTAuth(testSecret)).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(ok, "garbage", JWTAuth(testSecret)).Code)

	wrong := sign(t, "other", jwt.MapClaims{"sub": "1"})
	assert.Equal(t, http.StatusUnauthorized, serve(ok, wrong, JWTAuth(testSecret)).Code)

	expired := sign(t, testSecret, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(-time.Minute).Unix()})
	assert.Equal(t, http.StatusUnauthorized, serve(ok, expired, JWTAuth(testSecret)).Code)

	anonymous := sign(t, testSecret, jwt.MapClaims{"role": "ADMIN"})
	assert.Equal(t, http.StatusUnauthorized, serve(ok, anonymous, JWTAuth(testSecret)).Code)
}

func TestRequireRole(t *testing.T) {
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	driver := sign(t, testSecret, jwt.MapClaims{"sub": "1", "role": "DRIVER"})
	viewer := sign(t, testSecret, jwt.MapClaims{"sub": "2", "role": "VIEWER"})

	assert.Equal(t, http.StatusNoContent, serve(ok, driver, JWTAuth(testSecret), RequireRole("DRIVER", "ADMIN")).Code)
	assert.Equal(t, http.StatusForbidden, serve(ok, viewer, JWTAuth(testSecret), RequireRole("DRIVER", "ADMIN")).Code)
	assert.Equal(t, http.StatusForbidden, serve(ok, "", RequireRole("ADMIN")).Code)
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/validations/locator", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.9")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/validations/locator")

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user_route"}
	assert.Equal(t, "rl:user:anon:route:POST /v1/validations/locator", buildRateKey(cfg, c))

	c.Set(actorKey, model.Actor{UserID: "42"})
	assert.Equal(t, "rl:user:42:route:POST /v1/validations/locator", buildRateKey(cfg, c))

	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:ip:10.0.0.9", buildRateKey(cfg, c))
}

func TestTokenBucketWithoutRedisPassesThrough(t *testing.T) {
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	mw := NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, logrus.New())
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, serve(ok, "", mw).Code)
	}
}
