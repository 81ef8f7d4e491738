package httpkit

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadpipe/platform/apperr"
	"leadpipe/platform/config"
	"leadpipe/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

const testSecret = "middleware-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func protectedEngine() *gin.Engine {
	cfg := &config.Config{JWTAccessSecret: testSecret}
	engine := gin.New()
	engine.GET("/ops", AuthRequired(cfg), RequireRole(RoleOperator), func(c *gin.Context) {
		c.String(http.StatusOK, MustGetIdentity(c).Subject())
	})
	return engine
}

func request(engine *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ops", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	engine := protectedEngine()
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "a", "type": "access", "roles": []string{"operator"}, "exp": exp}), http.StatusUnauthorized},
		{"refresh token", sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "a", "type": "refresh", "roles": []string{"operator"}, "exp": exp}), http.StatusUnauthorized},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "a", "type": "access", "roles": []string{"operator"}, "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized},
		{"no subject", sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"type": "access", "roles": []string{"operator"}, "exp": exp}), http.StatusUnauthorized},
		{"no role", sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "a", "type": "access", "exp": exp}), http.StatusForbidden},
		{"space separated roles", sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "a", "type": "access", "roles": "viewer operator", "exp": exp}), http.StatusOK},
		{"operator", sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "ops@example.com", "type": "access", "roles": []string{"operator"}, "exp": exp}), http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := request(engine, tc.token)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(0.001), 2, logger.Nop())
	engine := gin.New()
	engine.Use(limiter.RateLimit())
	engine.GET("/ops", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	var last int
	for range 3 {
		last = request(engine, "").Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", last)
	}
}

func TestHandleErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.NotFound("lead not found"), http.StatusNotFound},
		{apperr.Conflict("busy"), http.StatusConflict},
		{apperr.Validation("bad"), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		if !HandleError(c, tc.err) {
			t.Fatalf("HandleError(%v) = false", tc.err)
		}
		if rec.Code != tc.want {
			t.Fatalf("HandleError(%v) status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if HandleError(c, nil) {
		t.Fatalf("HandleError(nil) should be false")
	}
}
