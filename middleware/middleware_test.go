package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/cppla/studyquest/config"
	"github.com/cppla/studyquest/utils"
)

const testSecret = "test-secret"

func setup(t *testing.T, rpm int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.Set(config.AppConfig{
		JWTSecret:          testSecret,
		AdminUsernames:     []string{"Admin"},
		RateLimitPerMinute: rpm,
	})

	r := gin.New()
	r.GET("/me", AuthRequired(), func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"user_id": ctx.MustGet(ContextUserIDKey)})
	})
	r.GET("/admin", AuthRequired(), AdminRequired(), func(ctx *gin.Context) {
		utils.Success(ctx, nil)
	})
	r.GET("/limited", RateLimitMiddleware(), func(ctx *gin.Context) {
		utils.Success(ctx, nil)
	})
	return r
}

func do(r *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, uid uint, name string) string {
	t.Helper()
	tok, err := utils.GenerateToken(testSecret, uid, name, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestAuthRequired(t *testing.T) {
	r := setup(t, 100)

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, `"code":40101`},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, `"code":40102`},
		{"empty token", "Bearer  ", http.StatusUnauthorized, `"code":40103`},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized, `"code":40105`},
		{"valid", bearer(t, 9, "ada"), http.StatusOK, `"user_id":9`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, "/me", tc.header)
			require.Equal(t, tc.status, w.Code)
			require.Contains(t, w.Body.String(), tc.body)
		})
	}
}

func TestAdminRequired(t *testing.T) {
	r := setup(t, 100)

	w := do(r, "/admin", bearer(t, 1, "ada"))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), `"code":40301`)

	w = do(r, "/admin", bearer(t, 2, "admin"))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	// 2 per minute gives a burst of one request
	r := setup(t, 2)

	require.Equal(t, http.StatusOK, do(r, "/limited", "").Code)
	w := do(r, "/limited", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Contains(t, w.Body.String(), `"code":42901`)
}

func TestLimiterSetEvictsIdle(t *testing.T) {
	s := &limiterSet{limiters: map[string]*rateLimiter{}, limit: 1, burst: 1}
	first := s.get("user:1")
	require.Same(t, first, s.get("user:1"))

	s.limiters["user:1"].expires = time.Now().Add(-time.Second)
	s.get("user:2")
	_, ok := s.limiters["user:1"]
	require.False(t, ok)
}
