package routes

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/studyquest/config"
	"github.com/cppla/studyquest/gamification"
	"github.com/cppla/studyquest/models"
	"github.com/cppla/studyquest/studyplan"
)

func TestRouterWiring(t *testing.T) {
	config.Set(config.AppConfig{
		JWTSecret: "router-secret",
		GinMode:   "test",
		GinPath:   filepath.Join(t.TempDir(), "gin.log"),
	})

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db, models.All()...))

	r := SetupRouter(gamification.New(db, gamification.Options{}), studyplan.NewGenerator("", time.Second, nil))

	cases := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/v1/gamification/leaderboard", http.StatusOK},
		{http.MethodGet, "/api/v1/gamification/me", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/gamification/activities", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/admin/stats", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		require.Equal(t, tc.status, w.Code, tc.path)
	}
}
