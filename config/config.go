package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	RateLimitPerMinute int
	AllowedOrigins     []string
	AdminUsernames     []string
	// Database
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Redis for read caches
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Gamification engine. For UpdateRetries and the bonus settings 0 means
	// "use the default" and a negative value means none.
	CatalogPath         string
	MaxEvaluationRounds int
	UpdateRetries       int
	RetryBackoffMs      int
	DailyChallengeCount int
	ActivityPoints      map[string]int
	PerfectScoreBonus   int
	StreakBonusPoints   int
	StreakBonusEvery    int
	ProfileCacheSec     int
	LeaderboardCacheSec int
	Timezone            string
	// External study plan generator
	StudyPlanCommand    string
	StudyPlanTimeoutSec int
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration from environment variables. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config/config.json -> defaults -> environment variable overrides
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Printf("config/config.json ignored: %v", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	clampDisabled(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Set replaces the cached configuration. Intended for tests and tooling.
func Set(c AppConfig) {
	applyDefaults(&c)
	cfg = c
	loaded = true
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into cfg if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}
	applyJSONSections(raw, out)
	return nil
}

func applyJSONSections(raw map[string]any, out *AppConfig) {
	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case int:
				return t
			case json.Number:
				i, _ := t.Int64()
				return int(i)
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(m map[string]any, key string) []string {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		if v := getInt(app, "RateLimitPerMinute"); v != 0 {
			out.RateLimitPerMinute = v
		}
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
		if list := getStringSlice(app, "AdminUsernames"); len(list) > 0 {
			out.AdminUsernames = list
		}
		if v := getString(app, "GinMode"); v != "" {
			out.GinMode = v
		}
		if v := getString(app, "GinPath"); v != "" {
			out.GinPath = v
		}
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DBDriver = getString(dbs, "Driver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		if v := getInt(rds, "RedisPort"); v != 0 {
			out.RedisPort = v
		}
		if v := getInt(rds, "RedisDB"); v != 0 {
			out.RedisDB = v
		}
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		if v := getString(lg, "Level"); v != "" {
			out.LogLevel = v
		}
		if v := getString(lg, "Path"); v != "" {
			out.LogPath = v
		}
		if v := getInt(lg, "MaxSizeMB"); v != 0 {
			out.LogMaxSizeMB = v
		}
		if v := getInt(lg, "MaxBackups"); v != 0 {
			out.LogMaxBackups = v
		}
		if v := getInt(lg, "MaxAgeDays"); v != 0 {
			out.LogMaxAgeDays = v
		}
		out.LogCompress = getBool(lg, "Compress")
	}

	if gm, ok := raw["gamification"].(map[string]any); ok {
		out.CatalogPath = getString(gm, "CatalogPath")
		out.MaxEvaluationRounds = getInt(gm, "MaxEvaluationRounds")
		out.UpdateRetries = getInt(gm, "UpdateRetries")
		out.RetryBackoffMs = getInt(gm, "RetryBackoffMs")
		out.DailyChallengeCount = getInt(gm, "DailyChallengeCount")
		out.PerfectScoreBonus = getInt(gm, "PerfectScoreBonus")
		out.StreakBonusPoints = getInt(gm, "StreakBonusPoints")
		out.StreakBonusEvery = getInt(gm, "StreakBonusEvery")
		out.ProfileCacheSec = getInt(gm, "ProfileCacheSec")
		out.LeaderboardCacheSec = getInt(gm, "LeaderboardCacheSec")
		out.Timezone = getString(gm, "Timezone")
		if pts, ok := gm["ActivityPoints"].(map[string]any); ok {
			out.ActivityPoints = make(map[string]int, len(pts))
			for k := range pts {
				out.ActivityPoints[k] = getInt(pts, k)
			}
		}
	}

	if sp, ok := raw["studyplan"].(map[string]any); ok {
		out.StudyPlanCommand = getString(sp, "Command")
		out.StudyPlanTimeoutSec = getInt(sp, "TimeoutSec")
	}
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 120
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		if c.DBDriver == "postgres" {
			c.DBPort = "5432"
		} else {
			c.DBPort = "3306"
		}
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "studyquest"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.MaxEvaluationRounds == 0 {
		c.MaxEvaluationRounds = 10
	}
	defaultInt(&c.UpdateRetries, 3)
	if c.RetryBackoffMs == 0 {
		c.RetryBackoffMs = 50
	}
	if c.DailyChallengeCount == 0 {
		c.DailyChallengeCount = 3
	}
	defaultInt(&c.PerfectScoreBonus, 50)
	defaultInt(&c.StreakBonusPoints, 100)
	defaultInt(&c.StreakBonusEvery, 7)
	if c.ProfileCacheSec == 0 {
		c.ProfileCacheSec = 600
	}
	if c.LeaderboardCacheSec == 0 {
		c.LeaderboardCacheSec = 60
	}
	if c.ActivityPoints == nil {
		c.ActivityPoints = map[string]int{
			"quiz_completed":   25,
			"habits_completed": 20,
			"study_session":    10,
			"note_created":     5,
			"daily_login":      5,
		}
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.StudyPlanCommand == "" {
		c.StudyPlanCommand = "run_python.bat"
	}
	if c.StudyPlanTimeoutSec == 0 {
		c.StudyPlanTimeoutSec = 30
	}
	clampDisabled(c)
}

func defaultInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

// clampDisabled turns the negative "none" marker into 0 for settings that
// allow switching off.
func clampDisabled(c *AppConfig) {
	for _, v := range []*int{&c.UpdateRetries, &c.PerfectScoreBonus, &c.StreakBonusPoints, &c.StreakBonusEvery} {
		if *v < 0 {
			*v = 0
		}
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	if v := getEnv("ADMIN_USERNAMES", ""); v != "" {
		c.AdminUsernames = splitAndTrim(v)
	}
	if v := getEnv("DB_DRIVER", ""); v != "" {
		c.DBDriver = strings.ToLower(v)
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	if v := getEnv("GAMIFY_CATALOG_PATH", ""); v != "" {
		c.CatalogPath = v
	}
	if v := getEnv("GAMIFY_MAX_EVALUATION_ROUNDS", ""); v != "" {
		c.MaxEvaluationRounds = mustParseInt(v)
	}
	if v := getEnv("GAMIFY_UPDATE_RETRIES", ""); v != "" {
		c.UpdateRetries = mustParseInt(v)
	}
	if v := getEnv("GAMIFY_RETRY_BACKOFF_MS", ""); v != "" {
		c.RetryBackoffMs = mustParseInt(v)
	}
	if v := getEnv("GAMIFY_DAILY_CHALLENGE_COUNT", ""); v != "" {
		c.DailyChallengeCount = mustParseInt(v)
	}
	if v := getEnv("GAMIFY_PERFECT_SCORE_BONUS", ""); v != "" {
		c.PerfectScoreBonus = mustParseInt(v)
	}
	if v := getEnv("GAMIFY_STREAK_BONUS_POINTS", ""); v != "" {
		c.StreakBonusPoints = mustParseInt(v)
	}
	if v := getEnv("GAMIFY_STREAK_BONUS_EVERY", ""); v != "" {
		c.StreakBonusEvery = mustParseInt(v)
	}
	if v := getEnv("GAMIFY_TIMEZONE", ""); v != "" {
		c.Timezone = v
	}
	if v := getEnv("STUDYPLAN_COMMAND", ""); v != "" {
		c.StudyPlanCommand = v
	}
	if v := getEnv("STUDYPLAN_TIMEOUT_SEC", ""); v != "" {
		c.StudyPlanTimeoutSec = mustParseInt(v)
	}
}

// Location resolves Timezone, falling back to UTC for unknown names.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("unknown timezone %q, using UTC: %v", c.Timezone, err)
		return time.UTC
	}
	return loc
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
