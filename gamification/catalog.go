package gamification

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"

	"github.com/cppla/studyquest/models"
)

//go:embed catalog_default.yaml
var defaultCatalogYAML []byte

var validate = validator.New()

// AchievementDef is a catalog entry for one achievement.
type AchievementDef struct {
	Name         string             `yaml:"name" validate:"required,max=128"`
	Description  string             `yaml:"description" validate:"max=512"`
	Category     string             `yaml:"category" validate:"max=64"`
	Icon         string             `yaml:"icon" validate:"max=64"`
	PointsReward int                `yaml:"points_reward" validate:"gte=0"`
	RarityLevel  int                `yaml:"rarity_level" validate:"min=1,max=4"`
	Criteria     []models.Criterion `yaml:"criteria" validate:"dive"`
	Inactive     bool               `yaml:"inactive"`
}

// ChallengeTemplate is instantiated into a DailyChallenge for a given date.
type ChallengeTemplate struct {
	Title        string                       `yaml:"title" validate:"required,max=128"`
	Description  string                       `yaml:"description" validate:"max=512"`
	Type         models.ChallengeType         `yaml:"type" validate:"required,oneof=quiz_count quiz_score study_time streak perfect_score"`
	PointsReward int                          `yaml:"points_reward" validate:"gte=0"`
	Requirements models.ChallengeRequirements `yaml:"requirements"`
}

// Catalog holds the static achievements and challenge templates.
type Catalog struct {
	Achievements []AchievementDef    `yaml:"achievements" validate:"dive"`
	Challenges   []ChallengeTemplate `yaml:"challenges" validate:"dive"`
}

// LoadCatalog reads the catalog at path, or the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalogYAML)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Achievements))
	for _, a := range c.Achievements {
		if _, dup := seen[a.Name]; dup {
			return nil, fmt.Errorf("invalid catalog: duplicate achievement %q", a.Name)
		}
		seen[a.Name] = struct{}{}
	}
	seen = make(map[string]struct{}, len(c.Challenges))
	for _, t := range c.Challenges {
		if _, dup := seen[t.Title]; dup {
			return nil, fmt.Errorf("invalid catalog: duplicate challenge %q", t.Title)
		}
		seen[t.Title] = struct{}{}
	}
	return &c, nil
}

// SyncCatalog upserts the catalog achievements by name. Unknown criterion
// types are kept (they simply never unlock) but logged.
func (e *Engine) SyncCatalog(ctx context.Context, c *Catalog) error {
	if c == nil || len(c.Achievements) == 0 {
		return nil
	}
	rows := make([]models.Achievement, 0, len(c.Achievements))
	for _, def := range c.Achievements {
		for _, cr := range def.Criteria {
			if !KnownCriterion(cr.Type) {
				e.log.Warn("catalog achievement uses unknown criterion",
					zap.String("achievement", def.Name),
					zap.String("type", string(cr.Type)))
			}
		}
		rows = append(rows, models.Achievement{
			Name:         def.Name,
			Description:  def.Description,
			Category:     def.Category,
			Icon:         def.Icon,
			PointsReward: def.PointsReward,
			Criteria:     datatypes.NewJSONType(models.Criteria(def.Criteria)),
			RarityLevel:  def.RarityLevel,
			IsActive:     !def.Inactive,
		})
	}

	err := e.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"description", "category", "icon", "points_reward",
			"criteria", "rarity_level", "is_active", "updated_at",
		}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("sync achievements: %w", err)
	}
	e.catalog = c
	e.log.Info("achievement catalog synced", zap.Int("achievements", len(rows)), zap.Int("challenge_templates", len(c.Challenges)))
	return nil
}

// GenerateDailyChallenges creates the challenges for the day containing date.
// It is idempotent: an existing set for that day is returned unchanged.
func (e *Engine) GenerateDailyChallenges(ctx context.Context, date time.Time) ([]models.DailyChallenge, error) {
	db := e.db.WithContext(ctx)
	day := CivilDay(date, e.opts.Location)
	key := day.Format("2006-01-02")

	var existing []models.DailyChallenge
	if err := db.Where("challenge_date = ?", key).Order("id ASC").Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("load daily challenges: %w", err)
	}
	if len(existing) > 0 || e.catalog == nil || len(e.catalog.Challenges) == 0 {
		return existing, nil
	}

	templates := e.catalog.Challenges
	n := e.opts.DailyChallengeCount
	if n > len(templates) {
		n = len(templates)
	}
	start := (day.YearDay() - 1) % len(templates)
	rows := make([]models.DailyChallenge, 0, n)
	for i := 0; i < n; i++ {
		t := templates[(start+i)%len(templates)]
		rows = append(rows, models.DailyChallenge{
			Title:         t.Title,
			Description:   t.Description,
			ChallengeType: t.Type,
			Requirements:  datatypes.NewJSONType(t.Requirements),
			PointsReward:  t.PointsReward,
			ChallengeDate: key,
			IsActive:      true,
		})
	}
	if len(rows) > 0 {
		// Concurrent generators collide on (title, challenge_date); the loser keeps the winner's rows.
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return nil, fmt.Errorf("create daily challenges: %w", err)
		}
	}

	var out []models.DailyChallenge
	if err := db.Where("challenge_date = ?", key).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load daily challenges: %w", err)
	}
	e.log.Info("daily challenges generated", zap.String("day", key), zap.Int("count", len(out)))
	return out, nil
}
