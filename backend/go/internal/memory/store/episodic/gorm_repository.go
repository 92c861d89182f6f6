package episodic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"memory_orchestrator/backend/go/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// summaryRow is the relational shape of models.EpisodicSummary. Seq breaks
// ties between rows written within the same clock tick.
type summaryRow struct {
	Seq             uint64         `gorm:"primaryKey;autoIncrement"`
	ID              string         `gorm:"type:varchar(36);uniqueIndex"`
	SessionID       string         `gorm:"type:varchar(128);index:idx_episodic_session"`
	UserID          string         `gorm:"type:varchar(128);index:idx_episodic_user"`
	Summary         string         `gorm:"type:text"`
	Topics          datatypes.JSON `gorm:"type:json"`
	KeyDecisions    datatypes.JSON `gorm:"type:json"`
	UserPreferences datatypes.JSON `gorm:"type:json"`
	NextSteps       datatypes.JSON `gorm:"type:json"`
	ImportanceScore float64
	CreatedAt       time.Time `gorm:"index:idx_episodic_session"`
}

func (summaryRow) TableName() string { return "episodic_summaries" }

// GormRepository stores summaries in MySQL or SQLite through gorm.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository migrates the summary table and returns the repository.
func NewGormRepository(db *gorm.DB) (*GormRepository, error) {
	if err := db.AutoMigrate(&summaryRow{}); err != nil {
		return nil, fmt.Errorf("migrate episodic_summaries: %w", err)
	}
	return &GormRepository{db: db}, nil
}

func (r *GormRepository) Insert(ctx context.Context, s *models.EpisodicSummary) error {
	row := summaryRow{
		ID:              s.ID,
		SessionID:       s.SessionID,
		UserID:          s.UserID,
		Summary:         s.Summary,
		Topics:          encodeList(s.Topics),
		KeyDecisions:    encodeList(s.KeyDecisions),
		UserPreferences: encodeList(s.UserPreferences),
		NextSteps:       encodeList(s.NextSteps),
		ImportanceScore: s.ImportanceScore,
		CreatedAt:       s.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("%w: insert summary: %v", models.ErrBackendUnavailable, err)
	}
	return nil
}

func (r *GormRepository) Latest(ctx context.Context, sessionID string) (*models.EpisodicSummary, error) {
	var row summaryRow
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").Order("seq DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read latest summary: %v", models.ErrBackendUnavailable, err)
	}
	out := row.toModel()
	return &out, nil
}

func (r *GormRepository) List(ctx context.Context, sessionID string) ([]models.EpisodicSummary, error) {
	var rows []summaryRow
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return []models.EpisodicSummary{}, fmt.Errorf("%w: list summaries: %v", models.ErrBackendUnavailable, err)
	}
	out := make([]models.EpisodicSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (row summaryRow) toModel() models.EpisodicSummary {
	return models.EpisodicSummary{
		ID:              row.ID,
		SessionID:       row.SessionID,
		UserID:          row.UserID,
		Summary:         row.Summary,
		Topics:          decodeList(row.Topics),
		KeyDecisions:    decodeList(row.KeyDecisions),
		UserPreferences: decodeList(row.UserPreferences),
		NextSteps:       decodeList(row.NextSteps),
		ImportanceScore: row.ImportanceScore,
		CreatedAt:       row.CreatedAt.UTC(),
	}
}

func encodeList(items []string) datatypes.JSON {
	if items == nil {
		items = []string{}
	}
	data, _ := json.Marshal(items)
	return datatypes.JSON(data)
}

func decodeList(data datatypes.JSON) []string {
	out := []string{}
	if len(data) == 0 {
		return out
	}
	_ = json.Unmarshal(data, &out)
	if out == nil {
		out = []string{}
	}
	return out
}
