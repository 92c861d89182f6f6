// Package semantic stores atomic, confidence-scored facts per user and ranks
// them for retrieval.
package semantic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"memory_orchestrator/backend/go/internal/memory/keywords"
	"memory_orchestrator/backend/go/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const lockStripes = 64

type factRow struct {
	Seq        uint64         `gorm:"primaryKey;autoIncrement"`
	ID         string         `gorm:"type:varchar(36);uniqueIndex"`
	UserID     string         `gorm:"type:varchar(128);index:idx_semantic_user;uniqueIndex:idx_semantic_user_content,priority:1"`
	ContentKey string         `gorm:"type:varchar(64);uniqueIndex:idx_semantic_user_content,priority:2"`
	Content    string         `gorm:"type:text"`
	FactType   string         `gorm:"type:varchar(32)"`
	Confidence float64        `gorm:"index:idx_semantic_user"`
	Tags       datatypes.JSON `gorm:"type:json"`
	CreatedAt  time.Time
}

func (factRow) TableName() string { return "semantic_facts" }

// Store is the gorm-backed SemanticMemoryStore.
//
// Writes for one user are serialized within the process so the containment
// check and the insert see the same set of facts. Across processes only exact
// duplicates, compared after case and whitespace folding, are rejected, by the
// unique (user_id, content_key) index. Containment dedup assumes one writer per
// user.
type Store struct {
	db    *gorm.DB
	floor float64
	locks [lockStripes]sync.Mutex
	now   func() time.Time
}

// NewStore migrates the fact table. floor is the retrieval-time confidence floor.
func NewStore(db *gorm.DB, floor float64) (*Store, error) {
	if err := db.AutoMigrate(&factRow{}); err != nil {
		return nil, fmt.Errorf("migrate semantic_facts: %w", err)
	}
	return &Store{db: db, floor: floor, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.locks[h.Sum32()%lockStripes]
}

// WriteFact inserts fact unless an existing fact for the user contains it or
// is contained by it, ignoring case.
func (s *Store) WriteFact(ctx context.Context, userID string, fact models.ExtractedFact) (models.WriteResult, error) {
	content := strings.TrimSpace(fact.Content)
	if userID == "" || content == "" {
		return models.FactSkipped, fmt.Errorf("%w: user id and content are required", models.ErrInvalidInput)
	}
	if fact.Confidence <= 0 || fact.Confidence > 1 {
		return models.FactSkipped, fmt.Errorf("%w: confidence %v outside (0,1]", models.ErrInvalidInput, fact.Confidence)
	}

	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	result := models.FactInserted
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []string
		if err := tx.Model(&factRow{}).Where("user_id = ?", userID).Pluck("content", &existing).Error; err != nil {
			return err
		}
		for _, e := range existing {
			if keywords.ContainsEitherFold(e, content) {
				result = models.FactSkipped
				return nil
			}
		}
		tags, _ := json.Marshal(normalizeTags(fact.Tags))
		inserted, err := insertRow(tx, &factRow{
			ID:         uuid.NewString(),
			UserID:     userID,
			Content:    content,
			FactType:   string(models.ParseFactType(string(fact.Type))),
			Confidence: fact.Confidence,
			Tags:       datatypes.JSON(tags),
			CreatedAt:  s.now(),
		})
		if err == nil && !inserted {
			result = models.FactSkipped
		}
		return err
	})
	if err != nil {
		return models.FactSkipped, fmt.Errorf("%w: write fact: %v", models.ErrBackendUnavailable, err)
	}
	return result, nil
}

// insertRow inserts row unless the user already has a fact with the same
// content key. It reports whether a row was written.
func insertRow(tx *gorm.DB, row *factRow) (bool, error) {
	row.ContentKey = contentKey(row.Content)
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func contentKey(content string) string {
	sum := sha256.Sum256([]byte(strings.Join(strings.Fields(strings.ToLower(content)), " ")))
	return hex.EncodeToString(sum[:])
}

// QueryRelevant returns up to limit facts at or above the confidence floor,
// ranked by confidence x importance. When any fact shares a keyword or tag
// with query, only overlapping facts are returned. Ties go to higher overlap,
// then to the newer fact.
func (s *Store) QueryRelevant(ctx context.Context, userID, query string, limit int) ([]models.SemanticFact, error) {
	if userID == "" || limit <= 0 {
		return []models.SemanticFact{}, nil
	}
	var rows []factRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND confidence >= ?", userID, s.floor).
		Find(&rows).Error
	if err != nil {
		return []models.SemanticFact{}, fmt.Errorf("%w: query facts: %v", models.ErrBackendUnavailable, err)
	}

	type ranked struct {
		fact    models.SemanticFact
		seq     uint64
		overlap int
	}
	words := keywords.Extract(query)
	candidates := make([]ranked, 0, len(rows))
	anyOverlap := false
	for _, row := range rows {
		f := row.toModel()
		n := keywords.Overlap(words, f.Content, f.Tags)
		if n > 0 {
			anyOverlap = true
		}
		candidates = append(candidates, ranked{fact: f, seq: row.Seq, overlap: n})
	}
	if anyOverlap {
		narrowed := candidates[:0]
		for _, c := range candidates {
			if c.overlap > 0 {
				narrowed = append(narrowed, c)
			}
		}
		candidates = narrowed
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if sa, sb := a.fact.Score(), b.fact.Score(); sa != sb {
			return sa > sb
		}
		if a.overlap != b.overlap {
			return a.overlap > b.overlap
		}
		if !a.fact.CreatedAt.Equal(b.fact.CreatedAt) {
			return a.fact.CreatedAt.After(b.fact.CreatedAt)
		}
		return a.seq > b.seq
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]models.SemanticFact, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.fact)
	}
	return out, nil
}

// ListFacts returns every stored fact of the user regardless of confidence, oldest first.
func (s *Store) ListFacts(ctx context.Context, userID string) ([]models.SemanticFact, error) {
	var rows []factRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("seq ASC").Find(&rows).Error; err != nil {
		return []models.SemanticFact{}, fmt.Errorf("%w: list facts: %v", models.ErrBackendUnavailable, err)
	}
	out := make([]models.SemanticFact, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (row factRow) toModel() models.SemanticFact {
	tags := []string{}
	if len(row.Tags) > 0 {
		_ = json.Unmarshal(row.Tags, &tags)
	}
	return models.SemanticFact{
		ID:         row.ID,
		UserID:     row.UserID,
		Content:    row.Content,
		FactType:   models.ParseFactType(row.FactType),
		Confidence: row.Confidence,
		Tags:       tags,
		CreatedAt:  row.CreatedAt.UTC(),
	}
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
