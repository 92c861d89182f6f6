package episodic

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"memory_orchestrator/backend/go/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// summaryDoc adds seq to the stored summary. BSON dates keep milliseconds
// only, so seq orders summaries written within the same millisecond.
type summaryDoc struct {
	models.EpisodicSummary `bson:",inline"`
	Seq                    int64 `bson:"seq"`
}

// MongoRepository stores one document per summary.
type MongoRepository struct {
	coll    *mongo.Collection
	lastSeq atomic.Int64
	now     func() time.Time
}

// NewMongoRepository wraps an existing collection.
func NewMongoRepository(coll *mongo.Collection) *MongoRepository {
	return &MongoRepository{coll: coll, now: time.Now}
}

// nextSeq returns a nanosecond stamp that strictly increases within the process.
func (r *MongoRepository) nextSeq() int64 {
	for {
		last := r.lastSeq.Load()
		next := r.now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if r.lastSeq.CompareAndSwap(last, next) {
			return next
		}
	}
}

// EnsureIndexes creates the (session_id, created_at, seq) index used by every read.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "seq", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("%w: create episodic index: %v", models.ErrBackendUnavailable, err)
	}
	return nil
}

func (r *MongoRepository) Insert(ctx context.Context, s *models.EpisodicSummary) error {
	doc := summaryDoc{EpisodicSummary: *s, Seq: r.nextSeq()}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("%w: insert summary: %v", models.ErrBackendUnavailable, err)
	}
	return nil
}

func (r *MongoRepository) Latest(ctx context.Context, sessionID string) (*models.EpisodicSummary, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: -1}})
	var doc summaryDoc
	err := r.coll.FindOne(ctx, bson.M{"session_id": sessionID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read latest summary: %v", models.ErrBackendUnavailable, err)
	}
	out := doc.EpisodicSummary
	out.CreatedAt = out.CreatedAt.UTC()
	return &out, nil
}

func (r *MongoRepository) List(ctx context.Context, sessionID string) ([]models.EpisodicSummary, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "seq", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return []models.EpisodicSummary{}, fmt.Errorf("%w: list summaries: %v", models.ErrBackendUnavailable, err)
	}
	defer cur.Close(ctx)
	var docs []summaryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return []models.EpisodicSummary{}, fmt.Errorf("%w: decode summaries: %v", models.ErrBackendUnavailable, err)
	}
	out := make([]models.EpisodicSummary, 0, len(docs))
	for _, d := range docs {
		d.CreatedAt = d.CreatedAt.UTC()
		out = append(out, d.EpisodicSummary)
	}
	return out, nil
}
