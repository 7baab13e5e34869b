package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"podcast-digest-go/internal/types"
)

// MongoStore upserts transcripts into a collection, one document per
// feed URL and episode title.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type transcriptDoc struct {
	FeedURL         string                 `bson:"feed_url"`
	EpisodeTitle    string                 `bson:"episode_title"`
	Episode         types.EpisodeReference `bson:"episode"`
	FullText        string                 `bson:"full_text"`
	Model           string                 `bson:"model,omitempty"`
	Language        string                 `bson:"language,omitempty"`
	DurationSeconds float64                `bson:"duration_seconds,omitempty"`
	Confidence      float64                `bson:"confidence,omitempty"`
	UpdatedAt       time.Time              `bson:"updated_at"`
}

// NewMongoStore connects and pings the server.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (s *MongoStore) Save(ctx context.Context, t types.TranscriptResult) error {
	filter := bson.M{"feed_url": t.Episode.FeedURL, "episode_title": t.Episode.EpisodeTitle}
	update := bson.M{"$set": toDoc(t)}
	_, err := s.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

func (s *MongoStore) Load(ctx context.Context, feedURL, episodeTitle string) (types.TranscriptResult, error) {
	var doc transcriptDoc
	err := s.collection.FindOne(ctx, bson.M{"feed_url": feedURL, "episode_title": episodeTitle}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.TranscriptResult{}, ErrNotFound
	}
	if err != nil {
		return types.TranscriptResult{}, fmt.Errorf("load transcript: %w", err)
	}
	return fromDoc(doc), nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func toDoc(t types.TranscriptResult) transcriptDoc {
	return transcriptDoc{
		FeedURL:         t.Episode.FeedURL,
		EpisodeTitle:    t.Episode.EpisodeTitle,
		Episode:         t.Episode,
		FullText:        t.FullText,
		Model:           t.Model,
		Language:        t.Language,
		DurationSeconds: t.DurationSeconds,
		Confidence:      t.Confidence,
		UpdatedAt:       time.Now().UTC(),
	}
}

func fromDoc(d transcriptDoc) types.TranscriptResult {
	return types.TranscriptResult{
		Episode:         d.Episode,
		FullText:        d.FullText,
		Model:           d.Model,
		Language:        d.Language,
		DurationSeconds: d.DurationSeconds,
		Confidence:      d.Confidence,
	}
}
