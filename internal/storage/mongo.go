package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/hyperjump/compendium/internal/models"
)

// MongoStorage implements Storage on a MongoDB collection. Each ingestion is
// one document of the form {doc_id, text_chunks: [{chunk_id, text, embedding}], created_at}.
type MongoStorage struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type mongoChunk struct {
	ChunkID   int       `bson:"chunk_id"`
	Text      string    `bson:"text"`
	Embedding []float64 `bson:"embedding"`
}

// Embeddings are stored as doubles so records written by other tools decode
// without float32 truncation errors.
type mongoSet struct {
	DocID     string       `bson:"doc_id"`
	Chunks    []mongoChunk `bson:"text_chunks"`
	CreatedAt time.Time    `bson:"created_at,omitempty"`
}

// Newest first. Records without created_at sort last.
var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

// NewMongoStorage connects to uri and uses database.collection.
func NewMongoStorage(ctx context.Context, uri, database, collection string) (*MongoStorage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	coll := client.Database(database).Collection(collection)
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "doc_id", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create doc_id index: %w", err)
	}
	return &MongoStorage{client: client, coll: coll}, nil
}

// InsertEmbeddingSet inserts set as a new record. CreatedAt is set when zero.
func (s *MongoStorage) InsertEmbeddingSet(ctx context.Context, set *models.EmbeddingSet) error {
	if err := validateSet(set); err != nil {
		return err
	}
	if set.CreatedAt.IsZero() {
		set.CreatedAt = time.Now().UTC()
	}
	rec := mongoSet{DocID: set.DocID, CreatedAt: set.CreatedAt, Chunks: make([]mongoChunk, len(set.Chunks))}
	for i, c := range set.Chunks {
		emb := make([]float64, len(c.Embedding))
		for j, v := range c.Embedding {
			emb[j] = float64(v)
		}
		rec.Chunks[i] = mongoChunk{ChunkID: c.ChunkID, Text: c.Text, Embedding: emb}
	}
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to insert embedding set: %w", err)
	}
	return nil
}

// GetEmbeddingSet returns the newest record for docID.
func (s *MongoStorage) GetEmbeddingSet(ctx context.Context, docID string) (*models.EmbeddingSet, error) {
	var rec mongoSet
	err := s.coll.FindOne(ctx, bson.M{"doc_id": docID}, options.FindOne().SetSort(newestFirst)).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, notFound(docID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find embedding set: %w", err)
	}
	set := &models.EmbeddingSet{DocID: rec.DocID, CreatedAt: rec.CreatedAt, Chunks: make([]models.Chunk, len(rec.Chunks))}
	for i, c := range rec.Chunks {
		emb := make([]float32, len(c.Embedding))
		for j, v := range c.Embedding {
			emb[j] = float32(v)
		}
		set.Chunks[i] = models.Chunk{ChunkID: c.ChunkID, Text: c.Text, Embedding: emb}
	}
	return set, nil
}

// ListDocuments returns one summary per doc_id, newest ingestion first.
func (s *MongoStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.DocumentSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: newestFirst}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$doc_id"},
			{Key: "created_at", Value: bson.D{{Key: "$first", Value: "$created_at"}}},
			{Key: "latest", Value: bson.D{{Key: "$first", Value: "$_id"}}},
			{Key: "chunk_count", Value: bson.D{{Key: "$first", Value: bson.D{{Key: "$size", Value: "$text_chunks"}}}}},
			{Key: "sets", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "latest", Value: -1}}}},
	}
	if offset > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$skip", Value: offset}})
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	var rows []struct {
		DocID      string    `bson:"_id"`
		CreatedAt  time.Time `bson:"created_at"`
		ChunkCount int       `bson:"chunk_count"`
		Sets       int       `bson:"sets"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	docs := make([]*models.DocumentSummary, len(rows))
	for i, r := range rows {
		docs[i] = &models.DocumentSummary{DocID: r.DocID, CreatedAt: r.CreatedAt, ChunkCount: r.ChunkCount, Sets: r.Sets}
	}
	return docs, nil
}

// DeleteDocument removes every record for docID.
func (s *MongoStorage) DeleteDocument(ctx context.Context, docID string) error {
	res, err := s.coll.DeleteMany(ctx, bson.M{"doc_id": docID})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return notFound(docID)
	}
	return nil
}

// CountDocuments returns the number of distinct doc_ids.
func (s *MongoStorage) CountDocuments(ctx context.Context) (int64, error) {
	ids, err := s.coll.Distinct(ctx, "doc_id", bson.D{})
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// CountChunks returns the number of chunks across all records.
func (s *MongoStorage) CountChunks(ctx context.Context) (int64, error) {
	cur, err := s.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "n", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$size", Value: "$text_chunks"}}}}},
		}}},
	})
	if err != nil {
		return 0, err
	}
	var out []struct {
		N int64 `bson:"n"`
	}
	if err := cur.All(ctx, &out); err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0].N, nil
}

// Close disconnects the client.
func (s *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
