package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/ShopStalk/internal/types"
)

// Collection names.
const (
	CrawlsCollection   = "crawls"
	PagesCollection    = "pages"
	ProductsCollection = "products"
)

// MongoStorage writes pages and products to MongoDB. Products are upserted
// by id so recrawls update rather than duplicate them.
type MongoStorage struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// NewMongoStorage creates a new MongoDB storage backend.
func NewMongoStorage(uri, database string, logger *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoStorage{
		client: client,
		db:     client.Database(database),
		logger: logger.With("component", "mongo_storage"),
	}, nil
}

func (s *MongoStorage) Name() string { return "mongodb" }

func (s *MongoStorage) Store(ctx context.Context, result *types.CrawlResult) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	summary, err := toDocument(crawlSummary(result))
	if err != nil {
		return err
	}
	if _, err := s.db.Collection(CrawlsCollection).InsertOne(ctx, summary); err != nil {
		return fmt.Errorf("mongodb insert crawl: %w", err)
	}

	if len(result.Pages) > 0 {
		docs := make([]any, 0, len(result.Pages))
		for i := range result.Pages {
			doc, err := toDocument(result.Pages[i])
			if err != nil {
				return err
			}
			doc = append(doc, bson.E{Key: "crawl_id", Value: result.CrawlID})
			docs = append(docs, doc)
		}
		if _, err := s.db.Collection(PagesCollection).InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("mongodb insert pages: %w", err)
		}
	}

	if len(result.Products) > 0 {
		models := make([]mongo.WriteModel, 0, len(result.Products))
		for i := range result.Products {
			doc, err := toDocument(result.Products[i])
			if err != nil {
				return err
			}
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(bson.D{{Key: "id", Value: result.Products[i].ID}}).
				SetReplacement(doc).
				SetUpsert(true))
		}
		if _, err := s.db.Collection(ProductsCollection).BulkWrite(ctx, models); err != nil {
			return fmt.Errorf("mongodb upsert products: %w", err)
		}
	}

	s.logger.Info("crawl stored in mongodb", "crawl_id", result.CrawlID, "pages", len(result.Pages), "products", len(result.Products))
	return nil
}

func (s *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// toDocument goes through the JSON encoding so stored documents carry the
// same field names and exact decimal strings as the JSON files.
func toDocument(v any) (bson.D, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(b, false, &doc); err != nil {
		return nil, fmt.Errorf("convert document: %w", err)
	}
	return doc, nil
}

func crawlSummary(r *types.CrawlResult) types.CrawlResult {
	summary := *r
	summary.Pages = nil
	summary.Products = nil
	return summary
}

// --- Multi-Storage Fan-Out ---

// MultiStorage writes results to multiple backends.
type MultiStorage struct {
	backends []Storage
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to multiple backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string { return "multi" }

func (s *MultiStorage) Store(ctx context.Context, result *types.CrawlResult) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Store(ctx, result); err != nil {
			s.logger.Error("backend store failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = &types.StorageError{Backend: backend.Name(), Err: err}
			}
		}
	}
	return firstErr
}

func (s *MultiStorage) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
