package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/ShopStalk/internal/config"
	"github.com/IshaanNene/ShopStalk/internal/types"
)

// Storage is the interface for all storage backends.
type Storage interface {
	// Store persists a finished crawl.
	Store(ctx context.Context, result *types.CrawlResult) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// New builds the configured backend. The JSON files are always written; the
// other types are added alongside them.
func New(cfg config.StorageConfig, logger *slog.Logger) (Storage, error) {
	jsonStore, err := NewJSONStorage(cfg.OutputPath, logger)
	if err != nil {
		return nil, err
	}

	var extra Storage
	switch cfg.Type {
	case "", "json":
		return jsonStore, nil
	case "jsonl":
		extra, err = NewJSONLStorage(cfg.OutputPath, logger)
	case "csv":
		extra, err = NewCSVStorage(cfg.OutputPath, logger)
	case "mongo":
		extra, err = NewMongoStorage(cfg.MongoURI, cfg.MongoDatabase, logger)
	default:
		err = fmt.Errorf("unknown storage type %q", cfg.Type)
	}
	if err != nil {
		return nil, &types.StorageError{Backend: cfg.Type, Err: err}
	}
	return NewMultiStorage([]Storage{jsonStore, extra}, logger), nil
}
