package storage

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/IshaanNene/ghdependents/internal/config"
	"github.com/IshaanNene/ghdependents/internal/types"
)

// Storage is the interface for all storage backends.
type Storage interface {
	// Store persists a batch of dependents.
	Store(deps []*types.Dependent) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// New creates the backends named by cfg.Type. Several comma-separated types
// are combined into a MultiStorage. stdout is used by the "stdout" type.
func New(cfg *config.StorageConfig, stdout io.Writer, logger *slog.Logger) (Storage, error) {
	names := cfg.Types()
	if len(names) == 0 {
		return nil, fmt.Errorf("no storage type configured")
	}

	backends := make([]Storage, 0, len(names))
	for _, t := range names {
		b, err := newBackend(t, cfg, stdout, logger)
		if err != nil {
			for _, built := range backends {
				_ = built.Close()
			}
			return nil, fmt.Errorf("%s storage: %w", t, err)
		}
		backends = append(backends, b)
	}

	if len(backends) == 1 {
		return backends[0], nil
	}
	return NewMultiStorage(backends, logger), nil
}

func newBackend(storageType string, cfg *config.StorageConfig, stdout io.Writer, logger *slog.Logger) (Storage, error) {
	switch storageType {
	case "mongodb":
		return NewMongoStorage(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
	case "stdout":
		return NewWriterStorage(stdout, logger), nil
	default:
		return NewFileStorage(storageType, cfg.OutputPath, logger)
	}
}

// NewFileStorage creates the appropriate file-based storage by type.
func NewFileStorage(storageType, outputDir string, logger *slog.Logger) (Storage, error) {
	switch storageType {
	case "json":
		return NewJSONStorage(filepath.Join(outputDir, "dependents.json"), logger)
	case "jsonl":
		return NewJSONLStorage(filepath.Join(outputDir, "dependents.jsonl"), logger)
	case "csv":
		return NewCSVStorage(filepath.Join(outputDir, "dependents.csv"), logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
