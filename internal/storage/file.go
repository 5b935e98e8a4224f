package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/IshaanNene/ghdependents/internal/types"
)

// --- JSON Storage ---

// JSONStorage buffers dependents and writes them as one JSON array on Close.
type JSONStorage struct {
	path   string
	deps   []*types.Dependent
	mu     sync.Mutex
	logger *slog.Logger
}

// NewJSONStorage creates a new JSON file storage.
func NewJSONStorage(outputPath string, logger *slog.Logger) (*JSONStorage, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	return &JSONStorage{
		path:   outputPath,
		deps:   make([]*types.Dependent, 0),
		logger: logger.With("component", "json_storage"),
	}, nil
}

func (s *JSONStorage) Name() string { return "json" }

func (s *JSONStorage) Store(deps []*types.Dependent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deps = append(s.deps, deps...)
	s.logger.Debug("dependents buffered", "count", len(deps), "total", len(s.deps))
	return nil
}

func (s *JSONStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(s.path)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("create output file: %w", err)}
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.deps); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("encode JSON: %w", err)}
	}

	s.logger.Info("JSON written", "path", s.path, "dependents", len(s.deps))
	return nil
}

// --- JSONL Storage ---

// JSONLStorage writes one JSON object per line as dependents arrive.
type JSONLStorage struct {
	path   string
	closer io.Closer
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLStorage creates a new JSONL file storage (streaming writes).
func NewJSONLStorage(outputPath string, logger *slog.Logger) (*JSONLStorage, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	return &JSONLStorage{
		path:   outputPath,
		closer: f,
		enc:    json.NewEncoder(f),
		logger: logger.With("component", "jsonl_storage"),
	}, nil
}

// NewWriterStorage streams JSONL to w, which is left open on Close.
func NewWriterStorage(w io.Writer, logger *slog.Logger) *JSONLStorage {
	return &JSONLStorage{
		path:   "-",
		enc:    json.NewEncoder(w),
		logger: logger.With("component", "stdout_storage"),
	}
}

func (s *JSONLStorage) Name() string {
	if s.closer == nil {
		return "stdout"
	}
	return "jsonl"
}

func (s *JSONLStorage) Store(deps []*types.Dependent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range deps {
		if err := s.enc.Encode(d); err != nil {
			return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("encode JSONL: %w", err)}
		}
		s.count++
	}
	return nil
}

func (s *JSONLStorage) Close() error {
	s.logger.Info("JSONL written", "path", s.path, "dependents", s.count)
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// --- CSV Storage ---

// CSVStorage writes dependents as CSV rows under a fixed header.
type CSVStorage struct {
	path          string
	file          *os.File
	writer        *csv.Writer
	headerWritten bool
	mu            sync.Mutex
	count         int
	logger        *slog.Logger
}

// NewCSVStorage creates a new CSV file storage.
func NewCSVStorage(outputPath string, logger *slog.Logger) (*CSVStorage, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	return &CSVStorage{
		path:   outputPath,
		file:   f,
		writer: csv.NewWriter(f),
		logger: logger.With("component", "csv_storage"),
	}, nil
}

func (s *CSVStorage) Name() string { return "csv" }

func (s *CSVStorage) Store(deps []*types.Dependent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.headerWritten {
		if err := s.writer.Write(types.CSVHeader); err != nil {
			return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write CSV header: %w", err)}
		}
		s.headerWritten = true
	}

	for _, d := range deps {
		if err := s.writer.Write(d.ToRecord()); err != nil {
			return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write CSV row: %w", err)}
		}
		s.count++
	}

	s.writer.Flush()
	return s.writer.Error()
}

func (s *CSVStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// An empty traversal still produces a file with a header.
	if !s.headerWritten {
		_ = s.writer.Write(types.CSVHeader)
		s.headerWritten = true
	}
	s.writer.Flush()

	s.logger.Info("CSV written", "path", s.path, "dependents", s.count)
	if err := s.writer.Error(); err != nil {
		_ = s.file.Close()
		return &types.StorageError{Backend: s.Name(), Err: err}
	}
	return s.file.Close()
}
