// Package sink receives accepted post records. Every sink is safe for
// concurrent use by several target pipelines.
package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"fbposts/internal/logger"
	"fbposts/pkg/post"
)

type Sink interface {
	Emit(ctx context.Context, rec post.Record) error
	Close() error
}

var ErrClosed = errors.New("sink is closed")

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}
	return nil
}

// JSONFile buffers records and writes them as one indented JSON array when
// closed. A run without records still produces "[]".
type JSONFile struct {
	path    string
	mu      sync.Mutex
	records []post.Record
	closed  bool
	logger  *logger.Logger
}

func NewJSONFile(path string) (*JSONFile, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	return &JSONFile{
		path:    path,
		records: []post.Record{},
		logger:  logger.New("sink"),
	}, nil
}

func (s *JSONFile) Emit(_ context.Context, rec post.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *JSONFile) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	f, err := os.Create(s.path)
	if err != nil {
		s.logger.ErrorBg("Failed to write JSON output to %s: %v", s.path, err)
		return fmt.Errorf("create %s: %w", s.path, err)
	}

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.records); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", s.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.path, err)
	}

	s.logger.InfoBg("Exported %d post(s) to %s", len(s.records), s.path)
	return nil
}

// NDJSONFile streams one JSON object per line as records arrive.
type NDJSONFile struct {
	path   string
	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	enc    *json.Encoder
	count  int
	closed bool
	logger *logger.Logger
}

func NewNDJSONFile(path string) (*NDJSONFile, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	return &NDJSONFile{
		path:   path,
		file:   f,
		w:      w,
		enc:    enc,
		logger: logger.New("sink"),
	}, nil
}

func (s *NDJSONFile) Emit(_ context.Context, rec post.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	s.count++
	return nil
}

func (s *NDJSONFile) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	if err := errors.Join(flushErr, closeErr); err != nil {
		s.logger.ErrorBg("Failed to write NDJSON output to %s: %v", s.path, err)
		return err
	}

	s.logger.InfoBg("Exported %d post(s) to NDJSON file %s", s.count, s.path)
	return nil
}

// Collector keeps records in memory, in emission order.
type Collector struct {
	mu      sync.Mutex
	records []post.Record
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Emit(_ context.Context, rec post.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

func (c *Collector) Close() error {
	return nil
}

func (c *Collector) Records() []post.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]post.Record(nil), c.records...)
}

// Multi emits every record to all sinks, stopping at the first failure.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, rec post.Record) error {
	for _, s := range m {
		if err := s.Emit(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Format names an output file format.
type Format string

const (
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
)

// NewFile opens a file sink for format.
func NewFile(path string, format Format) (Sink, error) {
	switch format {
	case FormatJSON, "":
		return NewJSONFile(path)
	case FormatNDJSON:
		return NewNDJSONFile(path)
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}
