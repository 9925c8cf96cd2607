package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"positionScope/internal/model"
)

// JSONLWriter writes one JSON document per line through a buffered file.
type JSONLWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

// NewJSONLWriter opens path, creating parent directories. The file is
// truncated unless appendMode is set.
func NewJSONLWriter(path string, appendMode bool) (*JSONLWriter, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return &JSONLWriter{file: file, writer: bufio.NewWriter(file)}, nil
}

func (w *JSONLWriter) Write(value interface{}) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

// Sync flushes buffered lines and fsyncs the file.
func (w *JSONLWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

func (w *JSONLWriter) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// JSONLLogSink appends raw log batches to a JSONL file.
type JSONLLogSink struct {
	w *JSONLWriter
}

var _ LogSink = (*JSONLLogSink)(nil)

// NewJSONLLogSink opens path for appending so reruns continue the same file.
func NewJSONLLogSink(path string) (*JSONLLogSink, error) {
	w, err := NewJSONLWriter(path, true)
	if err != nil {
		return nil, err
	}
	return &JSONLLogSink{w: w}, nil
}

// PutLogBatch writes the batch and syncs it to disk.
func (s *JSONLLogSink) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	for _, record := range logs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.w.Write(record); err != nil {
			return fmt.Errorf("log record block %d index %d: %w", record.BlockNumber, record.LogIndex, err)
		}
	}
	return s.w.Sync()
}

func (s *JSONLLogSink) Close() error {
	return s.w.Close()
}
