package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"liquidityEngine/internal/model"
)

const maxLineBytes = 4 << 20

// JsonlStorage writes operation records to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutOperationBatch appends a batch of operation records as JSON lines.
func (s *JsonlStorage) PutOperationBatch(records []model.OperationRecord) error {
	return appendLines(s, records)
}

// PutDecodeErrors appends chain logs that could not be replayed.
func (s *JsonlStorage) PutDecodeErrors(errs []model.DecodeError) error {
	return appendLines(s, errs)
}

func appendLines[T any](s *JsonlStorage, items []T) error {
	if len(items) == 0 {
		return nil
	}

	if err := ensureDir(s.path); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for i, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal line %d: %w", i, err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write line: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}

// ReadOperations streams the records of a journal file to fn in file order.
func ReadOperations(path string, fn func(model.OperationRecord) error) error {
	return readLines(path, func(line []byte) error {
		var record model.OperationRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return err
		}
		return fn(record)
	})
}

// ReadRequests loads a JSONL scenario file. Blank lines and lines starting
// with '#' are skipped.
func ReadRequests(path string) ([]model.OperationRequest, error) {
	var out []model.OperationRequest
	err := readLines(path, func(line []byte) error {
		var req model.OperationRequest
		if err := json.Unmarshal(line, &req); err != nil {
			return err
		}
		out = append(out, req)
		return nil
	})
	return out, err
}

func readLines(path string, fn func([]byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	return scanLines(file, path, fn)
}

func scanLines(r io.Reader, name string, fn func([]byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn([]byte(line)); err != nil {
			return fmt.Errorf("%s:%d: %w", name, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
