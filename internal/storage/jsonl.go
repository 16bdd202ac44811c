package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"stakeVault/internal/model"
)

// JsonlStorage appends audit records to a JSONL file. Sequence numbers must
// grow across the whole file, including lines written by earlier runs.
type JsonlStorage struct {
	path string

	mu     sync.Mutex
	last   uint64
	loaded bool
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutAuditBatch appends a batch of audit records as JSON lines. A record
// whose sequence number does not exceed the last one written fails the
// batch with ErrAuditConflict before anything is written.
func (s *JsonlStorage) PutAuditBatch(_ context.Context, records []model.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := s.lastSeq()
	if err != nil {
		return err
	}
	lines := make([][]byte, 0, len(records))
	for _, record := range records {
		if record.Seq <= last {
			return fmt.Errorf("seq %d after %d: %w", record.Seq, last, ErrAuditConflict)
		}
		last = record.Seq
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal audit record: %w", err)
		}
		lines = append(lines, line)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, line := range lines {
		writer.Write(line)
		writer.WriteByte('\n')
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	s.last = last
	return nil
}

// LastAuditSeq returns the highest sequence number in the file. A missing
// file yields 0.
func (s *JsonlStorage) LastAuditSeq(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeq()
}

func (s *JsonlStorage) lastSeq() (uint64, error) {
	if s.loaded {
		return s.last, nil
	}

	file, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.loaded = true
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	var last uint64
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec struct {
			Seq uint64 `json:"seq"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return 0, fmt.Errorf("audit file line %d: %w", lineNo, err)
		}
		if rec.Seq > last {
			last = rec.Seq
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan audit file: %w", err)
	}

	s.last, s.loaded = last, true
	return last, nil
}
