package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/facecat/facecat/internal/models"
)

// ProgressLog is the scheduler-owned append-only record of which
// relative paths have been ingested (§3, §6). The catalogue is
// secondary to this log for resume purposes.
type ProgressLog struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenProgressLog creates the log directory if it is missing and opens
// the log for appending, creating the file if absent.
func OpenProgressLog(path string) (*ProgressLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("open progress log: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open progress log: %w", err)
	}
	return &ProgressLog{path: path, file: f}, nil
}

// Append writes one record and flushes it; the scheduler calls this
// once per successful task (§4.8 "Result handling").
func (l *ProgressLog) Append(record models.ProgressRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal progress record %s: %w", record.Key, err)
	}
	line = append(line, '\n')
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("append progress record %s: %w", record.Key, err)
	}
	return l.file.Sync()
}

func (l *ProgressLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// LoadProgressSet replays the log at path into an in-memory set of
// completed relative paths. Malformed lines (partial writes from a
// crash mid-append) are ignored, per §3/§6.
func LoadProgressSet(path string) (map[string]struct{}, error) {
	set := make(map[string]struct{})

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return set, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress set: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec models.ProgressRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // partial/malformed line, tolerated per §3
		}
		if rec.Key == "" {
			continue
		}
		set[rec.Key] = struct{}{}
	}
	return set, nil
}
