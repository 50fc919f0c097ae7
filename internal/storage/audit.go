package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vocdoni/gofirma/certperms/internal/logger"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// AuditEntry records one change to a key file or certificate store.
type AuditEntry struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	Operation  string `json:"operation"`
	Path       string `json:"path,omitempty"`
	Thumbprint string `json:"thumbprint,omitempty"`
	Principal  string `json:"principal,omitempty"`
	Rights     string `json:"rights,omitempty"`
	Effect     string `json:"access,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// AuditLogger appends entries to a JSON lines file.
type AuditLogger struct {
	mu       sync.Mutex
	filePath string
	log      *logger.Logger
}

func NewAuditLogger(dir string, log *logger.Logger) (*AuditLogger, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &AuditLogger{
		filePath: filepath.Join(dir, "audit.jsonl"),
		log:      log.With("audit"),
	}, nil
}

func (l *AuditLogger) Path() string {
	return l.filePath
}

// Log stamps the entry with an id and the current time and appends it.
func (l *AuditLogger) Log(entry AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
	if entry.Status == "" {
		entry.Status = StatusOK
	}
	l.log.Debugf("audit entry %s: %s %s", entry.ID, entry.Operation, entry.Status)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	f, err := os.OpenFile(l.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	return nil
}

// ReadAll returns every entry in file order. Malformed lines are skipped.
func (l *AuditLogger) ReadAll() ([]AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []AuditEntry{}, nil
		}
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	entries := []AuditEntry{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			l.log.Warnf("skipping malformed audit line: %v", err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := sc.Err(); err != nil {
		return entries, fmt.Errorf("failed to read audit file: %w", err)
	}
	return entries, nil
}
