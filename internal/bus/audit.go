package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nivesh/finassist/internal/pkg/errors"
)

// AuditRecord is one persisted bus event together with the topic it was
// published on. Records are stored as JSON lines so the log can be read
// and replayed with standard tools.
type AuditRecord struct {
	Topic    string    `json:"topic"`
	Event    Event     `json:"event"`
	LoggedAt time.Time `json:"logged_at"`
	Sequence uint64    `json:"sequence"`
}

// AuditLog appends every published event to a JSONL file. It exists so
// execution, feedback and weight-change events survive restarts and can
// be replayed into a fresh bus.
type AuditLog struct {
	mu      sync.Mutex
	file    *os.File
	writer  *bufio.Writer
	path    string
	seq     uint64
	enabled bool
}

// NewAuditLog opens (or creates) the audit file at path. An empty path
// returns a disabled log whose methods are no-ops.
func NewAuditLog(path string) (*AuditLog, error) {
	if path == "" {
		return &AuditLog{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.StorageError(fmt.Sprintf("create audit log directory: %v", err), err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.StorageError(fmt.Sprintf("open audit log %s: %v", path, err), err)
	}

	return &AuditLog{
		file:    f,
		writer:  bufio.NewWriter(f),
		path:    path,
		enabled: true,
	}, nil
}

// IsEnabled reports whether records are actually written.
func (a *AuditLog) IsEnabled() bool {
	return a.enabled
}

// Append writes one record to the log and flushes it.
func (a *AuditLog) Append(topic string, event Event) error {
	if !a.enabled {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	rec := AuditRecord{
		Topic:    topic,
		Event:    event,
		LoggedAt: time.Now().UTC(),
		Sequence: a.seq,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return errors.InternalError("marshal audit record", err)
	}
	if _, err := a.writer.Write(append(data, '\n')); err != nil {
		return errors.StorageError("write audit record", err)
	}
	if err := a.writer.Flush(); err != nil {
		return errors.StorageError("flush audit log", err)
	}
	return nil
}

// Records reads back records logged at or after since. limit <= 0 means
// no limit. Malformed lines are skipped.
func (a *AuditLog) Records(since time.Time, limit int) ([]AuditRecord, error) {
	if !a.enabled {
		return nil, nil
	}

	a.mu.Lock()
	path := a.path
	if err := a.writer.Flush(); err != nil {
		a.mu.Unlock()
		return nil, errors.StorageError("flush audit log", err)
	}
	a.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.StorageError(fmt.Sprintf("open audit log %s: %v", path, err), err)
	}
	defer f.Close()

	var out []AuditRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var rec AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if rec.LoggedAt.Before(since) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.StorageError("read audit log", err)
	}
	return out, nil
}

// Replay republishes logged records onto b in their original order.
// It returns the number of records replayed.
func (a *AuditLog) Replay(ctx context.Context, b Bus, since time.Time) (int, error) {
	records, err := a.Records(since, 0)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, rec := range records {
		select {
		case <-ctx.Done():
			return replayed, ctx.Err()
		default:
		}
		if err := b.Publish(ctx, rec.Topic, rec.Event); err != nil {
			return replayed, err
		}
		replayed++
	}
	return replayed, nil
}

// Close flushes and closes the underlying file.
func (a *AuditLog) Close() error {
	if !a.enabled {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.writer.Flush(); err != nil {
		return errors.StorageError("flush audit log", err)
	}
	return a.file.Close()
}

// AuditedBus wraps a Bus so every successful Publish is also appended to
// an AuditLog.
type AuditedBus struct {
	inner Bus
	log   *AuditLog
}

// NewAuditedBus wraps inner with log. A nil or disabled log returns
// inner unchanged.
func NewAuditedBus(inner Bus, log *AuditLog) Bus {
	if log == nil || !log.IsEnabled() {
		return inner
	}
	return &AuditedBus{inner: inner, log: log}
}

func (b *AuditedBus) Publish(ctx context.Context, topic string, event Event) error {
	if err := b.inner.Publish(ctx, topic, event); err != nil {
		return err
	}
	return b.log.Append(topic, event)
}

func (b *AuditedBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return b.inner.Subscribe(ctx, topic, handler)
}

func (b *AuditedBus) Close() error {
	if err := b.inner.Close(); err != nil {
		return err
	}
	return b.log.Close()
}
