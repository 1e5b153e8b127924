// Package segment implements the physical ledger: one append-only,
// newline-delimited file per (tenant_or_repo, evaluation-plane, year, month)
// partition. Each line is one self-contained receipt. Segments are never
// rewritten in place; corrections are new receipts.
package segment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ledgerd/internal/receipt/models"
)

const (
	appendRetries = 3
	retryBackoff  = 25 * time.Millisecond
)

// Writer appends receipts to partition segments. Writers to different
// partitions never contend; appends to the same partition serialize under a
// per-partition lock so each line lands atomically.
type Writer struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewWriter constructs a segment writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{
		root:  dir,
		locks: make(map[string]*sync.Mutex),
	}
}

// Append writes the receipt as one NDJSON line to the partition segment for
// the given owner (tenant or repo). Transient write failures retry with
// backoff before surfacing.
func (w *Writer) Append(ctx context.Context, owner string, r models.DecisionReceipt) error {
	if owner == "" {
		return fmt.Errorf("partition owner is required")
	}

	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode receipt %s: %w", r.ReceiptID, err)
	}
	line = append(line, '\n')

	path := w.partitionPath(owner, r)
	lock := w.partitionLock(path)
	lock.Lock()
	defer lock.Unlock()

	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = w.appendLine(path, line); lastErr == nil {
			return nil
		}
		time.Sleep(retryBackoff << attempt)
	}
	return fmt.Errorf("append to segment %s: %w", path, lastErr)
}

// Read returns all receipts in the partition segment for owner, plane and
// month. Missing segments read as empty, not as errors.
func (w *Writer) Read(owner string, plane models.EvaluationPoint, year int, month time.Month) ([]models.DecisionReceipt, error) {
	path := filepath.Join(w.root, sanitize(owner), string(plane), fmt.Sprintf("%04d-%02d.ndjson", year, month))
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read segment %s: %w", path, err)
	}

	var out []models.DecisionReceipt
	for _, line := range strings.Split(strings.TrimRight(string(raw), "\n"), "\n") {
		if line == "" {
			continue
		}
		var r models.DecisionReceipt
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return nil, fmt.Errorf("parse segment line: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (w *Writer) appendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	// A single Write call under the partition lock keeps lines whole.
	if _, err := f.Write(line); err != nil {
		return err
	}
	return f.Sync()
}

func (w *Writer) partitionPath(owner string, r models.DecisionReceipt) string {
	ts := r.TimestampUTC.UTC()
	name := fmt.Sprintf("%04d-%02d.ndjson", ts.Year(), ts.Month())
	return filepath.Join(w.root, sanitize(owner), string(r.EvaluationPoint), name)
}

func (w *Writer) partitionLock(path string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	lock, ok := w.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		w.locks[path] = lock
	}
	return lock
}

// sanitize keeps partition owners from escaping the segment root.
func sanitize(owner string) string {
	owner = strings.ReplaceAll(owner, string(filepath.Separator), "_")
	owner = strings.ReplaceAll(owner, "..", "_")
	return owner
}

// ActorAppender adapts a Writer to the receipt generator's Appender
// interface, partitioning by the acting repo.
type ActorAppender struct {
	W *Writer
}

func (a ActorAppender) Append(ctx context.Context, r models.DecisionReceipt) error {
	return a.W.Append(ctx, r.Actor.RepoID, r)
}
