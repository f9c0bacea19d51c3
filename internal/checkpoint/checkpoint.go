// Package checkpoint tracks which input URLs a run has already completed,
// so a restarted run can skip them. The file is append-only: one original
// URL per line, flushed after every write.
package checkpoint

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/whitehat-seo/hubspot-crawler/pkg/failure"
	"github.com/whitehat-seo/hubspot-crawler/pkg/setutil"
)

type StoreErrorCause string

const (
	ErrCauseOpenFailed  StoreErrorCause = "open failed"
	ErrCauseReadFailed  StoreErrorCause = "read failed"
	ErrCauseWriteFailed StoreErrorCause = "write failed"
)

type StoreError struct {
	Message string
	Cause   StoreErrorCause
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("checkpoint error: %s: %s", e.Cause, e.Message)
}

func (e *StoreError) Severity() failure.Severity {
	return failure.SeverityFatal
}

// Store is an append-only checkpoint file plus the in-memory set of
// original URLs it has already recorded. Writes are serialized; Done is
// safe to call concurrently from worker goroutines.
type Store struct {
	mu   sync.Mutex
	file *os.File
	done setutil.Set[string]
}

// Open loads path (if it exists) into the in-memory completed set, then
// keeps the file open in append mode for subsequent writes.
func Open(path string) (*Store, failure.ClassifiedError) {
	done := setutil.NewSet[string]()

	if existing, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(existing)
		for scanner.Scan() {
			done.Add(scanner.Text())
		}
		scanErr := scanner.Err()
		existing.Close()
		if scanErr != nil {
			return nil, &StoreError{Message: scanErr.Error(), Cause: ErrCauseReadFailed}
		}
	} else if !os.IsNotExist(err) {
		return nil, &StoreError{Message: err.Error(), Cause: ErrCauseOpenFailed}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, &StoreError{Message: err.Error(), Cause: ErrCauseOpenFailed}
	}

	return &Store{file: f, done: done}, nil
}

// IsDone reports whether originalURL was already recorded, either by a
// prior run (loaded at Open) or earlier in this one.
func (s *Store) IsDone(originalURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done.Contains(originalURL)
}

// MarkDone appends originalURL to the checkpoint file and flushes
// immediately, then records it in the in-memory set. A no-op if the URL
// was already recorded.
func (s *Store) MarkDone(originalURL string) failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done.Contains(originalURL) {
		return nil
	}

	if _, err := s.file.WriteString(originalURL + "\n"); err != nil {
		return &StoreError{Message: err.Error(), Cause: ErrCauseWriteFailed}
	}
	if err := s.file.Sync(); err != nil {
		return &StoreError{Message: err.Error(), Cause: ErrCauseWriteFailed}
	}

	s.done.Add(originalURL)
	return nil
}

// Size returns the number of URLs currently recorded as done.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done.Size()
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	return s.file.Close()
}
