// Package localfs implements the record store on the local filesystem.
// Writes are tmp+rename, so every record transition is an atomic full-file
// replace and concurrent writers to one key resolve last-write-wins.
package localfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/kirillkom/mailtriage/internal/core/domain"
	"github.com/kirillkom/mailtriage/internal/infrastructure/resilience"
)

type Store struct {
	basePath string
	executor *resilience.Executor

	// rename is swapped in tests to simulate write failures.
	rename func(oldpath, newpath string) error
}

func New(basePath string, executor *resilience.Executor) (*Store, error) {
	if basePath == "" {
		basePath = "./data/store"
	}
	for _, prefix := range []string{domain.RecordPrefix, domain.ResultPrefix} {
		if err := os.MkdirAll(filepath.Join(basePath, filepath.FromSlash(prefix)), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return &Store{
		basePath: basePath,
		executor: executor,
		rename:   os.Rename,
	}, nil
}

func (s *Store) Put(ctx context.Context, key string, rec *domain.ContentRecord) error {
	return s.putJSON(ctx, key, rec)
}

func (s *Store) Get(ctx context.Context, key string) (*domain.ContentRecord, error) {
	var rec domain.ContentRecord
	call := func(context.Context) error {
		data, err := os.ReadFile(s.path(key))
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		return nil
	}
	if err := s.execute(ctx, "localfs.get", call); err != nil {
		return nil, wrapFSError("read record "+key, err)
	}
	return &rec, nil
}

func (s *Store) List(ctx context.Context, prefix string, status domain.RecordStatus, limit int) ([]string, error) {
	dir := filepath.Join(s.basePath, filepath.FromSlash(prefix))
	var entries []os.DirEntry
	call := func(context.Context) error {
		var err error
		entries, err = os.ReadDir(dir)
		return err
	}
	if err := s.execute(ctx, "localfs.list", call); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, wrapFSError("list "+prefix, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var keys []string
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := prefix + name
		if status != "" {
			rec, err := s.Get(ctx, key)
			if err != nil {
				if domain.IsKind(err, domain.ErrNotFound) {
					continue
				}
				return nil, err
			}
			if rec.Status != status {
				continue
			}
		}
		keys = append(keys, key)
		if limit > 0 && len(keys) >= limit {
			break
		}
	}
	return keys, nil
}

func (s *Store) PutResult(ctx context.Context, res *domain.ClassificationResult) error {
	messageID := strings.TrimSuffix(strings.TrimPrefix(res.RecordKey, domain.RecordPrefix), ".json")
	return s.putJSON(ctx, domain.ResultKey(messageID), res)
}

func (s *Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	call := func(context.Context) error {
		return s.writeFile(key, data)
	}
	if err := s.execute(ctx, "localfs.put", call); err != nil {
		return wrapFSError("put "+key, err)
	}
	return nil
}

func (s *Store) writeFile(key string, data []byte) error {
	path := s.path(key)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := s.rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

func (s *Store) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	if s.executor == nil {
		return call(ctx)
	}
	return s.executor.Execute(ctx, operation, call, classifyFSError)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

func classifyFSError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, fs.ErrNotExist) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	// Interrupted or resource-starved syscalls usually clear up on their own.
	switch {
	case errors.Is(err, syscall.EINTR),
		errors.Is(err, syscall.EAGAIN),
		errors.Is(err, syscall.EBUSY),
		errors.Is(err, syscall.ENFILE),
		errors.Is(err, syscall.EMFILE):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func wrapFSError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return domain.WrapError(domain.ErrNotFound, operation, err)
	}
	class := classifyFSError(err)
	if class.Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTransient, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}
