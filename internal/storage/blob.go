package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/joseph-ayodele/parsemed/internal/common"
)

const (
	pdfPrefix  = "pdfs"
	jsonPrefix = "json"
)

// ErrInvalidKey is returned for keys that escape the store root.
var ErrInvalidKey = fmt.Errorf("%w: invalid blob key", common.ErrInvalidInput)

// BlobStore keeps uploaded PDFs and saved JSON documents under slash
// separated keys such as "pdfs/<uuid>.pdf".
type BlobStore struct {
	fs     afero.Fs
	logger *slog.Logger
}

// NewDiskStore roots a store at dir, creating it if needed.
func NewDiskStore(dir string, logger *slog.Logger) (*BlobStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, common.NewAppError("CONFIG_ERROR", "storage dir is required", common.ErrInvalidInput)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, storageErr("resolve storage dir", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, storageErr("create storage dir", err)
	}
	return NewBlobStore(afero.NewBasePathFs(afero.NewOsFs(), abs), logger), nil
}

// NewMemStore is an in-memory store.
func NewMemStore(logger *slog.Logger) *BlobStore {
	return NewBlobStore(afero.NewMemMapFs(), logger)
}

func NewBlobStore(fsys afero.Fs, logger *slog.Logger) *BlobStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobStore{fs: fsys, logger: logger}
}

// NewPDFKey returns a fresh key for an uploaded PDF.
func NewPDFKey() string {
	return path.Join(pdfPrefix, uuid.NewString()+".pdf")
}

// JSONKey is the key a saved document with the given id is written to.
func JSONKey(id uuid.UUID) string {
	return path.Join(jsonPrefix, id.String()+".json")
}

func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.TrimSpace(key))
	if k == "/" || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}
	return strings.TrimPrefix(k, "/"), nil
}

// Put writes r under key and returns the number of bytes written. A
// partially written blob is removed.
func (s *BlobStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	start := time.Now()
	k, err := cleanKey(key)
	if err != nil {
		return 0, err
	}
	if err := s.fs.MkdirAll(path.Dir(k), 0o755); err != nil {
		return 0, storageErr("mkdir", err)
	}
	f, err := s.fs.Create(k)
	if err != nil {
		return 0, storageErr("create blob", err)
	}
	n, err := io.Copy(f, ctxReader{ctx: ctx, r: r})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.fs.Remove(k)
		s.logger.Warn("storage.put.failed", "key", k, "error", err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return 0, storageErr("write blob", err)
	}
	s.logger.Debug("storage.put.ok", "key", k, "bytes", n, "elapsed_ms", time.Since(start).Milliseconds())
	return n, nil
}

// PutBytes is Put for an in-memory payload.
func (s *BlobStore) PutBytes(ctx context.Context, key string, data []byte) error {
	_, err := s.Put(ctx, key, bytes.NewReader(data))
	return err
}

// Open returns a reader for key. Missing keys wrap common.ErrNotFound.
func (s *BlobStore) Open(key string) (afero.File, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(k)
	if err != nil {
		return nil, s.notFound(k, err)
	}
	return f, nil
}

// Get reads the whole blob.
func (s *BlobStore) Get(key string) ([]byte, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, k)
	if err != nil {
		return nil, s.notFound(k, err)
	}
	return data, nil
}

func (s *BlobStore) Exists(key string) (bool, error) {
	k, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	return afero.Exists(s.fs, k)
}

// List returns the keys directly under prefix, sorted. A missing prefix
// lists as empty.
func (s *BlobStore) List(prefix string) ([]string, error) {
	p, err := cleanKey(prefix)
	if err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(s.fs, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, storageErr("list blobs", err)
	}
	keys := make([]string, 0, len(infos))
	for _, fi := range infos {
		if !fi.IsDir() {
			keys = append(keys, path.Join(p, fi.Name()))
		}
	}
	return keys, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *BlobStore) Delete(key string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(k); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageErr("delete blob", err)
	}
	s.logger.Debug("storage.delete.ok", "key", k)
	return nil
}

// LocalPath returns a path on the local disk holding the blob, for
// libraries that only accept file names. When the store is not disk backed
// the blob is copied to a temp file; the returned cleanup removes it.
func (s *BlobStore) LocalPath(key string) (string, func(), error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", nil, err
	}
	if bp, ok := s.fs.(*afero.BasePathFs); ok {
		realPath, err := bp.RealPath(k)
		if err != nil {
			return "", nil, ErrInvalidKey
		}
		if _, err := os.Stat(realPath); err != nil {
			return "", nil, s.notFound(k, err)
		}
		return realPath, func() {}, nil
	}

	src, err := s.fs.Open(k)
	if err != nil {
		return "", nil, s.notFound(k, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "parsemed-*"+path.Ext(k))
	if err != nil {
		return "", nil, storageErr("temp file", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, storageErr("copy blob", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, storageErr("close temp file", err)
	}
	return tmp.Name(), cleanup, nil
}

func (s *BlobStore) notFound(key string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return common.NewAppError("NOT_FOUND", "blob "+key+" not found", common.ErrNotFound)
	}
	return storageErr("open blob", err)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", common.ErrStorage, op, err)
}
