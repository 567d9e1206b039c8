package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/pbt-labs/pbt-ocr/internal/common"
)

// Local stores files under a root directory:
//
//	<root>/originals/<docID><ext>
//	<root>/pages/<docID>/page-0001.png
//	<root>/thumbs/<docID>/page-0001.png
//
// Every file of a document is keyed by its ID, so teardown is three removes.
type Local struct {
	root   string
	logger *slog.Logger
}

func NewLocal(root string, logger *slog.Logger) (*Local, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, dir := range []string{"originals", "pages", "thumbs"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", common.ErrStorage, dir, err)
		}
	}
	return &Local{root: root, logger: logger}, nil
}

func (l *Local) SaveOriginal(ctx context.Context, docID uuid.UUID, filename string, r io.Reader) (string, int64, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	rel := filepath.Join("originals", docID.String()+ext)

	f, err := os.Create(filepath.Join(l.root, rel))
	if err != nil {
		return "", 0, fmt.Errorf("%w: create original: %v", common.ErrStorage, err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		return "", 0, fmt.Errorf("%w: write original: %v", common.ErrStorage, err)
	}
	l.logger.Info("storage.original.saved", "doc_id", docID, "path", rel, "bytes", size)
	return rel, size, nil
}

func (l *Local) DownloadToLocal(ctx context.Context, path, destDir string) (string, error) {
	src, err := os.Open(filepath.Join(l.root, path))
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", common.ErrStorage, path, err)
	}
	defer src.Close()

	local := filepath.Join(destDir, filepath.Base(path))
	dst, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("%w: create local copy: %v", common.ErrStorage, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("%w: copy %s: %v", common.ErrStorage, path, err)
	}
	return local, nil
}

func (l *Local) UploadPageImage(ctx context.Context, img []byte, docID uuid.UUID, pageNo int) (string, error) {
	return l.write("pages", docID, pageNo, img)
}

func (l *Local) UploadThumbnail(ctx context.Context, img []byte, docID uuid.UUID, pageNo int) (string, error) {
	return l.write("thumbs", docID, pageNo, img)
}

func (l *Local) write(kind string, docID uuid.UUID, pageNo int, data []byte) (string, error) {
	dir := filepath.Join(l.root, kind, docID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s dir: %v", common.ErrStorage, kind, err)
	}
	rel := filepath.Join(kind, docID.String(), fmt.Sprintf("page-%04d.png", pageNo))
	if err := os.WriteFile(filepath.Join(l.root, rel), data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", common.ErrStorage, rel, err)
	}
	return rel, nil
}

func (l *Local) DeleteDocumentFiles(ctx context.Context, docID uuid.UUID) error {
	originals, err := filepath.Glob(filepath.Join(l.root, "originals", docID.String()+".*"))
	if err != nil {
		return fmt.Errorf("%w: glob originals: %v", common.ErrStorage, err)
	}
	for _, p := range originals {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove original: %v", common.ErrStorage, err)
		}
	}
	for _, kind := range []string{"pages", "thumbs"} {
		if err := os.RemoveAll(filepath.Join(l.root, kind, docID.String())); err != nil {
			return fmt.Errorf("%w: remove %s: %v", common.ErrStorage, kind, err)
		}
	}
	l.logger.Info("storage.document.deleted", "doc_id", docID)
	return nil
}
