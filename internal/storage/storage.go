// Package storage is the file collaborator for originals, page images, and
// thumbnails. The pipeline only speaks this interface, so the backing store
// can move off the local filesystem without touching processing code.
package storage

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Storage persists document files. Paths returned by Save/Upload calls are
// storage-relative and round-trip through DownloadToLocal.
type Storage interface {
	// SaveOriginal stores the uploaded source file for a document and
	// returns its storage path and size.
	SaveOriginal(ctx context.Context, docID uuid.UUID, filename string, r io.Reader) (string, int64, error)

	// DownloadToLocal materializes a stored file into destDir and returns
	// the local path.
	DownloadToLocal(ctx context.Context, path, destDir string) (string, error)

	// UploadPageImage stores a rendered page image.
	UploadPageImage(ctx context.Context, img []byte, docID uuid.UUID, pageNo int) (string, error)

	// UploadThumbnail stores a page thumbnail.
	UploadThumbnail(ctx context.Context, img []byte, docID uuid.UUID, pageNo int) (string, error)

	// DeleteDocumentFiles removes every stored file belonging to a
	// document: the original, page images, and thumbnails.
	DeleteDocumentFiles(ctx context.Context, docID uuid.UUID) error
}
