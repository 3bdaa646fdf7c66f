package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/cloo-solutions/docrag/internal/domain"
)

const sourceObjectName = "source.json"

// ObjectStore is the subset of S3Client the archive needs.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
}

// DocumentArchive keeps the raw text of each ingested document so it can be
// re-chunked later without the caller uploading it again.
type DocumentArchive struct {
	store  ObjectStore
	prefix string
}

func NewDocumentArchive(store ObjectStore, prefix string) *DocumentArchive {
	if prefix == "" {
		prefix = "documents"
	}
	return &DocumentArchive{store: store, prefix: prefix}
}

func (a *DocumentArchive) key(documentID string) string {
	return path.Join(a.prefix, documentID, sourceObjectName)
}

func (a *DocumentArchive) PutSource(ctx context.Context, documentID string, src domain.DocumentSource) error {
	body, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("encode document source: %w", err)
	}
	if err := a.store.PutObject(ctx, a.key(documentID), body, "application/json"); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageOperationFail, err)
	}
	return nil
}

// GetSource returns domain.ErrSourceNotFound when nothing was archived.
func (a *DocumentArchive) GetSource(ctx context.Context, documentID string) (*domain.DocumentSource, error) {
	body, err := a.store.GetObject(ctx, a.key(documentID))
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, domain.ErrSourceNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageOperationFail, err)
	}

	var src domain.DocumentSource
	if err := json.Unmarshal(body, &src); err != nil {
		return nil, fmt.Errorf("decode document source: %w", err)
	}
	return &src, nil
}

func (a *DocumentArchive) DeleteSource(ctx context.Context, documentID string) error {
	if err := a.store.DeleteObject(ctx, a.key(documentID)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageOperationFail, err)
	}
	return nil
}
