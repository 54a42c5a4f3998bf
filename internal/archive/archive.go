// Package archive stores raw article markup next to the extracted records.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/JakeFAU/article-harvester/internal/crawler"
	"github.com/JakeFAU/article-harvester/internal/hash/sha256"
)

const htmlContentType = "text/html; charset=utf-8"

// Archiver writes page snapshots to a BlobStore under a key derived from
// the page URL, so re-crawls overwrite the previous snapshot.
type Archiver struct {
	blobs  crawler.BlobStore
	hasher *sha256.Hasher
	prefix string
}

// New returns an Archiver writing under prefix.
func New(blobs crawler.BlobStore, prefix string) *Archiver {
	if prefix == "" {
		prefix = "pages"
	}
	return &Archiver{blobs: blobs, hasher: sha256.New(), prefix: prefix}
}

// Key returns the object path for url.
func (a *Archiver) Key(url string) string {
	digest := a.hasher.HashString(url)
	return path.Join(a.prefix, digest[:2], digest+".html")
}

// Save writes the page body and returns the blob URI.
func (a *Archiver) Save(ctx context.Context, page crawler.RawPage) (string, error) {
	uri, err := a.blobs.PutObject(ctx, a.Key(page.URL), htmlContentType, bytes.NewReader(page.Body))
	if err != nil {
		return "", fmt.Errorf("archive page: %w", err)
	}
	return uri, nil
}
