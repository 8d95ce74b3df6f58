package storage

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
)

// ObjectStore persists uploaded and generated files under slash-separated keys.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// PutBytes is a convenience wrapper for in-memory payloads.
func PutBytes(ctx context.Context, store ObjectStore, key string, data []byte, contentType string) (string, error) {
	return store.Put(ctx, key, bytes.NewReader(data), contentType)
}

// LocalObjectStore serves LocalStorage files from a public base URL (for example a gin static mount).
type LocalObjectStore struct {
	files   *LocalStorage
	baseURL string
}

// NewLocalObjectStore wraps LocalStorage as an ObjectStore.
func NewLocalObjectStore(files *LocalStorage, baseURL string) *LocalObjectStore {
	return &LocalObjectStore{files: files, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *LocalObjectStore) Put(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	if _, err := s.files.SaveStream(key, body); err != nil {
		return "", err
	}
	return s.URL(key), nil
}

func (s *LocalObjectStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	return s.files.Open(key)
}

func (s *LocalObjectStore) Delete(_ context.Context, key string) error {
	return s.files.Delete(key)
}

func (s *LocalObjectStore) URL(key string) string {
	return s.baseURL + path.Clean("/"+key)
}

// KeyFromURL recovers the storage key from a URL produced by URL. ok is false for foreign URLs.
func KeyFromURL(store ObjectStore, url string) (string, bool) {
	prefix := strings.TrimSuffix(store.URL("x"), "x")
	if prefix == "" || !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}
