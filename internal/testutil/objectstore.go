package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/koustreak/dbconnector/internal/errs"
	"github.com/koustreak/dbconnector/internal/filestore"
)

// FakeObjectStore is an in-memory filestore.Store.
type FakeObjectStore struct {
	PutErr error

	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
}

var _ filestore.Store = (*FakeObjectStore)(nil)

// NewFakeObjectStore returns an empty store.
func NewFakeObjectStore() *FakeObjectStore {
	return &FakeObjectStore{
		buckets: make(map[string]bool),
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (s *FakeObjectStore) Ping(context.Context) error { return nil }
func (s *FakeObjectStore) Close() error               { return nil }

func (s *FakeObjectStore) EnsureBucket(_ context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[bucket] = true
	return nil
}

func (s *FakeObjectStore) PutObject(_ context.Context, bucket, key string, r io.Reader, _ int64, contentType string) (*filestore.ObjectInfo, error) {
	if s.PutErr != nil {
		return nil, s.PutErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.buckets[bucket] {
		return nil, errs.Newf(errs.ErrKindNotFound, "bucket %s does not exist", bucket)
	}
	s.objects[bucket+"/"+key] = data
	s.types[bucket+"/"+key] = contentType
	return &filestore.ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  contentType,
		LastModified: time.Now(),
	}, nil
}

func (s *FakeObjectStore) StatObject(_ context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "object %s/%s not found", bucket, key)
	}
	return &filestore.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(data)), ContentType: s.types[bucket+"/"+key]}, nil
}

func (s *FakeObjectStore) PresignGetURL(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("http://objects.test/%s/%s?ttl=%d", bucket, key, int(ttl.Seconds())), nil
}

// Object returns the stored bytes for bucket/key.
func (s *FakeObjectStore) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+key]
	return data, ok
}
