// Package storage provides object storage backends for feed archival.
package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/bridgesync/backend/internal/infrastructure/feedclient"
)

// StubFeedArchive is an in-memory placeholder implementation of
// feedclient.Archiver. It records archived keys without storing data.
// Use this for development until a real bucket is configured.
type StubFeedArchive struct {
	mu   sync.Mutex
	keys []string
}

// NewStubFeedArchive creates a new StubFeedArchive
func NewStubFeedArchive() *StubFeedArchive {
	return &StubFeedArchive{}
}

// Ensure StubFeedArchive implements feedclient.Archiver
var _ feedclient.Archiver = (*StubFeedArchive)(nil)

// ArchiveFeed records the object key without uploading anything
func (s *StubFeedArchive) ArchiveFeed(ctx context.Context, localPath, objectKey string) error {
	if objectKey == "" {
		return errors.New("object key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, objectKey)
	return nil
}

// ArchivedKeys returns the keys recorded so far (for testing/monitoring)
func (s *StubFeedArchive) ArchivedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}
