package memory

import (
	"context"
	"sync"

	"exam-service/internal/app"
	"exam-service/internal/domain"
)

// FeedStore is an in-memory implementation of app.FeedRepository. Reports
// only reach feeds of the same process.
type FeedStore struct {
	mu    sync.RWMutex
	feeds map[string]*app.Feed
}

func NewFeedStore() *FeedStore {
	return &FeedStore{feeds: make(map[string]*app.Feed)}
}

func (s *FeedStore) GetOrCreate(_ context.Context, examID string) (*app.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if feed, ok := s.feeds[examID]; ok {
		return feed, nil
	}
	feed := app.NewFeed(examID)
	s.feeds[examID] = feed
	return feed, nil
}

func (s *FeedStore) Get(examID string) (*app.Feed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feed, ok := s.feeds[examID]
	return feed, ok
}

func (s *FeedStore) Publish(_ context.Context, r domain.ClassReport) error {
	if feed, ok := s.Get(r.Exam.ID); ok {
		feed.Publish(r)
	}
	return nil
}

func (s *FeedStore) DeleteIfIdle(examID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if feed, ok := s.feeds[examID]; ok && feed.IsIdle() {
		delete(s.feeds, examID)
	}
}
