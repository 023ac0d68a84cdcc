package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"exam-service/internal/app"
	"exam-service/internal/domain"
	"exam-service/internal/logger"
)

// FeedStore shares report feeds between service instances through Redis
// pub/sub. Each exam with a local subscriber holds one subscription on
// exam:feed:{id}; Publish reaches every instance listening on that channel.
type FeedStore struct {
	client *redis.Client
	log    *logger.Logger

	mu    sync.Mutex
	feeds map[string]*subscribedFeed
}

type subscribedFeed struct {
	feed   *app.Feed
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewFeedStore(client *redis.Client, log *logger.Logger) *FeedStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &FeedStore{
		client: client,
		log:    log,
		feeds:  make(map[string]*subscribedFeed),
	}
}

// GetOrCreate returns the local feed of examID, subscribing to its channel
// the first time. It returns once Redis has confirmed the subscription.
func (s *FeedStore) GetOrCreate(ctx context.Context, examID string) (*app.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sf, ok := s.feeds[examID]; ok {
		return sf.feed, nil
	}

	// The subscription outlives the request that opened it.
	pubsub := s.client.Subscribe(context.WithoutCancel(ctx), channel(examID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel(examID), err)
	}

	sf := &subscribedFeed{
		feed:   app.NewFeed(examID),
		pubsub: pubsub,
		done:   make(chan struct{}),
	}
	s.feeds[examID] = sf
	go s.forward(sf, pubsub.Channel())
	return sf.feed, nil
}

func (s *FeedStore) forward(sf *subscribedFeed, msgs <-chan *redis.Message) {
	defer close(sf.done)
	for msg := range msgs {
		var r domain.ClassReport
		if err := json.Unmarshal([]byte(msg.Payload), &r); err != nil {
			s.log.Warn("drop malformed report", "channel", msg.Channel, "error", err)
			continue
		}
		sf.feed.Publish(r)
	}
}

func (s *FeedStore) Publish(ctx context.Context, r domain.ClassReport) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := s.client.Publish(ctx, channel(r.Exam.ID), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel(r.Exam.ID), err)
	}
	return nil
}

func (s *FeedStore) DeleteIfIdle(examID string) {
	s.mu.Lock()
	sf, ok := s.feeds[examID]
	if !ok || !sf.feed.IsIdle() {
		s.mu.Unlock()
		return
	}
	delete(s.feeds, examID)
	s.mu.Unlock()
	s.stop(sf)
}

// Close drops every subscription.
func (s *FeedStore) Close() {
	s.mu.Lock()
	feeds := s.feeds
	s.feeds = make(map[string]*subscribedFeed)
	s.mu.Unlock()
	for _, sf := range feeds {
		s.stop(sf)
	}
}

func (s *FeedStore) stop(sf *subscribedFeed) {
	if err := sf.pubsub.Close(); err != nil {
		s.log.Warn("close report subscription", "exam_id", sf.feed.ExamID(), "error", err)
	}
	<-sf.done
}

func channel(examID string) string {
	return "exam:feed:" + examID
}
