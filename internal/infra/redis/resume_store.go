package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResumeStore persists attempt start timestamps in Redis so a countdown
// survives reconnects and server restarts. Keys hold unix seconds.
//
// TTL, when positive, bounds how long a stale entry can linger after an
// abandoned attempt; it should comfortably exceed the longest quiz duration.
type ResumeStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResumeStore(client *redis.Client, ttl time.Duration) *ResumeStore {
	return &ResumeStore{client: client, ttl: ttl}
}

func (s *ResumeStore) GetStart(ctx context.Context, studentID, quizID string) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, s.key(studentID, quizID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Unparseable entries are treated as absent rather than wedging the session.
		return time.Time{}, false, nil
	}
	return time.Unix(unix, 0), true, nil
}

func (s *ResumeStore) SetStart(ctx context.Context, studentID, quizID string, start time.Time) error {
	return s.client.Set(ctx, s.key(studentID, quizID), strconv.FormatInt(start.Unix(), 10), s.ttl).Err()
}

func (s *ResumeStore) Clear(ctx context.Context, studentID, quizID string) error {
	return s.client.Del(ctx, s.key(studentID, quizID)).Err()
}

func (s *ResumeStore) key(studentID, quizID string) string {
	return "quiz:resume:" + quizID + ":" + studentID
}
