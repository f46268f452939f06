package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"vertex-exam-service/internal/app"
	"vertex-exam-service/internal/domain"
)

// CachingResultStore caches quiz definitions and question lists in Redis as
// JSON and falls back to the inner store on a miss. Attendance is never
// cached: its existence decides whether a session may run at all.
//
// Keys: quiz:{quizID}:def and quiz:{quizID}:questions.
type CachingResultStore struct {
	client *redis.Client
	inner  app.ResultStore
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCachingResultStore(client *redis.Client, inner app.ResultStore, ttl time.Duration) *CachingResultStore {
	return &CachingResultStore{
		client: client,
		inner:  inner,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *CachingResultStore) GetAttendance(ctx context.Context, studentID, quizID string) (domain.AttendanceRecord, error) {
	return s.inner.GetAttendance(ctx, studentID, quizID)
}

func (s *CachingResultStore) SubmitAttendance(ctx context.Context, record domain.AttendanceRecord) error {
	return s.inner.SubmitAttendance(ctx, record)
}

func (s *CachingResultStore) GetQuizDefinition(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	defKey := s.defKey(quizID)

	var cached domain.QuizDefinition
	if ok, _ := s.readJSON(ctx, defKey, &cached); ok {
		return cached, nil
	}

	result, err, _ := s.sf.Do(defKey, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		var again domain.QuizDefinition
		if ok, _ := s.readJSON(ctx, defKey, &again); ok {
			return again, nil
		}
		quiz, err := s.inner.GetQuizDefinition(ctx, quizID)
		if err != nil {
			return domain.QuizDefinition{}, err
		}
		s.writeJSON(ctx, defKey, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.QuizDefinition{}, err
	}
	return result.(domain.QuizDefinition), nil
}

func (s *CachingResultStore) GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	qKey := s.questionsKey(quizID)

	var cached []domain.Question
	if ok, _ := s.readJSON(ctx, qKey, &cached); ok && len(cached) > 0 {
		return cached, nil
	}

	result, err, _ := s.sf.Do(qKey, func() (interface{}, error) {
		var again []domain.Question
		if ok, _ := s.readJSON(ctx, qKey, &again); ok && len(again) > 0 {
			return again, nil
		}
		questions, err := s.inner.GetQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}
		s.writeJSON(ctx, qKey, questions)
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (s *CachingResultStore) readJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, nil
	}
	return true, nil
}

// writeJSON is best-effort; a cache write failure only costs a reload.
func (s *CachingResultStore) writeJSON(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.client.Set(ctx, key, raw, s.ttlWithJitter()).Err()
}

func (s *CachingResultStore) defKey(quizID string) string {
	return "quiz:" + quizID + ":def"
}

func (s *CachingResultStore) questionsKey(quizID string) string {
	return "quiz:" + quizID + ":questions"
}

func (s *CachingResultStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
