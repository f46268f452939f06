package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"vertex-exam-service/internal/app"
	"vertex-exam-service/internal/domain"
)

// CachingResultStore caches quiz definitions and question lists with TTL to
// avoid repeated backing-store hits during a session's initialization burst.
// Attendance reads and writes always pass through: attendance existence is
// authoritative and must never be served stale.
type CachingResultStore struct {
	inner app.ResultStore
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand

	mu        sync.RWMutex
	quizzes   map[string]cachedQuiz
	questions map[string]cachedQuestions
}

type cachedQuiz struct {
	quiz      domain.QuizDefinition
	expiresAt time.Time
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewCachingResultStore(inner app.ResultStore, ttl time.Duration) *CachingResultStore {
	return &CachingResultStore{
		inner:     inner,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		quizzes:   make(map[string]cachedQuiz),
		questions: make(map[string]cachedQuestions),
	}
}

func (s *CachingResultStore) GetAttendance(ctx context.Context, studentID, quizID string) (domain.AttendanceRecord, error) {
	return s.inner.GetAttendance(ctx, studentID, quizID)
}

func (s *CachingResultStore) SubmitAttendance(ctx context.Context, record domain.AttendanceRecord) error {
	return s.inner.SubmitAttendance(ctx, record)
}

func (s *CachingResultStore) GetQuizDefinition(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	now := s.clock()

	s.mu.RLock()
	if entry, ok := s.quizzes[quizID]; ok && entry.expiresAt.After(now) {
		s.mu.RUnlock()
		return entry.quiz, nil
	}
	s.mu.RUnlock()

	result, err, _ := s.sf.Do("quiz:"+quizID, func() (interface{}, error) {
		now := s.clock()
		s.mu.RLock()
		if entry, ok := s.quizzes[quizID]; ok && entry.expiresAt.After(now) {
			s.mu.RUnlock()
			return entry.quiz, nil
		}
		s.mu.RUnlock()

		quiz, err := s.inner.GetQuizDefinition(ctx, quizID)
		if err != nil {
			return domain.QuizDefinition{}, err
		}

		s.mu.Lock()
		s.quizzes[quizID] = cachedQuiz{quiz: quiz, expiresAt: now.Add(s.ttlWithJitter())}
		s.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.QuizDefinition{}, err
	}
	return result.(domain.QuizDefinition), nil
}

func (s *CachingResultStore) GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	now := s.clock()

	s.mu.RLock()
	if entry, ok := s.questions[quizID]; ok && entry.expiresAt.After(now) {
		s.mu.RUnlock()
		return entry.questions, nil
	}
	s.mu.RUnlock()

	result, err, _ := s.sf.Do("questions:"+quizID, func() (interface{}, error) {
		now := s.clock()
		s.mu.RLock()
		if entry, ok := s.questions[quizID]; ok && entry.expiresAt.After(now) {
			s.mu.RUnlock()
			return entry.questions, nil
		}
		s.mu.RUnlock()

		questions, err := s.inner.GetQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.questions[quizID] = cachedQuestions{questions: questions, expiresAt: now.Add(s.ttlWithJitter())}
		s.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (s *CachingResultStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
