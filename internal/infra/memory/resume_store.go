package memory

import (
	"context"
	"sync"
	"time"
)

// ResumeStore keeps attempt start timestamps in process memory. It is the
// fallback for app.ResumeStore when redis is not configured; state does not
// survive a restart.
type ResumeStore struct {
	mu     sync.RWMutex
	starts map[string]time.Time
}

func NewResumeStore() *ResumeStore {
	return &ResumeStore{starts: make(map[string]time.Time)}
}

func (s *ResumeStore) GetStart(_ context.Context, studentID, quizID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start, ok := s.starts[resumeKey(studentID, quizID)]
	return start, ok, nil
}

func (s *ResumeStore) SetStart(_ context.Context, studentID, quizID string, start time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts[resumeKey(studentID, quizID)] = start
	return nil
}

func (s *ResumeStore) Clear(_ context.Context, studentID, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.starts, resumeKey(studentID, quizID))
	return nil
}

func resumeKey(studentID, quizID string) string {
	return studentID + "|" + quizID
}
