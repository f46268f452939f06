package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"vertex-exam-service/internal/domain"
)

// ResultStore is an in-memory implementation of app.ResultStore, useful for
// demos and tests when no postgres is configured.
type ResultStore struct {
	mu         sync.RWMutex
	quizzes    map[string]domain.QuizDefinition
	questions  map[string][]domain.Question
	attendance map[string]domain.AttendanceRecord
}

func NewResultStore(quizzes map[string]domain.QuizDefinition, questions map[string][]domain.Question) *ResultStore {
	return &ResultStore{
		quizzes:    quizzes,
		questions:  questions,
		attendance: make(map[string]domain.AttendanceRecord),
	}
}

func (s *ResultStore) GetAttendance(_ context.Context, studentID, quizID string) (domain.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.attendance[attendanceKey(studentID, quizID)]; ok {
		return record, nil
	}
	return domain.AttendanceRecord{}, domain.ErrAttendanceNotFound
}

func (s *ResultStore) GetQuizDefinition(_ context.Context, quizID string) (domain.QuizDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if quiz, ok := s.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.QuizDefinition{}, domain.ErrQuizNotFound
}

func (s *ResultStore) GetQuestions(_ context.Context, quizID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	questions, ok := s.questions[quizID]
	if !ok {
		return nil, domain.ErrQuizNotFound
	}
	out := make([]domain.Question, len(questions))
	copy(out, questions)
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNo < out[j].SerialNo })
	return out, nil
}

// SubmitAttendance stores the record. The first write wins: an existing
// record is authoritative, so redelivery of the same submission is a no-op.
func (s *ResultStore) SubmitAttendance(_ context.Context, record domain.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attendanceKey(record.StudentID, record.QuizID)
	if _, ok := s.attendance[key]; ok {
		return nil
	}
	if record.SubmittedAt.IsZero() {
		record.SubmittedAt = time.Now()
	}
	s.attendance[key] = record
	return nil
}

func attendanceKey(studentID, quizID string) string {
	return studentID + "|" + quizID
}
