package memory

import (
	"context"
	"testing"
	"time"

	"vertex-exam-service/internal/app"
	"vertex-exam-service/internal/domain"
)

func TestCachingResultStoreCachesReads(t *testing.T) {
	inner := &countingStore{ResultStore: newSeededStore()}
	cache := NewCachingResultStore(inner, time.Minute)
	ctx := context.Background()

	if _, err := cache.GetQuizDefinition(ctx, "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if _, err := cache.GetQuizDefinition(ctx, "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if inner.quizCalls != 1 {
		t.Fatalf("expected one backing hit, got %d", inner.quizCalls)
	}

	if _, err := cache.GetQuestions(ctx, "quiz-1"); err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if _, err := cache.GetQuestions(ctx, "quiz-1"); err != nil {
		t.Fatalf("get questions 2: %v", err)
	}
	if inner.questionCalls != 1 {
		t.Fatalf("expected one backing hit for questions, got %d", inner.questionCalls)
	}
}

func TestCachingResultStoreAttendancePassesThrough(t *testing.T) {
	inner := &countingStore{ResultStore: newSeededStore()}
	cache := NewCachingResultStore(inner, time.Minute)
	ctx := context.Background()

	record := domain.AttendanceRecord{StudentID: "s1", QuizID: "quiz-1"}
	if err := cache.SubmitAttendance(ctx, record); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Existence must be visible immediately, never cached-stale.
	if _, err := cache.GetAttendance(ctx, "s1", "quiz-1"); err != nil {
		t.Fatalf("get attendance: %v", err)
	}
	if _, err := cache.GetAttendance(ctx, "s1", "quiz-1"); err != nil {
		t.Fatalf("get attendance 2: %v", err)
	}
	if inner.attendanceCalls != 2 {
		t.Fatalf("attendance reads must not be cached, got %d calls", inner.attendanceCalls)
	}
}

func newSeededStore() *ResultStore {
	return NewResultStore(
		map[string]domain.QuizDefinition{
			"quiz-1": {ID: "quiz-1", Title: "Model Test", CourseTitle: "Science", DurationMinutes: 30},
		},
		map[string][]domain.Question{
			"quiz-1": {{ID: "q1", QuizID: "quiz-1", SerialNo: 1, Correct: domain.ChoiceA, Mark: 1}},
		},
	)
}

type countingStore struct {
	*ResultStore
	quizCalls       int
	questionCalls   int
	attendanceCalls int
}

func (c *countingStore) GetQuizDefinition(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	c.quizCalls++
	return c.ResultStore.GetQuizDefinition(ctx, quizID)
}

func (c *countingStore) GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	c.questionCalls++
	return c.ResultStore.GetQuestions(ctx, quizID)
}

func (c *countingStore) GetAttendance(ctx context.Context, studentID, quizID string) (domain.AttendanceRecord, error) {
	c.attendanceCalls++
	return c.ResultStore.GetAttendance(ctx, studentID, quizID)
}

var _ app.ResultStore = (*countingStore)(nil)
