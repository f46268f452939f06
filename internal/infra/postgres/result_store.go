package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"vertex-exam-service/internal/domain"
)

// ResultStore is the postgres-backed implementation of app.ResultStore.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) GetAttendance(ctx context.Context, studentID, quizID string) (domain.AttendanceRecord, error) {
	var (
		record domain.AttendanceRecord
		raw    []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT student_id, quiz_id, total_answered, right_answers, wrong_answers, score, answers, submitted_at
		FROM attendance
		WHERE student_id=$1 AND quiz_id=$2`, studentID, quizID).
		Scan(&record.StudentID, &record.QuizID,
			&record.Summary.Answered, &record.Summary.Correct, &record.Summary.Incorrect, &record.Summary.Score,
			&raw, &record.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AttendanceRecord{}, domain.ErrAttendanceNotFound
	}
	if err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("load attendance: %w", err)
	}
	if err := json.Unmarshal(raw, &record.Answers); err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("unmarshal answers: %w", err)
	}
	return record, nil
}

func (s *ResultStore) GetQuizDefinition(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	var quiz domain.QuizDefinition
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, course_title, duration_minutes
		FROM quizzes
		WHERE id=$1`, quizID).
		Scan(&quiz.ID, &quiz.Title, &quiz.CourseTitle, &quiz.DurationMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizDefinition{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.QuizDefinition{}, fmt.Errorf("load quiz: %w", err)
	}
	return quiz, nil
}

func (s *ResultStore) GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, quiz_id, serial_no, prompt, image_url, option_a, option_b, option_c, option_d, correct, mark, negative_mark
		FROM questions
		WHERE quiz_id=$1
		ORDER BY serial_no`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			q       domain.Question
			correct string
		)
		if err := rows.Scan(&q.ID, &q.QuizID, &q.SerialNo, &q.Prompt, &q.ImageURL,
			&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &correct, &q.Mark, &q.NegativeMark); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Correct = domain.Choice(correct)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, domain.ErrQuizNotFound
	}
	return questions, nil
}

// SubmitAttendance inserts the finalized record. The unique (quiz_id,
// student_id) constraint plus DO NOTHING makes at-least-once delivery from
// the session engine idempotent: the first record wins.
func (s *ResultStore) SubmitAttendance(ctx context.Context, record domain.AttendanceRecord) error {
	raw, err := json.Marshal(record.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO attendance (id, student_id, quiz_id, total_answered, right_answers, wrong_answers, score, answers, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (quiz_id, student_id) DO NOTHING`,
		uuid.New().String(), record.StudentID, record.QuizID,
		record.Summary.Answered, record.Summary.Correct, record.Summary.Incorrect, record.Summary.Score,
		raw, record.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}
