package app

import (
	"time"

	"vertex-exam-service/internal/domain"
)

// scoreAnswers derives the score summary from the captured answers. It is a
// pure function: the same answers and questions always produce the same
// summary.
//
// Mark and penalty are taken uniformly from the first question. Questions
// model per-question values, but the portal has always scored with the first
// question's, and existing attendance rows were produced by that formula.
func scoreAnswers(questions []domain.Question, answers map[string]domain.Choice) domain.ScoreSummary {
	var s domain.ScoreSummary
	for _, q := range questions {
		choice, ok := answers[q.ID]
		if !ok {
			continue
		}
		s.Answered++
		if choice == q.Correct {
			s.Correct++
		} else {
			s.Incorrect++
		}
	}

	mark := 1.0
	penalty := 0.0
	if len(questions) > 0 {
		if questions[0].Mark != 0 {
			mark = questions[0].Mark
		}
		penalty = questions[0].NegativeMark
	}
	s.Score = float64(s.Correct)*mark - float64(s.Incorrect)*penalty
	return s
}

// buildRecord assembles the attendance payload. Every question appears in the
// detail list; unanswered ones carry an empty selected choice.
func buildRecord(studentID, quizID string, questions []domain.Question, answers map[string]domain.Choice, summary domain.ScoreSummary, submittedAt time.Time) domain.AttendanceRecord {
	details := make([]domain.AnswerDetail, 0, len(questions))
	for _, q := range questions {
		details = append(details, domain.AnswerDetail{
			QuestionID: q.ID,
			SerialNo:   q.SerialNo,
			Selected:   answers[q.ID],
			Correct:    q.Correct,
		})
	}
	return domain.AttendanceRecord{
		StudentID:   studentID,
		QuizID:      quizID,
		Summary:     summary,
		Answers:     details,
		SubmittedAt: submittedAt,
	}
}
