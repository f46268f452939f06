package domain

import "time"

// Choice is one of the four answer labels of a multiple-choice question.
type Choice string

const (
	ChoiceA Choice = "A"
	ChoiceB Choice = "B"
	ChoiceC Choice = "C"
	ChoiceD Choice = "D"
	// ChoiceNone marks an unanswered question in an attendance record.
	ChoiceNone Choice = ""
)

// Valid reports whether c is one of the four selectable labels.
func (c Choice) Valid() bool {
	switch c {
	case ChoiceA, ChoiceB, ChoiceC, ChoiceD:
		return true
	}
	return false
}

// QuizDefinition is the immutable description of a quiz, fetched once per session.
type QuizDefinition struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	CourseTitle     string `json:"courseTitle"`
	DurationMinutes int    `json:"durationMinutes"`
}

// Duration returns the time box of an attempt.
func (d QuizDefinition) Duration() time.Duration {
	return time.Duration(d.DurationMinutes) * time.Minute
}

// Question models an MCQ question with four labeled options and one correct choice.
type Question struct {
	ID           string  `json:"id"`
	QuizID       string  `json:"quizId"`
	SerialNo     int     `json:"serialNo"`
	Prompt       string  `json:"prompt"`
	ImageURL     string  `json:"imageUrl,omitempty"`
	OptionA      string  `json:"optionA"`
	OptionB      string  `json:"optionB"`
	OptionC      string  `json:"optionC"`
	OptionD      string  `json:"optionD"`
	Correct      Choice  `json:"correct"`
	Mark         float64 `json:"mark"`
	NegativeMark float64 `json:"negativeMark"`
}

// Option returns the option text for a choice label.
func (q Question) Option(c Choice) string {
	switch c {
	case ChoiceA:
		return q.OptionA
	case ChoiceB:
		return q.OptionB
	case ChoiceC:
		return q.OptionC
	case ChoiceD:
		return q.OptionD
	}
	return ""
}

// ScoreSummary is computed exactly once, at submission, from the answer set
// and the question list. Field names mirror the attendance payload.
type ScoreSummary struct {
	Answered  int     `json:"totalAnswered"`
	Correct   int     `json:"rightAnswers"`
	Incorrect int     `json:"wrongAnswers"`
	Score     float64 `json:"score"`
}

// AnswerDetail captures one question's outcome inside an attendance record.
type AnswerDetail struct {
	QuestionID string `json:"questionId"`
	SerialNo   int    `json:"serialNo"`
	Selected   Choice `json:"selectedAnswer"`
	Correct    Choice `json:"correctAnswer"`
}

// AttendanceRecord is the server-held proof that a student has a finalized
// result for a quiz. Once it exists the session engine treats it as
// authoritative and never rescores.
type AttendanceRecord struct {
	StudentID   string         `json:"studentId"`
	QuizID      string         `json:"quizId"`
	Summary     ScoreSummary   `json:"summary"`
	Answers     []AnswerDetail `json:"answers"`
	SubmittedAt time.Time      `json:"submittedAt"`
}
