package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vertex-exam-service/internal/app"
	"vertex-exam-service/internal/domain"
)

func TestResumeGrantsNoExtraTime(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := newFakeStores(sampleQuiz(30), sampleQuestions(20))
	store.resume.seed("s1", "quiz-1", now.Add(-20*time.Minute))

	engine := app.NewSessionEngine(store.results, store.resume, "s1", "quiz-1",
		app.WithClock(func() time.Time { return now }))
	defer engine.Stop()

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := engine.Remaining(); got != 600 {
		t.Fatalf("expected 600s remaining after 20 of 30 minutes, got %d", got)
	}
	if store.resume.setCalls != 0 {
		t.Fatalf("resume start must not be rewritten on reload")
	}
}

func TestFreshStartWritesResumeState(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := newFakeStores(sampleQuiz(30), sampleQuestions(20))

	engine := app.NewSessionEngine(store.results, store.resume, "s1", "quiz-1",
		app.WithClock(func() time.Time { return now }))
	defer engine.Stop()

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := engine.Remaining(); got != 1800 {
		t.Fatalf("expected full 1800s, got %d", got)
	}
	start, ok, _ := store.resume.GetStart(context.Background(), "s1", "quiz-1")
	if !ok || !start.Equal(now) {
		t.Fatalf("expected persisted start %v, got %v (present=%v)", now, start, ok)
	}
}

func TestExpiredResumeAutoSubmits(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := newFakeStores(sampleQuiz(30), sampleQuestions(20))
	store.resume.seed("s1", "quiz-1", now.Add(-2*time.Hour))

	engine := app.NewSessionEngine(store.results, store.resume, "s1", "quiz-1",
		app.WithClock(func() time.Time { return now }))
	defer engine.Stop()

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if engine.Phase() != app.PhaseSubmitted {
		t.Fatalf("expected immediate auto-submit, phase=%v", engine.Phase())
	}
	if s := engine.Summary(); s.Answered != 0 || s.Score != 0 {
		t.Fatalf("expected empty score summary, got %+v", s)
	}
}

func TestAlreadyAttendedShortCircuits(t *testing.T) {
	store := newFakeStores(sampleQuiz(30), sampleQuestions(20))
	existing := domain.AttendanceRecord{
		StudentID: "s1",
		QuizID:    "quiz-1",
		Summary:   domain.ScoreSummary{Answered: 12, Correct: 10, Incorrect: 2, Score: 9.5},
	}
	store.results.putAttendance(existing)

	engine := app.NewSessionEngine(store.results, store.resume, "s1", "quiz-1")
	defer engine.Stop()

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if engine.Phase() != app.PhaseAlreadyAttended {
		t.Fatalf("expected alreadyAttended, got %v", engine.Phase())
	}
	if got := engine.Summary(); got != existing.Summary {
		t.Fatalf("displayed score must equal the server record, got %+v", got)
	}
	if engine.Remaining() != 0 {
		t.Fatalf("no timer must start for an attended quiz")
	}
	if store.resume.setCalls != 0 {
		t.Fatalf("no resume state must be written for an attended quiz")
	}

	// Dismissal closes without a second submission.
	if err := engine.Dismiss(context.Background()); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if store.results.submitCount() != 0 {
		t.Fatalf("attended session must not resubmit")
	}
}

func TestScoringUsesFirstQuestionMarks(t *testing.T) {
	questions := sampleQuestions(20)
	store := newFakeStores(sampleQuiz(30), questions)

	engine := app.NewSessionEngine(store.results, store.resume, "s1", "quiz-1")
	defer engine.Stop()
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// 15 correct, 3 wrong, 2 unanswered; mark=1, penalty=0.25 from question one.
	for i := 0; i < 15; i++ {
		mustSelect(t, engine, questions[i].ID, questions[i].Correct)
	}
	for i := 15; i < 18; i++ {
		mustSelect(t, engine, questions[i].ID, wrongChoice(questions[i].Correct))
	}

	if err := engine.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	s := engine.Summary()
	if s.Answered != 18 || s.Correct != 15 || s.Incorrect != 3 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.Score != 14.25 {
		t.Fatalf("expected score 14.25 (15*1 - 3*0.25), got %v", s.Score)
	}

	record := engine.Record()
	if len(record.Answers) != 20 {
		t.Fatalf("record must list every question, got %d", len(record.Answers))
	}
	if record.Answers[19].Selected != domain.ChoiceNone {
		t.Fatalf("unanswered question must carry an empty choice")
	}
}

func TestSubmitFiresAtMostOnce(t *testing.T) {
	store := newFakeStores(sampleQuiz(30), sampleQuestions(5))

	engine := app.NewSessionEngine(store.results, store.resume, "s1", "quiz-1",
		app.WithDisplayWindow(1), app.WithTickInterval(2*time.Millisecond))
	defer engine.Stop()
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = engine.Submit()
		}()
	}
	wg.Wait()

	if engine.Phase() != app.PhaseSubmitted && engine.Phase() != app.PhaseClosed {
		t.Fatalf("expected submitted, got %v", engine.Phase())
	}

	// The display countdown (1 logical second at 2ms) auto-dismisses; a late
	// manual dismissal must not add a second persistence call.
	waitFor(t, func() bool { return engine.Phase() == app.PhaseClosed })
	_ = engine.Dismiss(context.Background())
	if n := store.results.submitCount(); n != 1 {
		t.Fatalf("expected exactly one SubmitAttendance call, got %d", n)
	}
	if _, ok, _ := store.resume.GetStart(context.Background(), "s1", "quiz-1"); ok {
		t.Fatalf("resume state must be cleared after close")
	}
}

func TestAnswersFrozenAfterSubmit(t *testing.T) {
	questions := sampleQuestions(5)
	store := newFakeStores(sampleQuiz(30), questions)

	engine := app.NewSessionEngine(store.results, store.resume, "s1", "quiz-1")
	defer engine.Stop()
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	mustSelect(t, engine, questions[0].ID, questions[0].Correct)
	if err := engine.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}

	before := engine.Record()
	if err := engine.SelectAnswer(questions[1].ID, questions[1].Correct); !errors.Is(err, domain.ErrSessionNotRunning) {
		t.Fatalf("expected ErrSessionNotRunning, got %v", err)
	}
	if after := engine.Record(); len(after.Answers) != len(before.Answers) || after.Summary != before.Summary {
		t.Fatalf("record changed after submission")
	}
}

func TestDismissDeniedWhileRunning(t *testing.T) {
	store := newFakeStores(sampleQuiz(30), sampleQuestions(5))

	engine := app.NewSessionEngine(store.results, store.resume, "s1", "quiz-1")
	defer engine.Stop()
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := engine.Dismiss(context.Background()); !errors.Is(err, domain.ErrQuizInProgress) {
		t.Fatalf("expected ErrQuizInProgress, got %v", err)
	}
}

func TestCountdownAndWarningSignals(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := newFakeStores(sampleQuiz(30), sampleQuestions(5))
	// 602 seconds remain: the 600s warning must fire exactly once.
	store.resume.seed("s1", "quiz-1", now.Add(-1198*time.Second))

	engine := app.NewSessionEngine(store.results, store.resume, "s1", "quiz-1",
		app.WithClock(func() time.Time { return now }),
		app.WithTickInterval(time.Millisecond))
	defer engine.Stop()
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	warnings := 0
	deadline := time.After(2 * time.Second)
	for warnings == 0 {
		select {
		case ev := <-engine.Events():
			if ev.Kind == app.EventWarning {
				if ev.Threshold != 600 {
					t.Fatalf("expected 600s threshold, got %d", ev.Threshold)
				}
				warnings++
			}
		case <-deadline:
			t.Fatalf("warning never fired")
		}
	}

	// Drain a few more ticks; the same threshold must not repeat.
	settle := time.After(20 * time.Millisecond)
	for {
		select {
		case ev := <-engine.Events():
			if ev.Kind == app.EventWarning && ev.Threshold == 600 {
				t.Fatalf("600s warning fired twice")
			}
		case <-settle:
			return
		}
	}
}

func TestCountdownReachingZeroSubmits(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := newFakeStores(sampleQuiz(30), sampleQuestions(5))
	store.resume.seed("s1", "quiz-1", now.Add(-1797*time.Second)) // 3s left

	engine := app.NewSessionEngine(store.results, store.resume, "s1", "quiz-1",
		app.WithClock(func() time.Time { return now }),
		app.WithTickInterval(time.Millisecond))
	defer engine.Stop()
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, func() bool { return engine.Phase() != app.PhaseRunning })
	if p := engine.Phase(); p != app.PhaseSubmitted && p != app.PhaseClosed {
		t.Fatalf("expected submission at zero, got %v", p)
	}
}

func TestNoTickAfterSubmission(t *testing.T) {
	store := newFakeStores(sampleQuiz(30), sampleQuestions(5))

	engine := app.NewSessionEngine(store.results, store.resume, "s1", "quiz-1",
		app.WithTickInterval(time.Millisecond), app.WithDisplayWindow(1000))
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := engine.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	engine.Stop()

	// Ticks buffered before the submission are fine; discard them along with
	// anything else already queued.
	for drained := false; !drained; {
		select {
		case <-engine.Events():
		default:
			drained = true
		}
	}

	// Give any orphaned loop time to misbehave.
	time.Sleep(20 * time.Millisecond)
	for {
		select {
		case ev := <-engine.Events():
			if ev.Kind == app.EventTick {
				t.Fatalf("countdown tick after submission")
			}
		default:
			return
		}
	}
}

func TestLoadFailureIsFatal(t *testing.T) {
	store := newFakeStores(sampleQuiz(30), sampleQuestions(5))
	store.results.questionsErr = errors.New("backend down")

	engine := app.NewSessionEngine(store.results, store.resume, "s1", "quiz-1")
	defer engine.Stop()

	if err := engine.Start(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	if engine.Phase() != app.PhaseFailed {
		t.Fatalf("expected failed phase, got %v", engine.Phase())
	}
	if store.resume.setCalls != 0 {
		t.Fatalf("no resume state may be written on a failed load")
	}
	if err := engine.SelectAnswer("q1", domain.ChoiceA); !errors.Is(err, domain.ErrSessionNotRunning) {
		t.Fatalf("expected ErrSessionNotRunning, got %v", err)
	}
}

func TestSubmissionFailureStillCloses(t *testing.T) {
	store := newFakeStores(sampleQuiz(30), sampleQuestions(5))
	store.results.submitErr = errors.New("network unreachable")

	engine := app.NewSessionEngine(store.results, store.resume, "s1", "quiz-1")
	defer engine.Stop()
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := engine.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := engine.Dismiss(context.Background()); err != nil {
		t.Fatalf("dismiss must swallow persistence failure, got %v", err)
	}
	if engine.Phase() != app.PhaseClosed {
		t.Fatalf("expected closed, got %v", engine.Phase())
	}
	if _, ok, _ := store.resume.GetStart(context.Background(), "s1", "quiz-1"); ok {
		t.Fatalf("resume state must be cleared even when persistence fails")
	}
}

// --- fixtures ---

type fakeStores struct {
	results *fakeResultStore
	resume  *fakeResumeStore
}

func newFakeStores(quiz domain.QuizDefinition, questions []domain.Question) fakeStores {
	return fakeStores{
		results: &fakeResultStore{
			quiz:       quiz,
			questions:  questions,
			attendance: make(map[string]domain.AttendanceRecord),
		},
		resume: &fakeResumeStore{starts: make(map[string]time.Time)},
	}
}

type fakeResultStore struct {
	mu           sync.Mutex
	quiz         domain.QuizDefinition
	questions    []domain.Question
	attendance   map[string]domain.AttendanceRecord
	submits      int
	submitErr    error
	quizErr      error
	questionsErr error
}

func (f *fakeResultStore) GetAttendance(_ context.Context, studentID, quizID string) (domain.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.attendance[studentID+"|"+quizID]; ok {
		return rec, nil
	}
	return domain.AttendanceRecord{}, domain.ErrAttendanceNotFound
}

func (f *fakeResultStore) GetQuizDefinition(_ context.Context, quizID string) (domain.QuizDefinition, error) {
	if f.quizErr != nil {
		return domain.QuizDefinition{}, f.quizErr
	}
	return f.quiz, nil
}

func (f *fakeResultStore) GetQuestions(_ context.Context, quizID string) ([]domain.Question, error) {
	if f.questionsErr != nil {
		return nil, f.questionsErr
	}
	return f.questions, nil
}

func (f *fakeResultStore) SubmitAttendance(_ context.Context, record domain.AttendanceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitErr != nil {
		return f.submitErr
	}
	f.attendance[record.StudentID+"|"+record.QuizID] = record
	return nil
}

func (f *fakeResultStore) putAttendance(rec domain.AttendanceRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attendance[rec.StudentID+"|"+rec.QuizID] = rec
}

func (f *fakeResultStore) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

type fakeResumeStore struct {
	mu       sync.Mutex
	starts   map[string]time.Time
	setCalls int
}

func (f *fakeResumeStore) GetStart(_ context.Context, studentID, quizID string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	start, ok := f.starts[studentID+"|"+quizID]
	return start, ok, nil
}

func (f *fakeResumeStore) SetStart(_ context.Context, studentID, quizID string, start time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	f.starts[studentID+"|"+quizID] = start
	return nil
}

func (f *fakeResumeStore) Clear(_ context.Context, studentID, quizID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.starts, studentID+"|"+quizID)
	return nil
}

func (f *fakeResumeStore) seed(studentID, quizID string, start time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts[studentID+"|"+quizID] = start
}

func sampleQuiz(durationMinutes int) domain.QuizDefinition {
	return domain.QuizDefinition{
		ID:              "quiz-1",
		Title:           "Weekly Model Test",
		CourseTitle:     "General Science",
		DurationMinutes: durationMinutes,
	}
}

func sampleQuestions(n int) []domain.Question {
	questions := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, domain.Question{
			ID:           "q" + string(rune('a'+i%26)) + string(rune('0'+i/26)),
			QuizID:       "quiz-1",
			SerialNo:     i + 1,
			Prompt:       "Question prompt",
			OptionA:      "first",
			OptionB:      "second",
			OptionC:      "third",
			OptionD:      "fourth",
			Correct:      domain.ChoiceB,
			Mark:         1,
			NegativeMark: 0.25,
		})
	}
	return questions
}

func wrongChoice(correct domain.Choice) domain.Choice {
	if correct == domain.ChoiceA {
		return domain.ChoiceB
	}
	return domain.ChoiceA
}

func mustSelect(t *testing.T, engine *app.SessionEngine, questionID string, choice domain.Choice) {
	t.Helper()
	if err := engine.SelectAnswer(questionID, choice); err != nil {
		t.Fatalf("select %s: %v", questionID, err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}
