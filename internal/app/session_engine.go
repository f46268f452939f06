package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"vertex-exam-service/internal/domain"
)

// ResultStore is the remote service holding quiz content and finalized results.
type ResultStore interface {
	GetAttendance(ctx context.Context, studentID, quizID string) (domain.AttendanceRecord, error)
	GetQuizDefinition(ctx context.Context, quizID string) (domain.QuizDefinition, error)
	GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
	SubmitAttendance(ctx context.Context, record domain.AttendanceRecord) error
}

// ResumeStore remembers when an attempt started so a reconnect resumes the
// countdown instead of restarting it.
type ResumeStore interface {
	GetStart(ctx context.Context, studentID, quizID string) (time.Time, bool, error)
	SetStart(ctx context.Context, studentID, quizID string, start time.Time) error
	Clear(ctx context.Context, studentID, quizID string) error
}

// Phase is the session state. Running -> Submitted is guarded by a
// compare-and-swap so the transition commits at most once.
type Phase int32

const (
	PhaseInitializing Phase = iota
	PhaseRunning
	PhaseAlreadyAttended
	PhaseSubmitted
	PhaseClosed
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseRunning:
		return "running"
	case PhaseAlreadyAttended:
		return "alreadyAttended"
	case PhaseSubmitted:
		return "submitted"
	case PhaseClosed:
		return "closed"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// EventKind identifies session engine notifications to the view layer.
type EventKind string

const (
	EventStarted         EventKind = "started"
	EventTick            EventKind = "tick"
	EventWarning         EventKind = "warning"
	EventSubmitted       EventKind = "submitted"
	EventClosing         EventKind = "closing"
	EventClosed          EventKind = "closed"
	EventAlreadyAttended EventKind = "alreadyAttended"
	EventLoadFailed      EventKind = "loadFailed"
)

// Event is a non-blocking advisory signal from the engine.
type Event struct {
	Kind      EventKind
	Remaining int // seconds left, for started/tick/closing
	Threshold int // seconds, for warning
	Summary   domain.ScoreSummary
	Refresh   bool // closed: caller should refresh attendance data
	Err       error
}

// Warning thresholds in seconds remaining. Each fires at most once per session.
var warningThresholds = [...]int{600, 300}

const defaultDisplayWindow = 10 // seconds the result stays visible before auto-close

// SessionEngine owns one student's single timed attempt at one quiz: the
// countdown, the in-progress answer set, scoring, the submit-once guarantee,
// and the post-submission close sequence.
type SessionEngine struct {
	results   ResultStore
	resume    ResumeStore
	studentID string
	quizID    string

	clock         func() time.Time
	tickInterval  time.Duration
	displayWindow int

	phase atomic.Int32

	mu          sync.Mutex
	quiz        domain.QuizDefinition
	questions   []domain.Question
	answers     map[string]domain.Choice
	summary     domain.ScoreSummary
	record      domain.AttendanceRecord
	warned      map[int]bool
	remaining   int
	displayLeft int

	countdown *timerHandle
	display   *timerHandle

	events       chan Event
	done         chan struct{}
	closeOnce    sync.Once
	finalizeOnce sync.Once
}

// Option configures a SessionEngine.
type Option func(*SessionEngine)

// WithClock injects a deterministic time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *SessionEngine) { e.clock = now }
}

// WithTickInterval compresses the length of a logical second for tests.
func WithTickInterval(d time.Duration) Option {
	return func(e *SessionEngine) { e.tickInterval = d }
}

// WithDisplayWindow overrides how many seconds the result view stays open
// before the session auto-closes.
func WithDisplayWindow(seconds int) Option {
	return func(e *SessionEngine) { e.displayWindow = seconds }
}

func NewSessionEngine(results ResultStore, resume ResumeStore, studentID, quizID string, opts ...Option) *SessionEngine {
	e := &SessionEngine{
		results:       results,
		resume:        resume,
		studentID:     studentID,
		quizID:        quizID,
		clock:         time.Now,
		tickInterval:  time.Second,
		displayWindow: defaultDisplayWindow,
		answers:       make(map[string]domain.Choice),
		warned:        make(map[int]bool),
		events:        make(chan Event, 32),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Phase returns the current session phase.
func (e *SessionEngine) Phase() Phase {
	return Phase(e.phase.Load())
}

// Events is the engine's notification stream. It is never closed; consumers
// should also select on Done.
func (e *SessionEngine) Events() <-chan Event {
	return e.events
}

// Done is closed when the session has closed or was torn down.
func (e *SessionEngine) Done() <-chan struct{} {
	return e.done
}

// Remaining reports the countdown in whole seconds.
func (e *SessionEngine) Remaining() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remaining
}

// Quiz returns the definition loaded at start.
func (e *SessionEngine) Quiz() domain.QuizDefinition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quiz
}

// Questions returns the ordered question list loaded at start.
func (e *SessionEngine) Questions() []domain.Question {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Question, len(e.questions))
	copy(out, e.questions)
	return out
}

// Summary returns the score summary; zero until submission or an
// already-attended short-circuit.
func (e *SessionEngine) Summary() domain.ScoreSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

// Record returns the attendance record built at submission.
func (e *SessionEngine) Record() domain.AttendanceRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record
}

// Start performs the initialization sequence: prior-attendance lookup, quiz
// and question loading, and countdown resolution against the resume store.
// A stale resume entry whose time already ran out auto-submits immediately.
func (e *SessionEngine) Start(ctx context.Context) error {
	if Phase(e.phase.Load()) != PhaseInitializing {
		return domain.ErrSessionClosed
	}

	record, err := e.results.GetAttendance(ctx, e.studentID, e.quizID)
	switch {
	case err == nil:
		e.mu.Lock()
		e.summary = record.Summary
		e.record = record
		e.mu.Unlock()
		e.phase.Store(int32(PhaseAlreadyAttended))
		e.emit(Event{Kind: EventAlreadyAttended, Summary: record.Summary})
		return nil
	case !errors.Is(err, domain.ErrAttendanceNotFound):
		return e.fail(err)
	}

	quiz, err := e.results.GetQuizDefinition(ctx, e.quizID)
	if err != nil {
		return e.fail(err)
	}
	questions, err := e.results.GetQuestions(ctx, e.quizID)
	if err != nil {
		return e.fail(err)
	}

	remaining, err := e.resolveCountdown(ctx, quiz)
	if err != nil {
		return e.fail(err)
	}

	e.mu.Lock()
	e.quiz = quiz
	e.questions = questions
	e.remaining = remaining
	e.mu.Unlock()

	if !e.phase.CompareAndSwap(int32(PhaseInitializing), int32(PhaseRunning)) {
		return domain.ErrSessionClosed
	}

	if remaining <= 0 {
		// The attempt timed out before this load; submit whatever exists.
		e.submit()
		return nil
	}

	e.emit(Event{Kind: EventStarted, Remaining: remaining})
	e.setCountdown(startTimer(e.tickInterval, e.tickCountdown))
	return nil
}

func (e *SessionEngine) setCountdown(h *timerHandle) {
	e.mu.Lock()
	e.countdown = h
	e.mu.Unlock()
}

func (e *SessionEngine) setDisplay(h *timerHandle) {
	e.mu.Lock()
	e.display = h
	e.mu.Unlock()
}

// stopTimers cancels whichever handles are live. The tick loops also
// self-terminate on a phase change, so a not-yet-registered handle is fine.
func (e *SessionEngine) stopTimers(countdown, display bool) {
	e.mu.Lock()
	c, d := e.countdown, e.display
	e.mu.Unlock()
	if countdown {
		c.Stop()
	}
	if display {
		d.Stop()
	}
}

// resolveCountdown derives remaining seconds from the persisted start
// timestamp, or writes a fresh one. A reconnect never grants extra time.
func (e *SessionEngine) resolveCountdown(ctx context.Context, quiz domain.QuizDefinition) (int, error) {
	total := quiz.DurationMinutes * 60
	start, ok, err := e.resume.GetStart(ctx, e.studentID, e.quizID)
	if err != nil {
		return 0, err
	}
	if ok {
		elapsed := int(e.clock().Sub(start) / time.Second)
		remaining := total - elapsed
		if remaining < 0 {
			remaining = 0
		}
		return remaining, nil
	}
	if err := e.resume.SetStart(ctx, e.studentID, e.quizID, e.clock()); err != nil {
		return 0, err
	}
	return total, nil
}

// SelectAnswer upserts the student's choice for a question. Rejected outside
// the Running phase; overwrites before submission are unbounded.
func (e *SessionEngine) SelectAnswer(questionID string, choice domain.Choice) error {
	if !choice.Valid() {
		return domain.ErrInvalidChoice
	}
	if Phase(e.phase.Load()) != PhaseRunning {
		return domain.ErrSessionNotRunning
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// Re-check under the lock: a racing submit freezes the answer set.
	if Phase(e.phase.Load()) != PhaseRunning {
		return domain.ErrSessionNotRunning
	}
	found := false
	for i := range e.questions {
		if e.questions[i].ID == questionID {
			found = true
			break
		}
	}
	if !found {
		return domain.ErrQuestionNotFound
	}
	e.answers[questionID] = choice
	return nil
}

// Submit is the manual submission trigger. It races the zero tick through
// the same guard; whichever fires first commits, the other is a no-op.
func (e *SessionEngine) Submit() error {
	switch Phase(e.phase.Load()) {
	case PhaseRunning:
		e.submit()
		return nil
	case PhaseSubmitted, PhaseClosed:
		// duplicate trigger
		return nil
	default:
		return domain.ErrSessionNotRunning
	}
}

// submit commits Running -> Submitted at most once, computes the score,
// freezes the answers into the attendance record, and starts the result
// display countdown.
func (e *SessionEngine) submit() bool {
	if !e.phase.CompareAndSwap(int32(PhaseRunning), int32(PhaseSubmitted)) {
		return false
	}
	e.stopTimers(true, false)

	e.mu.Lock()
	e.remaining = 0
	e.summary = scoreAnswers(e.questions, e.answers)
	e.record = buildRecord(e.studentID, e.quizID, e.questions, e.answers, e.summary, e.clock())
	e.displayLeft = e.displayWindow
	summary := e.summary
	e.mu.Unlock()

	e.emit(Event{Kind: EventSubmitted, Summary: summary, Remaining: e.displayWindow})
	e.setDisplay(startTimer(e.tickInterval, e.tickDisplay))
	return true
}

func (e *SessionEngine) tickCountdown() bool {
	if Phase(e.phase.Load()) != PhaseRunning {
		return false
	}

	e.mu.Lock()
	e.remaining--
	remaining := e.remaining
	warn := 0
	for _, threshold := range warningThresholds {
		if remaining == threshold && !e.warned[threshold] {
			e.warned[threshold] = true
			warn = threshold
		}
	}
	e.mu.Unlock()

	if warn > 0 {
		e.emit(Event{Kind: EventWarning, Threshold: warn})
	}
	if remaining <= 0 {
		e.submit()
		return false
	}
	e.emit(Event{Kind: EventTick, Remaining: remaining})
	return true
}

func (e *SessionEngine) tickDisplay() bool {
	if Phase(e.phase.Load()) != PhaseSubmitted {
		return false
	}

	e.mu.Lock()
	e.displayLeft--
	left := e.displayLeft
	e.mu.Unlock()

	if left <= 0 {
		_ = e.Dismiss(context.Background())
		return false
	}
	e.emit(Event{Kind: EventClosing, Remaining: left})
	return true
}

// Dismiss closes the session. From Submitted it performs the single
// best-effort attendance submission and clears resume state; from
// AlreadyAttended or Failed it only closes. Denied while the attempt is
// still running, and a no-op once closed.
func (e *SessionEngine) Dismiss(ctx context.Context) error {
	switch Phase(e.phase.Load()) {
	case PhaseInitializing, PhaseRunning:
		return domain.ErrQuizInProgress
	}

	wasSubmitted := e.phase.CompareAndSwap(int32(PhaseSubmitted), int32(PhaseClosed))
	if !wasSubmitted {
		closed := e.phase.CompareAndSwap(int32(PhaseAlreadyAttended), int32(PhaseClosed)) ||
			e.phase.CompareAndSwap(int32(PhaseFailed), int32(PhaseClosed))
		if !closed {
			return nil
		}
	}
	e.stopTimers(false, true)

	if wasSubmitted {
		e.finalizeOnce.Do(func() {
			e.mu.Lock()
			record := e.record
			e.mu.Unlock()
			// Best-effort: persistence failure never blocks closing.
			if err := e.results.SubmitAttendance(ctx, record); err != nil {
				log.Printf("submit attendance quiz=%s student=%s: %v", e.quizID, e.studentID, err)
			}
			if err := e.resume.Clear(ctx, e.studentID, e.quizID); err != nil {
				log.Printf("clear resume state quiz=%s student=%s: %v", e.quizID, e.studentID, err)
			}
		})
	}

	e.emit(Event{Kind: EventClosed, Refresh: wasSubmitted})
	e.closeOnce.Do(func() { close(e.done) })
	return nil
}

// Stop tears the engine down, cancelling every live timer. It does not
// submit or persist anything; a torn-down Running session resumes later via
// the resume store.
func (e *SessionEngine) Stop() {
	e.stopTimers(true, true)
	e.closeOnce.Do(func() { close(e.done) })
}

func (e *SessionEngine) fail(err error) error {
	e.phase.Store(int32(PhaseFailed))
	e.emit(Event{Kind: EventLoadFailed, Err: err})
	return err
}

// emit delivers without blocking; when the buffer is full one stale event is
// dropped so slow consumers never stall a timer tick.
func (e *SessionEngine) emit(ev Event) {
	select {
	case <-e.done:
		return
	default:
	}
	select {
	case e.events <- ev:
	default:
		select {
		case <-e.events:
		default:
		}
		select {
		case e.events <- ev:
		default:
		}
	}
}
