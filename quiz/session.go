package quiz

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/korjavin/studyquizbot/models"
)

// Phase is the session's coarse-grained mode.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhaseError     Phase = "error"
	PhaseAnswering Phase = "answering"
	PhaseResults   Phase = "results"
)

const (
	MinQuestions     = 1
	MaxQuestions     = 20
	DefaultQuestions = 5
)

type state struct {
	file      *File
	count     int
	questions []models.Question
	answers   []string
	current   int
	revealed  bool
	score     int
	phase     Phase
	lastError string
	notice    string
}

func freshState() state {
	return state{count: DefaultQuestions, phase: PhaseIdle}
}

// Session is the quiz-taking state machine. All methods are safe for
// concurrent use; RequestGeneration releases the lock while the request is in flight.
type Session struct {
	mu     sync.Mutex
	gen    Generator
	notify Notifier
	log    *log.Logger

	// epoch changes on every Reset so late generation results can be dropped.
	epoch uint64
	st    state
}

// Option configures a Session.
type Option func(*Session)

// WithNotifier sets the receiver of user-facing notifications.
func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		if n != nil {
			s.notify = n
		}
	}
}

// WithLogger sets the diagnostics sink.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates an idle session that requests questions from gen.
func New(gen Generator, opts ...Option) *Session {
	s := &Session{
		gen:    gen,
		notify: discardNotifier{},
		st:     freshState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = log.New(os.Stderr, "quiz: ", log.LstdFlags)
	}
	return s
}

func (s *Session) emit(n *Notification) {
	if n != nil {
		s.notify.Notify(*n)
	}
}

// SelectFile stores f as the document to generate from. Files with a media
// type outside AcceptedMediaTypes are rejected and the selection is left unchanged.
func (s *Session) SelectFile(f File) error {
	s.mu.Lock()
	n, err := s.selectFile(f)
	s.mu.Unlock()
	s.emit(n)
	return err
}

func (s *Session) selectFile(f File) (*Notification, error) {
	if s.st.phase != PhaseIdle && s.st.phase != PhaseError {
		return nil, fmt.Errorf("select file in phase %s: %w", s.st.phase, ErrInvalidPhase)
	}

	s.log.Printf("File selected: name=%q type=%q size=%d", f.Name, f.MediaType, f.Size)

	if !IsAcceptedMediaType(f.MediaType) {
		msg := "Invalid file type. Allowed types: " + strings.Join(AcceptedMediaTypes, ", ")
		s.log.Printf("Rejected file %q: %s", f.Name, msg)
		s.st.notice = msg
		return &Notification{Level: LevelError, Title: "Invalid file type", Message: msg},
			fmt.Errorf("%w: %q", ErrInvalidFileType, f.MediaType)
	}

	file := f
	s.st.file = &file
	s.st.notice = ""
	return nil, nil
}

// SetQuestionCount stores the number of questions to request.
// Values outside [MinQuestions, MaxQuestions] are rejected and the last valid value is kept.
func (s *Session) SetQuestionCount(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.phase != PhaseIdle && s.st.phase != PhaseError {
		return fmt.Errorf("set question count in phase %s: %w", s.st.phase, ErrInvalidPhase)
	}
	if n < MinQuestions || n > MaxQuestions {
		return fmt.Errorf("%w: got %d", ErrQuestionCountOutOfRange, n)
	}
	s.st.count = n
	return nil
}

// RequestGeneration sends the selected file to the generator and blocks until
// it answers. A call made while another generation is in flight is ignored and
// returns ErrGenerationInProgress.
func (s *Session) RequestGeneration(ctx context.Context) error {
	s.mu.Lock()
	switch s.st.phase {
	case PhaseIdle, PhaseError:
	case PhaseLoading:
		s.mu.Unlock()
		s.log.Printf("Generation already in flight, ignoring request")
		return ErrGenerationInProgress
	default:
		phase := s.st.phase
		s.mu.Unlock()
		return fmt.Errorf("request generation in phase %s: %w", phase, ErrInvalidPhase)
	}

	if s.st.file == nil {
		s.log.Printf("Generation requested without a file")
		s.st.notice = "No file selected"
		s.mu.Unlock()
		s.emit(&Notification{Level: LevelError, Title: "No file selected"})
		return ErrNoFileSelected
	}

	prevPhase, prevErr := s.st.phase, s.st.lastError
	file, count, epoch := *s.st.file, s.st.count, s.epoch
	s.st.phase = PhaseLoading
	s.st.lastError = ""
	s.st.notice = ""
	s.mu.Unlock()

	s.log.Printf("Sending file %q to generation service (questions: %d)", file.Name, count)
	questions, genErr := s.gen.Generate(ctx, file, count)

	s.mu.Lock()
	n, err := s.finishGeneration(epoch, prevPhase, prevErr, questions, genErr)
	s.mu.Unlock()
	s.emit(n)
	return err
}

func (s *Session) finishGeneration(epoch uint64, prevPhase Phase, prevErr string, questions []models.Question, genErr error) (*Notification, error) {
	if epoch != s.epoch {
		s.log.Printf("Discarding generation result that arrived after reset")
		return nil, ErrSessionReset
	}

	if genErr != nil {
		if errors.Is(genErr, ErrUnexpectedClient) {
			s.log.Printf("Unexpected error preparing generation request: %v", genErr)
			s.st.phase = prevPhase
			s.st.lastError = prevErr
			s.st.notice = "Error preparing quiz request"
			return &Notification{Level: LevelError, Title: "Error", Message: s.st.notice}, genErr
		}

		s.log.Printf("Quiz generation failed: %v", genErr)
		s.st.phase = PhaseError
		s.st.lastError = userMessage(genErr)
		return &Notification{Level: LevelError, Title: "Error", Message: s.st.lastError},
			fmt.Errorf("generate quiz: %w", genErr)
	}

	s.log.Printf("Quiz generated successfully with %d questions", len(questions))
	s.st.file = nil
	s.st.questions = append([]models.Question(nil), questions...)
	s.st.answers = make([]string, len(questions))
	s.st.current = 0
	s.st.score = 0
	s.st.revealed = false
	if len(questions) == 0 {
		// nothing to answer, fall through to an empty result
		s.st.phase = PhaseResults
	} else {
		s.st.phase = PhaseAnswering
	}
	return &Notification{
		Level:   LevelSuccess,
		Title:   "Quiz Generated",
		Message: fmt.Sprintf("Created %d questions", len(questions)),
	}, nil
}

// SelectAnswer records option as the answer to the current question,
// replacing any earlier choice. It fails once the answer has been revealed.
func (s *Session) SelectAnswer(option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.phase != PhaseAnswering {
		return fmt.Errorf("select answer in phase %s: %w", s.st.phase, ErrInvalidPhase)
	}
	if s.st.revealed {
		return ErrAnswerRevealed
	}
	if option == "" {
		return ErrNoAnswerSelected
	}

	s.log.Printf("Answer selected: question=%d answer=%q", s.st.current+1, option)
	s.st.answers[s.st.current] = option
	return nil
}

// Reveal is the outcome of checking a submitted answer.
type Reveal struct {
	Correct       bool
	Selected      string
	CorrectAnswer string
}

// SubmitAnswer checks the current selection against the answer key and
// scores it. Each question can be submitted once.
func (s *Session) SubmitAnswer() (Reveal, error) {
	s.mu.Lock()
	r, n, err := s.submitAnswer()
	s.mu.Unlock()
	s.emit(n)
	return r, err
}

func (s *Session) submitAnswer() (Reveal, *Notification, error) {
	if s.st.phase != PhaseAnswering {
		return Reveal{}, nil, fmt.Errorf("submit answer in phase %s: %w", s.st.phase, ErrInvalidPhase)
	}
	if s.st.revealed {
		return Reveal{}, nil, ErrAnswerRevealed
	}
	selected := s.st.answers[s.st.current]
	if selected == "" {
		return Reveal{}, nil, ErrNoAnswerSelected
	}

	q := s.st.questions[s.st.current]
	r := Reveal{Correct: selected == q.CorrectAnswer, Selected: selected, CorrectAnswer: q.CorrectAnswer}
	if r.Correct {
		s.st.score++
	}
	s.st.revealed = true
	s.log.Printf("Answer submitted: question=%d correct=%v score=%d", s.st.current+1, r.Correct, s.st.score)

	if r.Correct {
		return r, &Notification{Level: LevelSuccess, Title: "Correct!", Message: "Great job!"}, nil
	}
	return r, &Notification{
		Level:   LevelError,
		Title:   "Incorrect",
		Message: "The correct answer was: " + q.CorrectAnswer,
	}, nil
}

// Advance moves to the next question, or to PhaseResults after the last one.
func (s *Session) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.phase != PhaseAnswering {
		return fmt.Errorf("advance in phase %s: %w", s.st.phase, ErrInvalidPhase)
	}
	if !s.st.revealed {
		return ErrAnswerNotRevealed
	}

	if s.st.current == len(s.st.questions)-1 {
		s.log.Printf("Quiz completed, score %d of %d", s.st.score, len(s.st.questions))
		s.st.phase = PhaseResults
		return nil
	}
	s.st.current++
	s.st.revealed = false
	s.log.Printf("Moving to question %d", s.st.current+1)
	return nil
}

// Reset discards everything and returns the session to a fresh idle state.
// A generation still in flight is abandoned.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.st = freshState()
	s.log.Printf("Quiz reset")
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Phase:          s.st.phase,
		QuestionCount:  s.st.count,
		Questions:      append([]models.Question(nil), s.st.questions...),
		Answers:        append([]string(nil), s.st.answers...),
		CurrentIndex:   s.st.current,
		AnswerRevealed: s.st.revealed,
		Score:          s.st.score,
		LastError:      s.st.lastError,
		Notice:         s.st.notice,
	}
	if s.st.file != nil {
		snap.HasFile = true
		snap.FileName = s.st.file.Name
	}
	return snap
}
