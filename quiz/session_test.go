package quiz_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/korjavin/studyquizbot/models"
	"github.com/korjavin/studyquizbot/quiz"
)

/* ---------------- fakes ---------------- */

type fakeGenerator struct {
	mu        sync.Mutex
	calls     int
	gotCount  int
	gotFile   quiz.File
	questions []models.Question
	err       error
}

func (g *fakeGenerator) Generate(_ context.Context, f quiz.File, count int) ([]models.Question, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.gotFile = f
	g.gotCount = count
	if g.err != nil {
		return nil, g.err
	}
	return g.questions, nil
}

type recorder struct {
	mu    sync.Mutex
	notes []quiz.Notification
}

func (r *recorder) Notify(n quiz.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) last() quiz.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notes) == 0 {
		return quiz.Notification{}
	}
	return r.notes[len(r.notes)-1]
}

func textFile(name string) quiz.File {
	return quiz.File{
		Name:      name,
		MediaType: quiz.MediaTypeText,
		Size:      5,
		Open:      func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("notes")), nil },
	}
}

func sampleQuestions(n int) []models.Question {
	qs := make([]models.Question, n)
	for i := range qs {
		qs[i] = models.Question{
			Question:      fmt.Sprintf("Question %d?", i+1),
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: "A",
		}
	}
	return qs
}

func newSession(t *testing.T, gen quiz.Generator) (*quiz.Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	logger := log.New(io.Discard, "", 0)
	return quiz.New(gen, quiz.WithNotifier(rec), quiz.WithLogger(logger)), rec
}

// startQuiz drives a session to PhaseAnswering with n generated questions.
func startQuiz(t *testing.T, n int) (*quiz.Session, *fakeGenerator, *recorder) {
	t.Helper()
	gen := &fakeGenerator{questions: sampleQuestions(n)}
	s, rec := newSession(t, gen)
	if err := s.SelectFile(textFile("notes.txt")); err != nil {
		t.Fatalf("select file: %v", err)
	}
	if n >= quiz.MinQuestions {
		if err := s.SetQuestionCount(n); err != nil {
			t.Fatalf("set count: %v", err)
		}
	}
	if err := s.RequestGeneration(context.Background()); err != nil {
		t.Fatalf("request generation: %v", err)
	}
	return s, gen, rec
}

/* ---------------- tests ---------------- */

func TestNew_StartsIdleWithDefaults(t *testing.T) {
	s, _ := newSession(t, &fakeGenerator{})
	snap := s.Snapshot()
	if snap.Phase != quiz.PhaseIdle {
		t.Fatalf("expected idle, got %s", snap.Phase)
	}
	if snap.QuestionCount != quiz.DefaultQuestions {
		t.Fatalf("expected default count %d, got %d", quiz.DefaultQuestions, snap.QuestionCount)
	}
	if snap.HasFile || snap.Total() != 0 || snap.Score != 0 {
		t.Fatalf("expected empty session, got %+v", snap)
	}
}

func TestSelectFile_RejectsUnsupportedType(t *testing.T) {
	gen := &fakeGenerator{}
	s, rec := newSession(t, gen)

	err := s.SelectFile(quiz.File{Name: "cat.png", MediaType: "image/png"})
	if !errors.Is(err, quiz.ErrInvalidFileType) {
		t.Fatalf("expected ErrInvalidFileType, got %v", err)
	}
	snap := s.Snapshot()
	if snap.HasFile {
		t.Fatalf("rejected file must not be stored")
	}
	if snap.Phase != quiz.PhaseIdle {
		t.Fatalf("rejection must not change phase, got %s", snap.Phase)
	}
	if gen.calls != 0 {
		t.Fatalf("expected no generation call, got %d", gen.calls)
	}
	if n := rec.last(); n.Level != quiz.LevelError || n.Title != "Invalid file type" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestSelectFile_RejectionKeepsPreviousFile(t *testing.T) {
	s, _ := newSession(t, &fakeGenerator{})
	if err := s.SelectFile(textFile("first.txt")); err != nil {
		t.Fatalf("select: %v", err)
	}
	_ = s.SelectFile(quiz.File{Name: "cat.png", MediaType: "image/png"})
	snap := s.Snapshot()
	if snap.FileName != "first.txt" {
		t.Fatalf("expected first.txt kept, got %q", snap.FileName)
	}
	if snap.Notice == "" {
		t.Fatalf("expected transient notice after rejection")
	}

	if err := s.SelectFile(textFile("second.txt")); err != nil {
		t.Fatalf("select: %v", err)
	}
	if snap := s.Snapshot(); snap.Notice != "" || snap.FileName != "second.txt" {
		t.Fatalf("accepting a file must clear the notice, got %+v", snap)
	}
}

func TestSelectFile_AcceptsAllDocumentTypes(t *testing.T) {
	types := append([]string{"text/plain; charset=utf-8", "Application/PDF"}, quiz.AcceptedMediaTypes...)
	for _, mt := range types {
		s, _ := newSession(t, &fakeGenerator{})
		if err := s.SelectFile(quiz.File{Name: "doc", MediaType: mt}); err != nil {
			t.Fatalf("%s: unexpected error %v", mt, err)
		}
		if !s.Snapshot().HasFile {
			t.Fatalf("%s: file not stored", mt)
		}
	}
}

func TestSetQuestionCount_KeepsLastValidValue(t *testing.T) {
	s, _ := newSession(t, &fakeGenerator{})
	if err := s.SetQuestionCount(12); err != nil {
		t.Fatalf("set 12: %v", err)
	}
	for _, n := range []int{0, 21, -3} {
		if err := s.SetQuestionCount(n); !errors.Is(err, quiz.ErrQuestionCountOutOfRange) {
			t.Fatalf("%d: expected out of range, got %v", n, err)
		}
	}
	if got := s.Snapshot().QuestionCount; got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
}

func TestRequestGeneration_WithoutFile(t *testing.T) {
	gen := &fakeGenerator{questions: sampleQuestions(1)}
	s, rec := newSession(t, gen)

	if err := s.RequestGeneration(context.Background()); !errors.Is(err, quiz.ErrNoFileSelected) {
		t.Fatalf("expected ErrNoFileSelected, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("expected no network call")
	}
	if p := s.Snapshot().Phase; p != quiz.PhaseIdle {
		t.Fatalf("expected idle, got %s", p)
	}
	if n := rec.last(); n.Title != "No file selected" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestRequestGeneration_Success(t *testing.T) {
	s, gen, rec := startQuiz(t, 3)

	if gen.calls != 1 || gen.gotCount != 3 || gen.gotFile.Name != "notes.txt" {
		t.Fatalf("unexpected generator call: calls=%d count=%d file=%q", gen.calls, gen.gotCount, gen.gotFile.Name)
	}
	snap := s.Snapshot()
	if snap.Phase != quiz.PhaseAnswering {
		t.Fatalf("expected answering, got %s", snap.Phase)
	}
	if snap.CurrentIndex != 0 || snap.Score != 0 || snap.AnswerRevealed {
		t.Fatalf("unexpected initial state %+v", snap)
	}
	if len(snap.Answers) != len(snap.Questions) {
		t.Fatalf("answers %d != questions %d", len(snap.Answers), len(snap.Questions))
	}
	if snap.HasFile {
		t.Fatalf("file must be cleared once questions exist")
	}
	if n := rec.last(); n.Level != quiz.LevelSuccess || n.Message != "Created 3 questions" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestRequestGeneration_FailureWithDetail(t *testing.T) {
	gen := &fakeGenerator{err: &quiz.GenerationError{Status: 400, Detail: "file too large"}}
	s, _ := newSession(t, gen)
	_ = s.SelectFile(textFile("big.txt"))

	err := s.RequestGeneration(context.Background())
	var ge *quiz.GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	snap := s.Snapshot()
	if snap.Phase != quiz.PhaseError {
		t.Fatalf("expected error phase, got %s", snap.Phase)
	}
	if snap.LastError != "file too large" {
		t.Fatalf("expected detail as last error, got %q", snap.LastError)
	}
}

func TestRequestGeneration_FailureWithoutDetail(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("connection refused")}
	s, _ := newSession(t, gen)
	_ = s.SelectFile(textFile("notes.txt"))

	if err := s.RequestGeneration(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if got := s.Snapshot().LastError; got != quiz.DefaultGenerationError {
		t.Fatalf("expected generic message, got %q", got)
	}
}

func TestRequestGeneration_RetryFromError(t *testing.T) {
	gen := &fakeGenerator{err: &quiz.GenerationError{Detail: "boom"}}
	s, _ := newSession(t, gen)
	_ = s.SelectFile(textFile("notes.txt"))
	_ = s.RequestGeneration(context.Background())

	gen.err = nil
	gen.questions = sampleQuestions(2)
	if err := s.RequestGeneration(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	snap := s.Snapshot()
	if snap.Phase != quiz.PhaseAnswering || snap.LastError != "" {
		t.Fatalf("expected clean answering state, got %+v", snap)
	}
	if gen.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", gen.calls)
	}
}

func TestRequestGeneration_UnexpectedClientErrorStaysInteractive(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("%w: open upload: disk gone", quiz.ErrUnexpectedClient)}
	s, rec := newSession(t, gen)
	_ = s.SelectFile(textFile("notes.txt"))

	err := s.RequestGeneration(context.Background())
	if !errors.Is(err, quiz.ErrUnexpectedClient) {
		t.Fatalf("expected ErrUnexpectedClient, got %v", err)
	}
	snap := s.Snapshot()
	if snap.Phase != quiz.PhaseIdle {
		t.Fatalf("expected to return to idle, got %s", snap.Phase)
	}
	if !snap.HasFile || snap.LastError != "" || snap.Notice == "" {
		t.Fatalf("unexpected state %+v", snap)
	}
	if n := rec.last(); n.Level != quiz.LevelError {
		t.Fatalf("expected error notification, got %+v", n)
	}
}

func TestRequestGeneration_ZeroQuestionsGoesToResults(t *testing.T) {
	s, _, _ := startQuiz(t, 0)
	snap := s.Snapshot()
	if snap.Phase != quiz.PhaseResults || snap.Score != 0 || snap.Total() != 0 {
		t.Fatalf("expected empty results, got %+v", snap)
	}
	if snap.Passed() {
		t.Fatalf("empty quiz must not pass")
	}
}

// blockingGenerator holds every call until release is closed.
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
	calls   int
	mu      sync.Mutex
}

func (g *blockingGenerator) Generate(ctx context.Context, _ quiz.File, count int) ([]models.Question, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	close(g.started)
	<-g.release
	return sampleQuestions(count), nil
}

func TestRequestGeneration_SecondCallWhileLoadingIsIgnored(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}), release: make(chan struct{})}
	s, _ := newSession(t, gen)
	_ = s.SelectFile(textFile("notes.txt"))

	done := make(chan error, 1)
	go func() { done <- s.RequestGeneration(context.Background()) }()
	<-gen.started

	if p := s.Snapshot().Phase; p != quiz.PhaseLoading {
		t.Fatalf("expected loading, got %s", p)
	}
	if err := s.RequestGeneration(context.Background()); !errors.Is(err, quiz.ErrGenerationInProgress) {
		t.Fatalf("expected ErrGenerationInProgress, got %v", err)
	}
	if err := s.SelectAnswer("A"); !errors.Is(err, quiz.ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase while loading, got %v", err)
	}

	close(gen.release)
	if err := <-done; err != nil {
		t.Fatalf("first request: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected exactly one generator call, got %d", gen.calls)
	}
	if p := s.Snapshot().Phase; p != quiz.PhaseAnswering {
		t.Fatalf("expected answering, got %s", p)
	}
}

func TestReset_DiscardsLateGenerationResult(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}), release: make(chan struct{})}
	s, _ := newSession(t, gen)
	_ = s.SelectFile(textFile("notes.txt"))

	done := make(chan error, 1)
	go func() { done <- s.RequestGeneration(context.Background()) }()
	<-gen.started

	s.Reset()
	close(gen.release)
	if err := <-done; !errors.Is(err, quiz.ErrSessionReset) {
		t.Fatalf("expected ErrSessionReset, got %v", err)
	}
	if snap := s.Snapshot(); snap.Phase != quiz.PhaseIdle || snap.Total() != 0 {
		t.Fatalf("late result must be dropped, got %+v", snap)
	}
}

func TestSubmitAnswer_ScoresOnceAndRejectsResubmission(t *testing.T) {
	s, _, rec := startQuiz(t, 3)

	if err := s.SelectAnswer("A"); err != nil {
		t.Fatalf("select: %v", err)
	}
	r, err := s.SubmitAnswer()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !r.Correct || r.CorrectAnswer != "A" {
		t.Fatalf("unexpected reveal %+v", r)
	}
	snap := s.Snapshot()
	if snap.Score != 1 || !snap.AnswerRevealed {
		t.Fatalf("expected score 1 and revealed, got %+v", snap)
	}
	if n := rec.last(); n.Title != "Correct!" {
		t.Fatalf("unexpected notification %+v", n)
	}

	if err := s.SelectAnswer("B"); !errors.Is(err, quiz.ErrAnswerRevealed) {
		t.Fatalf("expected late selection rejected, got %v", err)
	}
	if _, err := s.SubmitAnswer(); !errors.Is(err, quiz.ErrAnswerRevealed) {
		t.Fatalf("expected resubmission rejected, got %v", err)
	}
	snap = s.Snapshot()
	if snap.Score != 1 || snap.Answers[0] != "A" {
		t.Fatalf("score or answer changed after reveal: %+v", snap)
	}
}

func TestSubmitAnswer_WrongAnswer(t *testing.T) {
	s, _, rec := startQuiz(t, 2)
	_ = s.SelectAnswer("C")
	r, err := s.SubmitAnswer()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.Correct || r.Selected != "C" {
		t.Fatalf("unexpected reveal %+v", r)
	}
	if s.Snapshot().Score != 0 {
		t.Fatalf("wrong answer must not score")
	}
	if n := rec.last(); n.Message != "The correct answer was: A" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestSubmitAnswer_RequiresSelection(t *testing.T) {
	s, _, _ := startQuiz(t, 1)
	if _, err := s.SubmitAnswer(); !errors.Is(err, quiz.ErrNoAnswerSelected) {
		t.Fatalf("expected ErrNoAnswerSelected, got %v", err)
	}
}

func TestSelectAnswer_OverwritesBeforeReveal(t *testing.T) {
	s, _, _ := startQuiz(t, 1)
	_ = s.SelectAnswer("B")
	_ = s.SelectAnswer("D")
	if got := s.Snapshot().Selected(); got != "D" {
		t.Fatalf("expected D, got %q", got)
	}
	if s.Snapshot().AnswerRevealed {
		t.Fatalf("selection must not reveal")
	}
}

func TestAdvance_RequiresReveal(t *testing.T) {
	s, _, _ := startQuiz(t, 2)
	_ = s.SelectAnswer("A")
	if err := s.Advance(); !errors.Is(err, quiz.ErrAnswerNotRevealed) {
		t.Fatalf("expected ErrAnswerNotRevealed, got %v", err)
	}
	if s.Snapshot().CurrentIndex != 0 {
		t.Fatalf("index must not move")
	}
}

func TestAdvance_ThroughToResults(t *testing.T) {
	s, _, _ := startQuiz(t, 3)
	picks := []string{"A", "B", "A"}
	for i, pick := range picks {
		if got := s.Snapshot().CurrentIndex; got != i {
			t.Fatalf("expected index %d, got %d", i, got)
		}
		if err := s.SelectAnswer(pick); err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
		if _, err := s.SubmitAnswer(); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		before := s.Snapshot().Score
		if err := s.Advance(); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
		if after := s.Snapshot().Score; after != before {
			t.Fatalf("advance changed score %d -> %d", before, after)
		}
	}

	snap := s.Snapshot()
	if snap.Phase != quiz.PhaseResults {
		t.Fatalf("expected results, got %s", snap.Phase)
	}
	if snap.Score != 2 {
		t.Fatalf("expected score 2, got %d", snap.Score)
	}
	if got := quiz.Score(snap.Questions, snap.Answers); got != snap.Score {
		t.Fatalf("recomputed score %d != incremental %d", got, snap.Score)
	}
	if snap.Passed() {
		t.Fatalf("2 of 3 is below the pass ratio")
	}
	if err := s.Advance(); !errors.Is(err, quiz.ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase after results, got %v", err)
	}
}

func TestScore_MatchesIncrementalForEveryPattern(t *testing.T) {
	const n = 4
	for mask := 0; mask < 1<<n; mask++ {
		s, _, _ := startQuiz(t, n)
		for i := 0; i < n; i++ {
			pick := "B"
			if mask&(1<<i) != 0 {
				pick = "A"
			}
			_ = s.SelectAnswer(pick)
			if _, err := s.SubmitAnswer(); err != nil {
				t.Fatalf("mask %b q%d: %v", mask, i, err)
			}
			_ = s.Advance()
		}
		snap := s.Snapshot()
		if len(snap.Answers) != len(snap.Questions) {
			t.Fatalf("mask %b: answers/questions length mismatch", mask)
		}
		if got := quiz.Score(snap.Questions, snap.Answers); got != snap.Score {
			t.Fatalf("mask %b: recomputed %d != incremental %d", mask, got, snap.Score)
		}
	}
}

func TestReset_FromEveryPhaseMatchesFreshSession(t *testing.T) {
	fresh := quiz.New(&fakeGenerator{}, quiz.WithLogger(log.New(io.Discard, "", 0))).Snapshot()

	cases := map[string]func(t *testing.T) *quiz.Session{
		"idle with file": func(t *testing.T) *quiz.Session {
			s, _ := newSession(t, &fakeGenerator{})
			_ = s.SelectFile(textFile("notes.txt"))
			_ = s.SetQuestionCount(9)
			return s
		},
		"error": func(t *testing.T) *quiz.Session {
			s, _ := newSession(t, &fakeGenerator{err: errors.New("down")})
			_ = s.SelectFile(textFile("notes.txt"))
			_ = s.RequestGeneration(context.Background())
			return s
		},
		"answering": func(t *testing.T) *quiz.Session {
			s, _, _ := startQuiz(t, 2)
			_ = s.SelectAnswer("A")
			_, _ = s.SubmitAnswer()
			return s
		},
		"results": func(t *testing.T) *quiz.Session {
			s, _, _ := startQuiz(t, 1)
			_ = s.SelectAnswer("A")
			_, _ = s.SubmitAnswer()
			_ = s.Advance()
			return s
		},
	}

	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			s := build(t)
			s.Reset()
			if got := s.Snapshot(); !reflect.DeepEqual(got, fresh) {
				t.Fatalf("reset state %+v differs from fresh %+v", got, fresh)
			}
		})
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	s, _, _ := startQuiz(t, 2)
	snap := s.Snapshot()
	snap.Answers[0] = "A"
	snap.Questions[0].CorrectAnswer = "Z"
	again := s.Snapshot()
	if again.Answers[0] != "" || again.Questions[0].CorrectAnswer != "A" {
		t.Fatalf("snapshot mutation leaked into session")
	}
}

func TestSession_LogsToInjectedSink(t *testing.T) {
	var buf bytes.Buffer
	s := quiz.New(&fakeGenerator{}, quiz.WithLogger(log.New(&buf, "", 0)))
	s.Reset()
	if !strings.Contains(buf.String(), "Quiz reset") {
		t.Fatalf("expected reset to be logged, got %q", buf.String())
	}
}
