package quiz

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFileType is returned by SelectFile for media types outside AcceptedMediaTypes.
	ErrInvalidFileType = errors.New("invalid file type")
	// ErrNoFileSelected is returned by RequestGeneration when no file has been accepted.
	ErrNoFileSelected = errors.New("no file selected")
	// ErrUnexpectedClient marks local failures while building the generation request.
	// Generators wrap it so the session keeps the user interactive instead of entering PhaseError.
	ErrUnexpectedClient = errors.New("unexpected client error")

	ErrInvalidPhase            = errors.New("operation not valid in current phase")
	ErrAnswerRevealed          = errors.New("answer already revealed")
	ErrNoAnswerSelected        = errors.New("no answer selected")
	ErrQuestionCountOutOfRange = fmt.Errorf("question count must be between %d and %d", MinQuestions, MaxQuestions)
	ErrGenerationInProgress    = errors.New("quiz generation already in progress")
)

// DefaultGenerationError is shown when the generation service gives no detail.
const DefaultGenerationError = "Error generating quiz"

// GenerationError is a failure reported by the generation service.
// Status is zero when no response was received.
type GenerationError struct {
	Status int
	Detail string
	Err    error
}

func (e *GenerationError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = DefaultGenerationError
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Err }

// userMessage picks the text recorded as LastError for a failed generation.
func userMessage(err error) string {
	var ge *GenerationError
	if errors.As(err, &ge) && ge.Detail != "" {
		return ge.Detail
	}
	return DefaultGenerationError
}

var (
	ErrAnswerNotRevealed = errors.New("answer must be submitted before advancing")
	ErrSessionReset      = errors.New("session was reset while generation was in flight")
)
