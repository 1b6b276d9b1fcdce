package models

// Question is a single multiple-choice question produced by the quiz generator
type Question struct {
	Question      string   `json:"question" validate:"required"`
	Options       []string `json:"options" validate:"min=2,dive,required"`
	CorrectAnswer string   `json:"correct_answer" validate:"required"`
}

// HasOption reports whether text equals one of the question's options
func (q Question) HasOption(text string) bool {
	for _, o := range q.Options {
		if o == text {
			return true
		}
	}
	return false
}

// QuizResponse is the success payload of the generate-quiz endpoint
type QuizResponse struct {
	QuizID    string     `json:"quiz_id,omitempty"`
	Questions []Question `json:"questions"`
}

// ErrorResponse is the failure payload of the generate-quiz endpoint
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// CachedQuiz stores a generated quiz keyed by document hash and question count
type CachedQuiz struct {
	DocumentHash string
	NumQuestions int
	QuizID       string
	Questions    []Question
	CreatedAt    int64
}
