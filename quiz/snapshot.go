package quiz

import "github.com/korjavin/studyquizbot/models"

// PassRatio is the score ratio at which a finished quiz counts as passed.
const PassRatio = 0.7

// Snapshot is a read-only view of a Session.
type Snapshot struct {
	Phase          Phase
	HasFile        bool
	FileName       string
	QuestionCount  int
	Questions      []models.Question
	Answers        []string
	CurrentIndex   int
	AnswerRevealed bool
	Score          int
	LastError      string
	// Notice is the last transient error, cleared when a file is accepted.
	Notice string
}

func (s Snapshot) Total() int { return len(s.Questions) }

// Current returns the question at CurrentIndex.
func (s Snapshot) Current() (models.Question, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return models.Question{}, false
	}
	return s.Questions[s.CurrentIndex], true
}

// Selected returns the answer chosen for the current question, if any.
func (s Snapshot) Selected() string {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Answers) {
		return ""
	}
	return s.Answers[s.CurrentIndex]
}

func (s Snapshot) IsLast() bool { return s.CurrentIndex == len(s.Questions)-1 }

// Passed reports whether the score reaches PassRatio. An empty quiz never passes.
func (s Snapshot) Passed() bool {
	if len(s.Questions) == 0 {
		return false
	}
	return float64(s.Score)/float64(len(s.Questions)) >= PassRatio
}

// Score counts the answers that equal their question's correct answer.
func Score(questions []models.Question, answers []string) int {
	score := 0
	for i, q := range questions {
		if i < len(answers) && answers[i] != "" && answers[i] == q.CorrectAnswer {
			score++
		}
	}
	return score
}
