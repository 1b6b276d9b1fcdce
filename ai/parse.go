package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/korjavin/studyquizbot/models"
)

var validate = validator.New()

// ParseQuestions turns a model reply into validated questions. The reply may be
// wrapped in a code fence or surrounded by prose.
func ParseQuestions(content string) ([]models.Question, error) {
	content = cleanJSONContent(content)

	if !strings.HasPrefix(content, "[") {
		start, end := strings.Index(content, "["), strings.LastIndex(content, "]")
		if start == -1 || end <= start {
			return nil, errors.New("could not find JSON array in response")
		}
		content = content[start : end+1]
	}

	var questions []models.Question
	if err := json.Unmarshal([]byte(content), &questions); err != nil {
		// raw newlines inside strings are a common model mistake
		collapsed := strings.Join(strings.Fields(strings.ReplaceAll(content, "\r", "")), " ")
		if err2 := json.Unmarshal([]byte(collapsed), &questions); err2 != nil {
			return nil, fmt.Errorf("failed to parse API response: %w", err)
		}
	}

	for i, q := range questions {
		if err := validate.Struct(q); err != nil {
			return nil, fmt.Errorf("question %d is invalid: %w", i+1, err)
		}
		if !q.HasOption(q.CorrectAnswer) {
			return nil, fmt.Errorf("correct answer '%s' not in options", q.CorrectAnswer)
		}
	}
	return questions, nil
}

func cleanJSONContent(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
