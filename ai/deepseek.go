package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/korjavin/studyquizbot/models"
)

const (
	DefaultAPIURL = "https://api.deepseek.com/v1/chat/completions"
	DefaultModel  = "deepseek-chat"

	apiTimeoutSec = 60
	temperature   = 0.1
	maxLoggedBody = 300
)

// DeepseekClient manages interactions with Deepseek API
type DeepseekClient struct {
	apiKey     string
	apiURL     string
	model      string
	httpClient *http.Client
	logger     *log.Logger
}

// Option configures a DeepseekClient
type Option func(*DeepseekClient)

// WithAPIURL overrides the chat completions URL
func WithAPIURL(url string) Option {
	return func(c *DeepseekClient) {
		if url != "" {
			c.apiURL = url
		}
	}
}

// WithModel overrides the model name
func WithModel(model string) Option {
	return func(c *DeepseekClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithLogger sets the client's logger
func WithLogger(l *log.Logger) Option {
	return func(c *DeepseekClient) { c.logger = l }
}

// NewDeepseekClient creates a new Deepseek API client
func NewDeepseekClient(apiKey string, opts ...Option) *DeepseekClient {
	c := &DeepseekClient{
		apiKey:     apiKey,
		apiURL:     DefaultAPIURL,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: apiTimeoutSec * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.New(os.Stderr, "ai: ", log.LstdFlags)
	}
	return c
}

type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type deepseekRequest struct {
	Model       string            `json:"model"`
	Messages    []deepseekMessage `json:"messages"`
	Temperature float64           `json:"temperature"`
}

type deepseekResponseChoice struct {
	Message deepseekMessage `json:"message"`
}

type deepseekResponse struct {
	Choices []deepseekResponseChoice `json:"choices"`
	ID      string                   `json:"id,omitempty"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const systemPrompt = "You are a quiz generator that creates multiple choice questions. Always respond with valid JSON arrays."

func quizPrompt(text string, n int) string {
	return fmt.Sprintf(`Create %d multiple choice questions based on this study material. Format your response as a JSON array.

Example format:
[
    {
        "question": "What is X?",
        "options": ["A", "B", "C", "D"],
        "correct_answer": "A"
    }
]

Rules:
1. Response must be a valid JSON array
2. Each question must have exactly 4 options
3. The correct_answer must exactly match one of the options
4. No explanations or additional text, only the JSON array

Study material:
%s`, n, text)
}

// GenerateQuestions asks Deepseek for n questions about text
func (c *DeepseekClient) GenerateQuestions(ctx context.Context, text string, n int) ([]models.Question, error) {
	startTime := time.Now()
	c.logger.Printf("Requesting %d questions from Deepseek for %d characters of text", n, len(text))

	reqJSON, err := json.Marshal(deepseekRequest{
		Model: c.model,
		Messages: []deepseekMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: quizPrompt(text, n)},
		},
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, apiTimeoutSec*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	reqDuration := time.Since(startTime)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			c.logger.Printf("Deepseek API request timed out after %v", reqDuration)
			return nil, fmt.Errorf("API request timed out: %w", err)
		}
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Printf("Received response from Deepseek API in %v with status code: %d", reqDuration, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (Status %d): %s", resp.StatusCode, truncate(string(body), maxLoggedBody))
	}

	var dr deepseekResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, fmt.Errorf("parse API response: %w", err)
	}
	if dr.Error != nil {
		return nil, fmt.Errorf("API error: %s", dr.Error.Message)
	}
	if len(dr.Choices) == 0 {
		return nil, fmt.Errorf("no choices in API response")
	}

	content := dr.Choices[0].Message.Content
	c.logger.Printf("Deepseek content (truncated): %s", truncate(content, maxLoggedBody))

	questions, err := ParseQuestions(content)
	if err != nil {
		return nil, err
	}
	c.logger.Printf("Generated %d questions in %v", len(questions), time.Since(startTime))
	return questions, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
