package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/korjavin/studyquizbot/models"
	"github.com/korjavin/studyquizbot/quiz"
)

const (
	generatePath = "/generate-quiz"
	healthPath   = "/health"

	requestTimeout = 120 * time.Second
	maxErrorBody   = 1 << 20
)

// Client sends documents to the quiz generation service
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client's logger
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the service rooted at baseURL, e.g. http://localhost:8000/api
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.New(os.Stderr, "apiclient: ", log.LstdFlags)
	}
	return c
}

// Endpoint returns the generate-quiz URL
func (c *Client) Endpoint() string {
	return c.baseURL + generatePath
}

// Generate uploads the file and returns the generated questions.
// Local failures wrap quiz.ErrUnexpectedClient; service failures are *quiz.GenerationError.
func (c *Client) Generate(ctx context.Context, file quiz.File, count int) ([]models.Question, error) {
	body, contentType, err := buildForm(file, count)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", quiz.ErrUnexpectedClient, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", quiz.ErrUnexpectedClient, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	c.logger.Printf("Sending file %q (%s) to %s for %d questions", file.Name, file.MediaType, c.Endpoint(), count)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Printf("Generation request failed after %v: %v", time.Since(start), err)
		return nil, &quiz.GenerationError{Err: err}
	}
	defer resp.Body.Close()

	c.logger.Printf("Generation service answered %d in %v", resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		detail := parseDetail(raw)
		c.logger.Printf("API error: status=%d detail=%q", resp.StatusCode, detail)
		return nil, &quiz.GenerationError{Status: resp.StatusCode, Detail: detail}
	}

	var out models.QuizResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &quiz.GenerationError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	c.logger.Printf("Quiz %s generated with %d questions", out.QuizID, len(out.Questions))
	return out.Questions, nil
}

// Health checks the service's health endpoint
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: status %d", resp.StatusCode)
	}
	return nil
}

func buildForm(file quiz.File, count int) (io.Reader, string, error) {
	if file.Open == nil {
		return nil, "", fmt.Errorf("file %q has no content", file.Name)
	}
	rc, err := file.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open %q: %w", file.Name, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	h.Set("Content-Type", file.MediaType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, rc); err != nil {
		return nil, "", fmt.Errorf("read %q: %w", file.Name, err)
	}
	if err := w.WriteField("num_questions", strconv.Itoa(count)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// parseDetail extracts a string "detail" field. Validation errors carry a
// list instead, which is treated as no detail.
func parseDetail(raw []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err != nil {
		return ""
	}
	return strings.TrimSpace(detail)
}
