package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/korjavin/studyquizbot/extract"
	"github.com/korjavin/studyquizbot/models"
	"github.com/korjavin/studyquizbot/quiz"
)

const (
	maxUploadBytes = 10 << 20
	requestTimeout = 120 * time.Second
)

// QuestionGenerator produces questions from document text
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, text string, n int) ([]models.Question, error)
}

// Cache stores generated quizzes by document hash and question count
type Cache interface {
	GetCachedQuiz(ctx context.Context, documentHash string, numQuestions int) (*models.CachedQuiz, error)
	CacheQuiz(ctx context.Context, documentHash string, numQuestions int, quizID string, questions []models.Question) error
}

type Server struct {
	gen      QuestionGenerator
	cache    Cache
	logger   *log.Logger
	validate *validator.Validate
	newID    func() string
}

type Option func(*Server)

// WithCache enables caching of generated quizzes
func WithCache(c Cache) Option {
	return func(s *Server) { s.cache = c }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func New(gen QuestionGenerator, opts ...Option) *Server {
	s := &Server{
		gen:      gen,
		validate: validator.New(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(os.Stderr, "server: ", log.LstdFlags)
	}
	return s
}

// Routes mounts the API under /api
func (s *Server) Routes(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(ar chi.Router) {
		ar.Post("/generate-quiz", s.handleGenerateQuiz)
		ar.Get("/health", s.handleHealth)
	})
	return r
}

type generateForm struct {
	NumQuestions int `validate:"min=1,max=20"`
}

func (s *Server) handleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	form := generateForm{NumQuestions: quiz.DefaultQuestions}
	if v := r.FormValue("num_questions"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "num_questions must be an integer")
			return
		}
		form.NumQuestions = n
	}
	if err := s.validate.Struct(form); err != nil {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("num_questions must be between %d and %d", quiz.MinQuestions, quiz.MaxQuestions))
		return
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.logger.Printf("Error reading file: %v", err)
		writeError(w, http.StatusBadRequest, "Error reading file content")
		return
	}

	contentType := hdr.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}
	s.logger.Printf("Received file: %s, content_type: %s, size: %d", hdr.Filename, contentType, len(data))

	if !quiz.IsAcceptedMediaType(contentType) {
		writeError(w, http.StatusBadRequest, "Unsupported file type: "+contentType)
		return
	}

	text, err := extract.Text(contentType, data)
	if err != nil {
		var ee *extract.Error
		switch {
		case errors.Is(err, extract.ErrEmpty):
			writeError(w, http.StatusBadRequest, "Extracted text content is empty")
		case errors.As(err, &ee):
			s.logger.Printf("Extraction failed: %v", err)
			writeError(w, http.StatusBadRequest, ee.Message)
		default:
			s.logger.Printf("Extraction failed: %v", err)
			writeError(w, http.StatusBadRequest, "Error reading file content")
		}
		return
	}
	s.logger.Printf("Successfully extracted text content, length: %d characters", len(text))

	sum := sha256.Sum256([]byte(text))
	hash := hex.EncodeToString(sum[:])

	if cached := s.lookup(r.Context(), hash, form.NumQuestions); cached != nil {
		writeJSON(w, http.StatusOK, models.QuizResponse{QuizID: cached.QuizID, Questions: cached.Questions})
		return
	}

	questions, err := s.gen.GenerateQuestions(r.Context(), text, form.NumQuestions)
	if err != nil {
		s.logger.Printf("Error generating quiz: %v", err)
		writeError(w, http.StatusInternalServerError, "Error generating quiz: "+err.Error())
		return
	}

	quizID := s.newID()
	if s.cache != nil {
		if err := s.cache.CacheQuiz(r.Context(), hash, form.NumQuestions, quizID, questions); err != nil {
			s.logger.Printf("Error caching quiz %s: %v", quizID, err)
		}
	}
	writeJSON(w, http.StatusOK, models.QuizResponse{QuizID: quizID, Questions: questions})
}

func (s *Server) lookup(ctx context.Context, hash string, n int) *models.CachedQuiz {
	if s.cache == nil {
		return nil
	}
	cached, err := s.cache.GetCachedQuiz(ctx, hash, n)
	if err != nil {
		s.logger.Printf("Error retrieving cached quiz: %v", err)
		return nil
	}
	if cached != nil {
		s.logger.Printf("Serving cached quiz %s", cached.QuizID)
	}
	return cached
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.logger.Printf("Health check endpoint called")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, models.ErrorResponse{Detail: detail})
}
