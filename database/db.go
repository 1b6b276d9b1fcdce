package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/korjavin/studyquizbot/models"
	_ "github.com/mattn/go-sqlite3"
)

// DB handles all database operations
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes tables
func New(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// each connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err = createTables(db); err != nil {
		return nil, err
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// createTables creates the necessary tables if they don't exist
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS quiz_cache (
			document_hash TEXT NOT NULL,
			num_questions INTEGER NOT NULL,
			quiz_id TEXT NOT NULL,
			questions_json TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (document_hash, num_questions)
		)
	`)
	return err
}

// CacheQuiz stores a generated quiz
func (db *DB) CacheQuiz(ctx context.Context, documentHash string, numQuestions int, quizID string, questions []models.Question) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO quiz_cache (document_hash, num_questions, quiz_id, questions_json, created_at) VALUES (?, ?, ?, ?, ?)",
		documentHash, numQuestions, quizID, string(data), time.Now().Unix(),
	)
	return err
}

// GetCachedQuiz retrieves a cached quiz, or nil when there is none
func (db *DB) GetCachedQuiz(ctx context.Context, documentHash string, numQuestions int) (*models.CachedQuiz, error) {
	var (
		quizID, data string
		createdAt    int64
	)
	err := db.conn.QueryRowContext(ctx,
		"SELECT quiz_id, questions_json, created_at FROM quiz_cache WHERE document_hash = ? AND num_questions = ?",
		documentHash, numQuestions,
	).Scan(&quizID, &data, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil // No cached quiz
	}
	if err != nil {
		return nil, err
	}

	var questions []models.Question
	if err := json.Unmarshal([]byte(data), &questions); err != nil {
		return nil, fmt.Errorf("decode cached questions: %w", err)
	}
	return &models.CachedQuiz{
		DocumentHash: documentHash,
		NumQuestions: numQuestions,
		QuizID:       quizID,
		Questions:    questions,
		CreatedAt:    createdAt,
	}, nil
}

// PurgeOlderThan removes cache entries created before the cutoff
func (db *DB) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM quiz_cache WHERE created_at < ?", cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
