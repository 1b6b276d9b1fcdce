package quiz

import (
	"context"
	"io"
	"mime"
	"strings"

	"github.com/korjavin/studyquizbot/models"
)

// Accepted document media types.
const (
	MediaTypeText = "text/plain"
	MediaTypePDF  = "application/pdf"
	MediaTypeDoc  = "application/msword"
	MediaTypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// AcceptedMediaTypes lists the only media types SelectFile accepts.
var AcceptedMediaTypes = []string{MediaTypeText, MediaTypePDF, MediaTypeDoc, MediaTypeDocx}

// IsAcceptedMediaType reports whether the declared media type may be uploaded.
// Parameters such as charset are ignored.
func IsAcceptedMediaType(mediaType string) bool {
	base, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(mediaType))
	}
	for _, t := range AcceptedMediaTypes {
		if base == t {
			return true
		}
	}
	return false
}

// File is a document picked for upload. Open is called only when the
// generation request is built.
type File struct {
	Name      string
	MediaType string
	Size      int64
	Open      func() (io.ReadCloser, error)
}

// Generator turns a document into quiz questions.
type Generator interface {
	Generate(ctx context.Context, file File, count int) ([]models.Question, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, file File, count int) ([]models.Question, error)

func (f GeneratorFunc) Generate(ctx context.Context, file File, count int) ([]models.Question, error) {
	return f(ctx, file, count)
}
