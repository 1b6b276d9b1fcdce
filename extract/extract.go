package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	mediaTypePDF  = "application/pdf"
	mediaTypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var ErrEmpty = errors.New("extracted text content is empty")

// Error is an extraction failure with a message safe to show to users
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Text extracts the plain text of a document of the given media type
func Text(mediaType string, data []byte) (string, error) {
	base, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		base = strings.ToLower(mediaType)
	}

	var text string
	switch base {
	case mediaTypePDF:
		text, err = pdfText(data)
	case mediaTypeDocx:
		text, err = docxText(data)
	default:
		text, err = plainText(data)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		log.Printf("Error opening PDF: %v", err)
		return "", &Error{Message: "Could not extract text from PDF file", Err: err}
	}
	plain, err := r.GetPlainText()
	if err != nil {
		log.Printf("Error extracting text from PDF: %v", err)
		return "", &Error{Message: "Could not extract text from PDF file", Err: err}
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", &Error{Message: "Could not extract text from PDF file", Err: err}
	}
	log.Printf("Extracted %d bytes of text from PDF with %d pages", buf.Len(), r.NumPage())
	return buf.String(), nil
}

// docxText collects the text runs of word/document.xml, one line per paragraph
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &Error{Message: "Could not read Word document", Err: err}
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", &Error{Message: "Could not read Word document", Err: errors.New("word/document.xml not found")}
	}

	rc, err := doc.Open()
	if err != nil {
		return "", &Error{Message: "Could not read Word document", Err: err}
	}
	defer rc.Close()

	var sb strings.Builder
	dec := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", &Error{Message: "Could not read Word document", Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

func plainText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return strings.TrimPrefix(string(data), "\ufeff"), nil
	}

	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil {
		return "", &Error{Message: "Could not decode file content (detected encoding: unknown)", Err: err}
	}
	log.Printf("Detected file encoding: %s (confidence %d)", result.Charset, result.Confidence)

	enc, err := htmlindex.Get(result.Charset)
	if err != nil {
		return "", &Error{Message: undecodable(result.Charset), Err: err}
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", &Error{Message: undecodable(result.Charset), Err: err}
	}
	return string(decoded), nil
}

func undecodable(charset string) string {
	return fmt.Sprintf("Could not decode file content (detected encoding: %s). "+
		"Please ensure the file is properly encoded text or PDF.", charset)
}
