// Package extract validates uploaded documents and pulls their text content.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/documentevaluator/internal/models"
)

// Result is the text extracted from an accepted document.
type Result struct {
	Kind  Kind
	MIME  string
	Text  string
	Pages int
}

// Words returns the number of whitespace-delimited words in the text.
func (r *Result) Words() int {
	return len(strings.Fields(r.Text))
}

// Extractor turns PDF uploads into text. Any other kind is reported as
// models.ErrUnsupportedFormat.
type Extractor struct {
	logger *slog.Logger

	validate func(data []byte) (int, error)
	text     func(data []byte) (string, error)
}

// New creates an Extractor backed by pdfcpu validation and ledongthuc/pdf text extraction.
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		logger:   logger,
		validate: validatePDF,
		text:     plainText,
	}
}

// Extract sniffs data and extracts its text. The returned error wraps
// models.ErrUnsupportedFormat for rejected kinds and models.ErrExtractionFailed
// when an accepted document cannot be read.
func (e *Extractor) Extract(ctx context.Context, data []byte) (*Result, error) {
	doc := Sniff(data)

	switch doc.Kind {
	case KindPDF:
		return e.extractPDF(ctx, doc)
	case KindImage, KindText, KindOther, KindUnknown:
		return nil, fmt.Errorf("sniffed %s (%s): %w", doc.Kind, doc.MIME, models.ErrUnsupportedFormat)
	default:
		return nil, fmt.Errorf("unhandled kind %d: %w", doc.Kind, models.ErrUnsupportedFormat)
	}
}

func (e *Extractor) extractPDF(ctx context.Context, doc Document) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pageCount, err := guard(func() (int, error) { return e.validate(doc.Data) })
	if err != nil {
		return nil, fmt.Errorf("validate pdf: %v: %w", err, models.ErrExtractionFailed)
	}

	text, err := guard(func() (string, error) { return e.text(doc.Data) })
	if err != nil {
		return nil, fmt.Errorf("read pdf text: %v: %w", err, models.ErrExtractionFailed)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("pdf has no extractable text (%d pages): %w", pageCount, models.ErrExtractionFailed)
	}

	e.logger.Debug("Extracted text from PDF.", "pageCount", pageCount, "bytes", len(doc.Data), "chars", len(text))
	return &Result{Kind: doc.Kind, MIME: doc.MIME, Text: text, Pages: pageCount}, nil
}

// validatePDF parses and validates the document in relaxed mode and returns its page count.
// Documents protected by a user password fail here.
func validatePDF(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return 0, err
	}
	if err := api.ValidateContext(pctx); err != nil {
		return 0, err
	}
	return pctx.PageCount, nil
}

func plainText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	content, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, content); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// guard converts a panic inside a parser into an error.
func guard[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()
	return fn()
}
