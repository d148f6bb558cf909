package ocr

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFEngine reads the embedded text layer. Scanned PDFs without one yield an
// error so the job is retried and eventually marked failed.
type PDFEngine struct{}

func NewPDFEngine() *PDFEngine {
	return &PDFEngine{}
}

func (e *PDFEngine) Name() string { return "pdf-text" }

func (e *PDFEngine) Recognize(ctx context.Context, in Input) (*Result, error) {
	if !bytes.HasPrefix(in.Data, []byte("%PDF")) {
		return nil, fmt.Errorf("not a PDF file: invalid header")
	}

	reader, err := pdf.NewReader(bytes.NewReader(in.Data), int64(len(in.Data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pdf: %w", err)
	}

	var b strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", i, err)
		}
		b.WriteString(strings.TrimSpace(text))
		b.WriteString("\n")
	}

	content := strings.TrimSpace(b.String())
	if content == "" {
		return nil, fmt.Errorf("no text layer found in PDF")
	}

	return &Result{Text: content, Confidence: 1, Engine: e.Name(), Pages: numPages}, nil
}

func (e *PDFEngine) SupportedTypes() []string {
	return []string{"application/pdf", ".pdf"}
}
