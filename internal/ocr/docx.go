package ocr

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var (
	paragraphEnd = regexp.MustCompile(`</w:p>`)
	xmlTag       = regexp.MustCompile(`<[^>]+>`)
)

type DOCXEngine struct{}

func NewDOCXEngine() *DOCXEngine {
	return &DOCXEngine{}
}

func (e *DOCXEngine) Name() string { return "docx" }

func (e *DOCXEngine) Recognize(ctx context.Context, in Input) (*Result, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(in.Data), int64(len(in.Data)))
	if err != nil {
		return nil, fmt.Errorf("failed to read docx: %w", err)
	}
	defer doc.Close()

	// GetContent returns the raw document.xml body
	raw := doc.Editable().GetContent()
	raw = paragraphEnd.ReplaceAllString(raw, "\n")
	content := strings.TrimSpace(html.UnescapeString(xmlTag.ReplaceAllString(raw, "")))
	if content == "" {
		return nil, fmt.Errorf("no text content found in DOCX")
	}

	return &Result{Text: content, Confidence: 1, Engine: e.Name(), Pages: 1}, nil
}

func (e *DOCXEngine) SupportedTypes() []string {
	return []string{
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		".docx",
	}
}
