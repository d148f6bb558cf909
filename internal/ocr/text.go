package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

type TextEngine struct{}

func NewTextEngine() *TextEngine {
	return &TextEngine{}
}

func (e *TextEngine) Name() string { return "text" }

func (e *TextEngine) Recognize(ctx context.Context, in Input) (*Result, error) {
	if !utf8.Valid(in.Data) {
		return nil, fmt.Errorf("text file is not valid UTF-8")
	}

	content := string(in.Data)
	if in.ContentType == "application/json" || strings.HasSuffix(strings.ToLower(in.Key), ".json") {
		var data any
		if err := json.Unmarshal(in.Data, &data); err != nil {
			return nil, fmt.Errorf("invalid JSON format: %w", err)
		}
		var b strings.Builder
		collectStrings(data, &b)
		content = b.String()
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("no text content found")
	}

	return &Result{Text: content, Confidence: 1, Engine: e.Name(), Pages: 1}, nil
}

func (e *TextEngine) SupportedTypes() []string {
	return []string{"text/plain", "text/markdown", "application/json", ".txt", ".md", ".json"}
}

func collectStrings(data any, b *strings.Builder) {
	switch v := data.(type) {
	case string:
		b.WriteString(v)
		b.WriteString(" ")
	case map[string]any:
		for _, value := range v {
			collectStrings(value, b)
		}
	case []any:
		for _, item := range v {
			collectStrings(item, b)
		}
	}
}
