package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/smurching/cloudnotes/internal/ocr"
)

// Engine recognizes raster scans with Tesseract. A fresh client is used per
// call since gosseract clients are not safe for concurrent use.
type Engine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

func NewEngine(languages ...string) *Engine {
	return &Engine{
		languages:     languages,
		clientFactory: gosseract.NewClient,
	}
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) SupportedTypes() []string {
	return ocr.ImageTypes
}

func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (*ocr.Result, error) {
	prepared, err := ocr.PrepareImage(in.Data)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type outcome struct {
		text       string
		confidence float64
		err        error
	}
	done := make(chan outcome, 1)

	// Tesseract cannot be interrupted. The goroutine owns the client, so on
	// cancellation the call finishes in the background and is discarded.
	go func() {
		c := e.clientFactory()
		defer c.Close()

		if len(e.languages) > 0 {
			if err := c.SetLanguage(e.languages...); err != nil {
				done <- outcome{err: fmt.Errorf("set languages: %w", err)}
				return
			}
		}
		if err := c.SetImageFromBytes(prepared); err != nil {
			done <- outcome{err: fmt.Errorf("set image: %w", err)}
			return
		}

		text, err := c.Text()
		if err != nil {
			done <- outcome{err: fmt.Errorf("recognize text: %w", err)}
			return
		}
		done <- outcome{text: strings.TrimSpace(text), confidence: confidence(c)}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if o.err != nil {
		return nil, o.err
	}
	if o.text == "" {
		return nil, fmt.Errorf("no text recognized")
	}

	return &ocr.Result{
		Text:       o.text,
		Confidence: o.confidence,
		Engine:     e.Name(),
		Pages:      1,
	}, nil
}

func confidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}
