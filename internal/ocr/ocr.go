package ocr

import "context"

// Input is one stored object handed to a recognizer.
type Input struct {
	Key         string
	Data        []byte
	ContentType string
}

type Result struct {
	Text       string
	Confidence float64
	Engine     string
	Pages      int
}

// Recognizer turns document bytes into text. Implementations must honour ctx
// cancellation and be safe for concurrent use.
type Recognizer interface {
	Recognize(ctx context.Context, in Input) (*Result, error)
}

// RecognizerFunc adapts a function to the Recognizer interface.
type RecognizerFunc func(ctx context.Context, in Input) (*Result, error)

func (f RecognizerFunc) Recognize(ctx context.Context, in Input) (*Result, error) {
	return f(ctx, in)
}

// Engine is a Recognizer for a fixed set of content types and extensions.
type Engine interface {
	Recognizer
	Name() string
	SupportedTypes() []string
}
