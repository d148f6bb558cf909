package ocr

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/smurching/cloudnotes/internal/types"
)

// Registry dispatches to an engine by file extension first, then by declared
// content type, then by sniffing the bytes.
type Registry struct {
	engines map[string]Engine
}

func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine)}
	for _, e := range engines {
		r.Register(e)
	}
	return r
}

// NewDefaultRegistry registers the pure-Go engines. Image engines are added
// by the caller since they need native libraries.
func NewDefaultRegistry() *Registry {
	return NewRegistry(NewTextEngine(), NewPDFEngine(), NewDOCXEngine())
}

func (r *Registry) Register(engine Engine) {
	for _, t := range engine.SupportedTypes() {
		r.engines[strings.ToLower(t)] = engine
	}
}

func (r *Registry) Engine(in Input) (Engine, string, error) {
	if ext := strings.ToLower(filepath.Ext(in.Key)); ext != "" {
		if e, ok := r.engines[ext]; ok {
			return e, contentTypeFor(in, e), nil
		}
	}

	for _, ct := range []string{in.ContentType, http.DetectContentType(in.Data)} {
		mediaType := normalizeContentType(ct)
		if e, ok := r.engines[mediaType]; ok {
			return e, mediaType, nil
		}
	}

	return nil, "", fmt.Errorf("%w: unsupported file type for %s", types.ErrRecognition, in.Key)
}

func (r *Registry) Recognize(ctx context.Context, in Input) (*Result, error) {
	engine, contentType, err := r.Engine(in)
	if err != nil {
		return nil, err
	}

	in.ContentType = contentType
	res, err := engine.Recognize(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrRecognition, engine.Name(), err)
	}
	if res.Engine == "" {
		res.Engine = engine.Name()
	}
	return res, nil
}

func (r *Registry) SupportedTypes() []string {
	out := make([]string, 0, len(r.engines))
	for t := range r.engines {
		out = append(out, t)
	}
	return out
}

func contentTypeFor(in Input, e Engine) string {
	if ct := normalizeContentType(in.ContentType); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if ct := mime.TypeByExtension(filepath.Ext(in.Key)); ct != "" {
		return normalizeContentType(ct)
	}
	return normalizeContentType(http.DetectContentType(in.Data))
}

func normalizeContentType(ct string) string {
	if ct == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mediaType
}
