package ocr

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/smurching/cloudnotes/internal/types"
)

func TestRegistryDispatch(t *testing.T) {
	r := NewDefaultRegistry()

	cases := []struct {
		name   string
		in     Input
		engine string
	}{
		{"extension", Input{Key: "u1/notes.txt", Data: []byte("hello")}, "text"},
		{"declared type", Input{Key: "u1/blob", ContentType: "application/pdf; charset=binary", Data: []byte("%PDF-1.4")}, "pdf-text"},
		{"sniffed", Input{Key: "u1/blob", Data: []byte("%PDF-1.7 ...")}, "pdf-text"},
		{"docx extension", Input{Key: "u1/report.DOCX", Data: []byte("PK")}, "docx"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, _, err := r.Engine(tc.in)
			if err != nil {
				t.Fatalf("Engine() error = %v", err)
			}
			if engine.Name() != tc.engine {
				t.Fatalf("expected %s, got %s", tc.engine, engine.Name())
			}
		})
	}
}

func TestRegistryUnsupported(t *testing.T) {
	r := NewDefaultRegistry()

	_, err := r.Recognize(context.Background(), Input{Key: "u1/archive.zip", Data: []byte{0x50, 0x4b, 0x03, 0x04}})
	if !errors.Is(err, types.ErrRecognition) {
		t.Fatalf("expected ErrRecognition, got %v", err)
	}
}

func TestRegistryWrapsEngineErrors(t *testing.T) {
	r := NewDefaultRegistry()

	_, err := r.Recognize(context.Background(), Input{Key: "u1/empty.txt", Data: []byte("   ")})
	if !errors.Is(err, types.ErrRecognition) {
		t.Fatalf("expected ErrRecognition for empty text, got %v", err)
	}

	_, err = r.Recognize(context.Background(), Input{Key: "u1/fake.pdf", Data: []byte("not a pdf")})
	if !errors.Is(err, types.ErrRecognition) {
		t.Fatalf("expected ErrRecognition for bad pdf, got %v", err)
	}
}

func TestTextEngine(t *testing.T) {
	r := NewDefaultRegistry()

	res, err := r.Recognize(context.Background(), Input{Key: "u1/a.txt", Data: []byte("  first line\nsecond  ")})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if res.Text != "first line\nsecond" || res.Engine != "text" || res.Pages != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = r.Recognize(context.Background(), Input{Key: "u1/a.json", Data: []byte(`{"title":"Lecture","tags":["ocr"]}`)})
	if err != nil {
		t.Fatalf("Recognize() json error = %v", err)
	}
	if !strings.Contains(res.Text, "Lecture") || !strings.Contains(res.Text, "ocr") {
		t.Fatalf("expected json strings in text, got %q", res.Text)
	}
}

func TestDOCXEngine(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml":          `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"/>`,
		"word/document.xml": `<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			`<w:p><w:r><w:t>Cells &amp; tissues</w:t></w:r></w:p>` +
			`<w:p><w:r><w:t>Chapter two</w:t></w:r></w:p>` +
			`</w:body></w:document>`,
	}
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		w.Write([]byte(content))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	res, err := NewDOCXEngine().Recognize(context.Background(), Input{Key: "u1/a.docx", Data: buf.Bytes()})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if !strings.Contains(res.Text, "Cells & tissues") || !strings.Contains(res.Text, "Chapter two") {
		t.Fatalf("unexpected text: %q", res.Text)
	}
}

func TestPrepareImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 40))
	for x := 0; x < 100; x++ {
		img.Set(x, 20, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, err := PrepareImage(buf.Bytes())
	if err != nil {
		t.Fatalf("PrepareImage() error = %v", err)
	}

	decoded, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode prepared: %v", err)
	}
	if w := decoded.Bounds().Dx(); w != minOCRWidth {
		t.Fatalf("expected width %d, got %d", minOCRWidth, w)
	}
	if h := decoded.Bounds().Dy(); h != 480 {
		t.Fatalf("expected proportional height 480, got %d", h)
	}

	r, g, b, _ := decoded.At(600, 240).RGBA()
	if r != g || g != b {
		t.Fatalf("expected grayscale pixel, got %d %d %d", r, g, b)
	}

	if _, err := PrepareImage([]byte("not an image")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestRecognizerFunc(t *testing.T) {
	var called bool
	rec := RecognizerFunc(func(ctx context.Context, in Input) (*Result, error) {
		called = true
		return &Result{Text: in.Key}, nil
	})

	res, err := rec.Recognize(context.Background(), Input{Key: "k"})
	if err != nil || !called || res.Text != "k" {
		t.Fatalf("unexpected: %+v %v", res, err)
	}
}
