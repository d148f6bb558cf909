package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// minOCRWidth is the width small scans are upscaled to; Tesseract accuracy
// drops sharply below roughly 20px glyph height.
const minOCRWidth = 1200

// maxOCRWidth bounds memory for very large photos.
const maxOCRWidth = 4000

// ImageTypes are the raster formats PrepareImage can decode.
var ImageTypes = []string{
	"image/png", "image/jpeg", "image/gif", "image/bmp", "image/tiff", "image/webp",
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp",
}

// PrepareImage decodes a scan, applies EXIF orientation, converts it to
// grayscale with a contrast boost and rescales it into the range the
// recognizer handles well. The result is PNG encoded.
func PrepareImage(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	var out image.Image = imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 20)

	switch width := out.Bounds().Dx(); {
	case width < minOCRWidth:
		out = imaging.Resize(out, minOCRWidth, 0, imaging.Lanczos)
	case width > maxOCRWidth:
		out = imaging.Resize(out, maxOCRWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("png encode failed: %w", err)
	}
	return buf.Bytes(), nil
}
