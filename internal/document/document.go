// Package document turns an uploaded answer sheet into a single RGB bitmap.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/pavelanni/companion/internal/model"
)

// Kind is the broad class of an uploaded document.
type Kind string

const (
	KindUnknown Kind = "unknown"
	KindImage   Kind = "image"
	KindPDF     Kind = "pdf"
)

var (
	// ErrNoRenderablePage is returned for a PDF with zero pages.
	ErrNoRenderablePage = errors.New("document has no renderable page")
	// ErrUnsupportedKind is returned when the upload is neither an image nor a PDF.
	ErrUnsupportedKind = errors.New("unsupported document type")
	// ErrEmpty is returned for an upload with no bytes or an image with no pixels.
	ErrEmpty = errors.New("document is empty")
)

// DecodeError reports that an upload could not be turned into a bitmap.
// It is fatal for the current request; the user has to upload again.
type DecodeError struct {
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PageRenderer rasterizes the first page of a PDF.
type PageRenderer interface {
	// RenderFirstPage returns page index 0 at the page's intrinsic scale.
	// It returns ErrNoRenderablePage when the document has no pages.
	RenderFirstPage(data []byte) (image.Image, error)
}

// Normalizer converts uploads into bitmaps.
type Normalizer struct {
	pdf PageRenderer
}

// NewNormalizer creates a Normalizer that renders PDFs with r.
func NewNormalizer(r PageRenderer) *Normalizer {
	return &Normalizer{pdf: r}
}

// Normalize produces exactly one RGB frame for the document. Only the first
// page of a PDF is considered; additional pages are ignored.
func (n *Normalizer) Normalize(ctx context.Context, doc model.UploadedDocument) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(doc.Data) == 0 {
		return nil, &DecodeError{Kind: KindUnknown, Err: ErrEmpty}
	}

	kind := DetectKind(doc.ContentType, doc.Data)

	var (
		img image.Image
		err error
	)
	switch kind {
	case KindImage:
		img, _, err = image.Decode(bytes.NewReader(doc.Data))
	case KindPDF:
		if n.pdf == nil {
			return nil, &DecodeError{Kind: kind, Err: errors.New("no PDF renderer configured")}
		}
		img, err = n.pdf.RenderFirstPage(doc.Data)
	default:
		return nil, &DecodeError{Kind: kind, Err: fmt.Errorf("%w: %q", ErrUnsupportedKind, doc.ContentType)}
	}
	if err != nil {
		return nil, &DecodeError{Kind: kind, Err: err}
	}

	out := toRGB(img)
	if out.Bounds().Empty() {
		return nil, &DecodeError{Kind: kind, Err: ErrEmpty}
	}

	slog.Debug("normalized document",
		"name", doc.Name,
		"kind", kind,
		"width", out.Bounds().Dx(),
		"height", out.Bounds().Dy(),
	)
	return out, nil
}

// DetectKind classifies an upload from its declared MIME type, falling back
// to the leading bytes when the browser sent no useful type.
func DetectKind(contentType string, data []byte) Kind {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = mt
	}

	switch {
	case mediaType == "application/pdf":
		return KindPDF
	case strings.HasPrefix(mediaType, "image/"):
		return KindImage
	case mediaType == "" || mediaType == "application/octet-stream":
		return sniffKind(data)
	}
	return KindUnknown
}

func sniffKind(b []byte) Kind {
	switch {
	case bytes.HasPrefix(b, []byte("%PDF-")):
		return KindPDF
	case bytes.HasPrefix(b, []byte{0xFF, 0xD8}):
		return KindImage
	case bytes.HasPrefix(b, []byte("\x89PNG\r\n\x1a\n")):
		return KindImage
	case bytes.HasPrefix(b, []byte("II*\x00")), bytes.HasPrefix(b, []byte("MM\x00*")):
		return KindImage
	}
	if strings.HasPrefix(http.DetectContentType(b), "image/") {
		return KindImage
	}
	return KindUnknown
}

// toRGB flattens any image onto an opaque white canvas anchored at the origin.
func toRGB(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

// EncodePNG encodes a normalized bitmap for the model and for display.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
