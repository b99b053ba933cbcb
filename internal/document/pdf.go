package document

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// IntrinsicDPI renders one PDF point as one pixel.
const IntrinsicDPI = 72.0

// FitzRenderer renders PDF pages with MuPDF.
type FitzRenderer struct{}

// RenderFirstPage opens data in memory and rasterizes page 0 at IntrinsicDPI.
func (FitzRenderer) RenderFirstPage(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, ErrNoRenderablePage
	}

	img, err := doc.ImageDPI(0, IntrinsicDPI)
	if err != nil {
		return nil, fmt.Errorf("render page 0: %w", err)
	}
	return img, nil
}
