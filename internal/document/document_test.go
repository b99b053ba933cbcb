package document

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/companion/internal/model"
)

type fakeRenderer struct {
	pages []image.Image
	calls int
}

func (f *fakeRenderer) RenderFirstPage(_ []byte) (image.Image, error) {
	f.calls++
	if len(f.pages) == 0 {
		return nil, ErrNoRenderablePage
	}
	return f.pages[0], nil
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encode(t *testing.T, format string, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		err = jpeg.Encode(&buf, img, nil)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	}
	require.NoError(t, err)
	return buf.Bytes()
}

func TestNormalizeImages(t *testing.T) {
	src := solid(40, 30, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	tests := []struct {
		name        string
		format      string
		contentType string
	}{
		{"png", "png", "image/png"},
		{"jpeg", "jpeg", "image/jpeg"},
		{"gif", "gif", "image/gif"},
		{"png without type", "png", ""},
		{"jpeg as octet-stream", "jpeg", "application/octet-stream"},
	}

	n := NewNormalizer(&fakeRenderer{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := n.Normalize(context.Background(), model.UploadedDocument{
				Name:        "answer." + tt.format,
				ContentType: tt.contentType,
				Data:        encode(t, tt.format, src),
			})
			require.NoError(t, err)
			assert.Equal(t, 40, out.Bounds().Dx())
			assert.Equal(t, 30, out.Bounds().Dy())
			assert.Equal(t, image.Point{}, out.Bounds().Min)
		})
	}
}

func TestNormalizeFlattensAlpha(t *testing.T) {
	src := solid(4, 4, color.NRGBA{A: 0})
	out, err := NewNormalizer(nil).Normalize(context.Background(), model.UploadedDocument{
		ContentType: "image/png",
		Data:        encode(t, "png", src),
	})
	require.NoError(t, err)

	r, g, b, a := out.At(2, 2).RGBA()
	assert.Equal(t, uint32(0xffff), a)
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), b)
}

func TestNormalizeDecodeErrors(t *testing.T) {
	n := NewNormalizer(&fakeRenderer{})

	tests := []struct {
		name string
		doc  model.UploadedDocument
		is   error
	}{
		{"empty", model.UploadedDocument{ContentType: "image/png"}, ErrEmpty},
		{"garbage image", model.UploadedDocument{ContentType: "image/png", Data: []byte("not an image")}, nil},
		{"unsupported", model.UploadedDocument{ContentType: "text/plain", Data: []byte("hello")}, ErrUnsupportedKind},
		{"zero page pdf", model.UploadedDocument{ContentType: "application/pdf", Data: []byte("%PDF-1.4")}, ErrNoRenderablePage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := n.Normalize(context.Background(), tt.doc)
			require.Error(t, err)
			assert.Nil(t, out)

			var de *DecodeError
			assert.True(t, errors.As(err, &de), "expected DecodeError, got %T", err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestNormalizePDFUsesFirstPage(t *testing.T) {
	first := solid(20, 10, color.Black)
	r := &fakeRenderer{pages: []image.Image{first, solid(99, 99, color.White)}}

	out, err := NewNormalizer(r).Normalize(context.Background(), model.UploadedDocument{
		ContentType: "application/pdf",
		Data:        []byte("%PDF-1.4 ..."),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, image.Rect(0, 0, 20, 10), out.Bounds())
}

func TestNormalizeCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewNormalizer(nil).Normalize(ctx, model.UploadedDocument{Data: []byte{1}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectKind(t *testing.T) {
	tests := []struct {
		contentType string
		data        []byte
		want        Kind
	}{
		{"application/pdf", nil, KindPDF},
		{"image/jpeg", nil, KindImage},
		{"image/png; charset=binary", nil, KindImage},
		{"", []byte("%PDF-1.7\n"), KindPDF},
		{"application/octet-stream", []byte("\x89PNG\r\n\x1a\nrest"), KindImage},
		{"", []byte{0xFF, 0xD8, 0xFF}, KindImage},
		{"", []byte("MM\x00*rest"), KindImage},
		{"", []byte("plain text"), KindUnknown},
		{"text/html", []byte("%PDF-"), KindUnknown},
	}
	for _, tt := range tests {
		got := DetectKind(tt.contentType, tt.data)
		assert.Equal(t, tt.want, got, "DetectKind(%q, %q)", tt.contentType, tt.data)
	}
}

func TestEncodePNG(t *testing.T) {
	data, err := EncodePNG(solid(3, 2, color.Black))
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 3, cfg.Width)
	assert.Equal(t, 2, cfg.Height)
}
