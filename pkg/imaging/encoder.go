// Package imaging re-encodes images to fit a hard byte budget and sniffs
// formats from magic-number signatures.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"watermarkd/internal/domain"
)

const (
	startQuality = 90
	floorQuality = 10
	qualityStep  = 5
)

type Encoder struct {
	log *zap.Logger
}

func NewEncoder(log *zap.Logger) *Encoder {
	return &Encoder{log: log}
}

// FitToBudget returns blob unchanged when it already fits, otherwise
// re-encodes it as JPEG at decreasing quality until the result fits maxBytes.
// Alpha and palette data are flattened to plain color before the first lossy
// pass. Reaching the quality floor without fitting yields
// domain.ErrExceedsBudget; an oversized result is never returned.
func (e *Encoder) FitToBudget(blob domain.ImageBlob, maxBytes int) (domain.ImageBlob, error) {
	if len(blob.Bytes) <= maxBytes {
		return blob, nil
	}

	img, _, err := image.Decode(bytes.NewReader(blob.Bytes))
	if err != nil {
		return domain.ImageBlob{}, fmt.Errorf("decode image for compression: %w", err)
	}

	flat := flatten(img)

	for quality := startQuality; quality >= floorQuality; quality -= qualityStep {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: quality}); err != nil {
			return domain.ImageBlob{}, fmt.Errorf("encode jpeg at quality %d: %w", quality, err)
		}

		e.log.Debug("compression attempt",
			zap.Int("quality", quality),
			zap.Int("size", buf.Len()),
			zap.Int("max_bytes", maxBytes))

		if buf.Len() <= maxBytes {
			e.log.Info("image compressed to budget",
				zap.Int("original_size", len(blob.Bytes)),
				zap.Int("compressed_size", buf.Len()),
				zap.Int("quality", quality))
			return domain.ImageBlob{Bytes: buf.Bytes(), MimeHint: domain.MimeJPEG}, nil
		}
	}

	return domain.ImageBlob{}, fmt.Errorf("%w: %d bytes cannot fit %d at quality %d",
		domain.ErrExceedsBudget, len(blob.Bytes), maxBytes, floorQuality)
}

// flatten draws img onto an opaque RGBA canvas, discarding alpha and palette
// channels so the JPEG encoder sees plain color.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.White, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}

// Sniff infers the image format from the leading magic bytes, ignoring any
// declared content type.
func Sniff(data []byte) domain.MimeHint {
	switch {
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8:
		return domain.MimeJPEG
	case len(data) >= 8 && bytes.Equal(data[:8], []byte("\x89PNG\r\n\x1a\n")):
		return domain.MimePNG
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return domain.MimeGIF
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return domain.MimeWEBP
	}
	return domain.MimeUnknown
}

// NewBlob wraps raw bytes with their sniffed format.
func NewBlob(data []byte) domain.ImageBlob {
	return domain.ImageBlob{Bytes: data, MimeHint: Sniff(data)}
}
