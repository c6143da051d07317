// Package imaging implements the local downscale operation. It is the
// one generation path that never leaves the process: decode, optionally
// square-pad, then shrink and re-encode until the output fits the
// requested byte budget.
package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/craftscale/genbridge/internal/fault"
)

const (
	AspectOriginal = "original"
	AspectSquare   = "square"

	FormatOriginal = "original"
	FormatJPEG     = "jpeg"
	FormatPNG      = "png"
)

// Downscale shrinks an image under maxBytes. Returns the encoded bytes
// and the output extension ("jpeg" or "png").
func Downscale(data []byte, maxBytes int64, aspectMode, outputFormat string) ([]byte, string, error) {
	img, srcFormat, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fault.Wrap(fault.KindValidation, "input is not a decodable image", err)
	}

	format := outputFormat
	if format == "" || format == FormatOriginal {
		if srcFormat == "png" {
			format = FormatPNG
		} else {
			format = FormatJPEG
		}
	}

	if aspectMode == AspectSquare {
		img = padSquare(img)
	}

	// Shrink-and-reencode loop. JPEG gets a quality ramp first; both
	// formats fall back to dimension reduction.
	quality := 90
	for attempt := 0; attempt < 10; attempt++ {
		out, err := encode(img, format, quality)
		if err != nil {
			return nil, "", err
		}
		if int64(len(out)) <= maxBytes {
			return out, format, nil
		}

		if format == FormatJPEG && quality > 50 {
			quality -= 10
			continue
		}

		// Scale area proportionally to the overshoot, with a floor so
		// progress is always made.
		ratio := math.Sqrt(float64(maxBytes) / float64(len(out)))
		if ratio > 0.9 {
			ratio = 0.9
		}
		b := img.Bounds()
		w := int(float64(b.Dx()) * ratio)
		h := int(float64(b.Dy()) * ratio)
		if w < 1 || h < 1 {
			break
		}
		img = resize(img, w, h)
	}

	log.Warn().Int64("max_bytes", maxBytes).Msg("downscale could not reach byte budget")
	return nil, "", fault.New(fault.KindProviderPermanent, "image cannot be reduced to requested size")
}

func encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fault.Wrap(fault.KindProviderPermanent, "image encode failed", err)
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fault.Wrap(fault.KindProviderPermanent, "image encode failed", err)
		}
	}
	return buf.Bytes(), nil
}

// padSquare centers the image on a white square canvas sized to the
// longer edge.
func padSquare(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() == b.Dy() {
		return img
	}
	side := b.Dx()
	if b.Dy() > side {
		side = b.Dy()
	}
	canvas := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	offset := image.Pt((side-b.Dx())/2, (side-b.Dy())/2)
	draw.Draw(canvas, b.Sub(b.Min).Add(offset), img, b.Min, draw.Over)
	return canvas
}

// resize does a box-sample reduction. Only ever called to shrink, where
// box sampling is adequate and dependency-free.
func resize(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xRatio := float64(b.Dx()) / float64(w)
	yRatio := float64(b.Dy()) / float64(h)

	for y := 0; y < h; y++ {
		sy0 := b.Min.Y + int(float64(y)*yRatio)
		sy1 := b.Min.Y + int(float64(y+1)*yRatio)
		if sy1 <= sy0 {
			sy1 = sy0 + 1
		}
		for x := 0; x < w; x++ {
			sx0 := b.Min.X + int(float64(x)*xRatio)
			sx1 := b.Min.X + int(float64(x+1)*xRatio)
			if sx1 <= sx0 {
				sx1 = sx0 + 1
			}

			var r, g, bl, a, n uint64
			for sy := sy0; sy < sy1 && sy < b.Max.Y; sy++ {
				for sx := sx0; sx < sx1 && sx < b.Max.X; sx++ {
					pr, pg, pb, pa := img.At(sx, sy).RGBA()
					r += uint64(pr)
					g += uint64(pg)
					bl += uint64(pb)
					a += uint64(pa)
					n++
				}
			}
			if n == 0 {
				continue
			}
			dst.SetRGBA(x, y, color.RGBA{
				R: uint8(r / n >> 8),
				G: uint8(g / n >> 8),
				B: uint8(bl / n >> 8),
				A: uint8(a / n >> 8),
			})
		}
	}
	return dst
}
