package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/craftscale/genbridge/internal/fault"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: uint8((x * y) % 256), A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDownscale_FitsBudget(t *testing.T) {
	src := encodePNG(t, testImage(800, 600))
	budget := int64(len(src)) / 4

	out, ext, err := Downscale(src, budget, AspectOriginal, FormatOriginal)
	if err != nil {
		t.Fatalf("Downscale: %v", err)
	}
	if int64(len(out)) > budget {
		t.Fatalf("output %d bytes exceeds budget %d", len(out), budget)
	}
	if ext != FormatPNG {
		t.Fatalf("original format of a png source must stay png, got %s", ext)
	}
	if _, _, err := image.Decode(bytes.NewReader(out)); err != nil {
		t.Fatalf("output not decodable: %v", err)
	}
}

func TestDownscale_SquarePadding(t *testing.T) {
	src := encodePNG(t, testImage(400, 100))

	out, _, err := Downscale(src, 10*1024*1024, AspectSquare, FormatPNG)
	if err != nil {
		t.Fatalf("Downscale: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != img.Bounds().Dy() {
		t.Fatalf("square mode produced %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestDownscale_FormatConversion(t *testing.T) {
	src := encodePNG(t, testImage(200, 200))

	out, ext, err := Downscale(src, 10*1024*1024, AspectOriginal, FormatJPEG)
	if err != nil {
		t.Fatal(err)
	}
	if ext != FormatJPEG {
		t.Fatalf("expected jpeg, got %s", ext)
	}
	if _, err := jpeg.Decode(bytes.NewReader(out)); err != nil {
		t.Fatalf("output is not a jpeg: %v", err)
	}
}

func TestDownscale_RejectsNonImage(t *testing.T) {
	_, _, err := Downscale([]byte("not an image"), 1024*1024, AspectOriginal, FormatOriginal)
	if !fault.IsKind(err, fault.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
