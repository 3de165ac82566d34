package facedlib

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"testing"

	"rollcall/internal/media"
)

func encodedImage(t *testing.T, format string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := 0; x < 40; x++ {
		for y := 0; y < 30; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 6), uint8(y * 8), 90, 255})
		}
	}
	var buf bytes.Buffer
	var err error
	if format == "png" {
		err = png.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, nil)
	}
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestToJPEG_ConvertsPNG(t *testing.T) {
	out, err := toJPEG(encodedImage(t, "png"))
	if err != nil {
		t.Fatalf("toJPEG: %v", err)
	}
	if ct := http.DetectContentType(out); ct != "image/jpeg" {
		t.Fatalf("content type = %s, want image/jpeg", ct)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
		t.Errorf("bounds = %v, want 40x30", b)
	}
}

func TestToJPEG_PassesJPEGThrough(t *testing.T) {
	in := encodedImage(t, "jpeg")
	out, err := toJPEG(in)
	if err != nil {
		t.Fatalf("toJPEG: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Error("jpeg input should be returned unchanged")
	}
}

func TestToJPEG_CorruptPNG(t *testing.T) {
	data := encodedImage(t, "png")[:40]
	if _, err := toJPEG(data); !errors.Is(err, media.ErrInvalidImage) {
		t.Errorf("expected ErrInvalidImage, got %v", err)
	}
}
