package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/chronopost/chronopost/internal/models"
)

func testImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x += 4 {
		for y := 0; y < height; y += 4 {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestNormalize_TargetDimensions(t *testing.T) {
	tests := []struct {
		name   string
		preset models.AspectPreset
	}{
		{"landscape", models.AspectLandscape},
		{"portrait", models.AspectPortrait},
		{"square", models.AspectSquare},
	}

	src := testImage(t, 2000, 1400)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Normalize(src, tt.preset, 4<<20)
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}

			decoded, _, err := image.Decode(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("decode output: %v", err)
			}

			wantW, wantH := tt.preset.Dimensions()
			bounds := decoded.Bounds()
			if bounds.Dx() != wantW || bounds.Dy() != wantH {
				t.Errorf("output = %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), wantW, wantH)
			}
		})
	}
}

func TestNormalize_RespectsByteCap(t *testing.T) {
	src := testImage(t, 2400, 1600)

	out, err := Normalize(src, models.AspectLandscape, 200<<10)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(out) > 200<<10 {
		t.Errorf("output = %d bytes, exceeds the cap", len(out))
	}
}

func TestNormalize_RejectsGarbage(t *testing.T) {
	if _, err := Normalize([]byte("not an image"), models.AspectLandscape, 4<<20); err == nil {
		t.Error("garbage input should fail to decode")
	}
}

func TestPresetFor(t *testing.T) {
	tests := []struct {
		w, h int
		want models.AspectPreset
	}{
		{2000, 1000, models.AspectLandscape},
		{1000, 2000, models.AspectPortrait},
		{1000, 1000, models.AspectSquare},
		{0, 0, models.AspectLandscape},
	}

	for _, tt := range tests {
		if got := PresetFor(tt.w, tt.h); got != tt.want {
			t.Errorf("PresetFor(%d, %d) = %s, want %s", tt.w, tt.h, got, tt.want)
		}
	}
}
