package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/chronopost/chronopost/internal/models"
)

// jpegQualitySteps is the quality ladder tried when the encoded image
// exceeds the byte cap.
var jpegQualitySteps = []int{90, 80, 70, 55}

// PresetFor picks the output shape closest to the source aspect so
// cropping stays minimal.
func PresetFor(width, height int) models.AspectPreset {
	if width <= 0 || height <= 0 {
		return models.AspectLandscape
	}
	ratio := float64(width) / float64(height)
	switch {
	case ratio < 0.9:
		return models.AspectPortrait
	case ratio <= 1.15:
		return models.AspectSquare
	default:
		return models.AspectLandscape
	}
}

// Normalize decodes, center-crops to the preset aspect, scales to the
// preset dimensions and re-encodes as JPEG under maxBytes. Quality
// steps down until the image fits; an image that cannot fit at the
// lowest step is an error.
func Normalize(data []byte, preset models.AspectPreset, maxBytes int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	targetW, targetH := preset.Dimensions()
	cropped := centerCrop(src, targetW, targetH)

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), cropped, cropped.Bounds(), xdraw.Over, nil)

	for _, quality := range jpegQualitySteps {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		if buf.Len() <= maxBytes {
			return buf.Bytes(), nil
		}
	}

	return nil, fmt.Errorf("image exceeds %d bytes at minimum quality", maxBytes)
}

// centerCrop returns the largest centered sub-rectangle of src with
// the target aspect ratio.
func centerCrop(src image.Image, targetW, targetH int) image.Image {
	bounds := src.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	targetRatio := float64(targetW) / float64(targetH)
	srcRatio := float64(srcW) / float64(srcH)

	cropW := srcW
	cropH := srcH
	if srcRatio > targetRatio {
		cropW = int(float64(srcH) * targetRatio)
	} else {
		cropH = int(float64(srcW) / targetRatio)
	}

	x0 := bounds.Min.X + (srcW-cropW)/2
	y0 := bounds.Min.Y + (srcH-cropH)/2
	rect := image.Rect(x0, y0, x0+cropW, y0+cropH)

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if s, ok := src.(subImager); ok {
		return s.SubImage(rect)
	}

	// Fallback for decoders without SubImage support.
	out := image.NewRGBA(image.Rect(0, 0, cropW, cropH))
	xdraw.Copy(out, image.Point{}, src, rect, xdraw.Over, nil)
	return out
}
