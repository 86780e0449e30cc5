// Package capture turns raw photo bytes into queued, upload-ready
// items. Every capture is normalized to one square JPEG so storage
// paths and previews stay uniform regardless of the source device.
package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	xdraw "golang.org/x/image/draw"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// TargetSize is the side of the square every capture is normalized
// to, in pixels.
const TargetSize = 720

const jpegQuality = 90

// Photo is a normalized, upload-ready image.
type Photo struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Normalize decodes src, center-crops it to a square and scales it to
// TargetSize, re-encoding as JPEG. The file name is {tag}_{millis}.jpg
// from takenAt. A decode or encode failure discards the capture; no
// partial photo is produced.
func Normalize(src []byte, tag string, takenAt time.Time) (Photo, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return Photo{}, fmt.Errorf("decode capture: %w", err)
	}

	bounds := img.Bounds()
	side := bounds.Dx()
	if bounds.Dy() < side {
		side = bounds.Dy()
	}
	if side <= 0 {
		return Photo{}, fmt.Errorf("decode capture: empty image")
	}
	crop := image.Rect(0, 0, side, side).
		Add(bounds.Min).
		Add(image.Pt((bounds.Dx()-side)/2, (bounds.Dy()-side)/2))

	dst := image.NewRGBA(image.Rect(0, 0, TargetSize, TargetSize))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, crop, xdraw.Src, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Photo{}, fmt.Errorf("encode capture: %w", err)
	}
	if out.Len() == 0 {
		return Photo{}, fmt.Errorf("encode capture: no data produced")
	}

	return Photo{
		FileName:    fmt.Sprintf("%s_%d.jpg", tag, takenAt.UnixMilli()),
		ContentType: "image/jpeg",
		Data:        out.Bytes(),
	}, nil
}
