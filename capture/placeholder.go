package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sync"
	"time"
)

// PlaceholderTag marks items queued without a recognizable product
// code.
const PlaceholderTag = "not-authorized"

var (
	placeholderOnce sync.Once
	placeholderData []byte
)

// Placeholder returns the stand-in photo used when an item has no
// readable barcode. The image is generated once: a light tile with a
// dark center band at the normalized size, so it flows through the
// same upload path as a real capture.
func Placeholder(takenAt time.Time) Photo {
	placeholderOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, TargetSize, TargetSize))
		draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff}), image.Point{}, draw.Src)
		band := image.Rect(0, TargetSize*2/5, TargetSize, TargetSize*3/5)
		draw.Draw(img, band, image.NewUniform(color.RGBA{R: 0x37, G: 0x41, B: 0x51, A: 0xff}), image.Point{}, draw.Src)

		var buf bytes.Buffer
		// Encoding a uniform RGBA tile cannot fail; keep the zero-value
		// fallback anyway so a broken encode never queues a nil photo.
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err == nil {
			placeholderData = buf.Bytes()
		}
	})

	return Photo{
		FileName:    fmt.Sprintf("%s_%d.jpg", PlaceholderTag, takenAt.UnixMilli()),
		ContentType: "image/jpeg",
		Data:        placeholderData,
	}
}
