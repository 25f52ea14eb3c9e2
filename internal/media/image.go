package media

import (
	"bytes"
	"fmt"
	"image"
	"net/http"

	"github.com/disintegration/imaging"

	"github.com/jo-hoe/travelgallery/internal/common"
)

// Options controls the derived images.
type Options struct {
	MaxWidth      int
	ThumbnailSize int
	JPEGQuality   int
}

// Processed holds the encoded main image and its square thumbnail.
type Processed struct {
	Image     []byte
	Thumbnail []byte
	Width     int
	Height    int
	MimeType  string
}

// DetectMime sniffs the content type of data.
func DetectMime(data []byte) string {
	return http.DetectContentType(data)
}

// Process decodes data applying the EXIF orientation, scales it down to
// MaxWidth when wider, and re-encodes both the image and a center-cropped
// thumbnail as JPEG.
func Process(data []byte, opts Options) (*Processed, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	main := img
	if opts.MaxWidth > 0 && img.Bounds().Dx() > opts.MaxWidth {
		main = imaging.Resize(img, opts.MaxWidth, 0, imaging.Lanczos)
	}
	mainBytes, err := encodeJPEG(main, opts.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	var thumbBytes []byte
	if opts.ThumbnailSize > 0 {
		thumb := imaging.Fill(img, opts.ThumbnailSize, opts.ThumbnailSize, imaging.Center, imaging.Lanczos)
		if thumbBytes, err = encodeJPEG(thumb, opts.JPEGQuality); err != nil {
			return nil, fmt.Errorf("encode thumbnail: %w", err)
		}
	}

	b := main.Bounds()
	return &Processed{
		Image:     mainBytes,
		Thumbnail: thumbBytes,
		Width:     b.Dx(),
		Height:    b.Dy(),
		MimeType:  common.MimeImageJPEG,
	}, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
