package media

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/jo-hoe/travelgallery/internal/model"
)

// Metadata is what could be read from a file's EXIF block. Every field is
// optional; a file without EXIF yields the zero value.
type Metadata struct {
	Latitude  *float64
	Longitude *float64
	Altitude  *float64
	TakenAt   *time.Time
	Camera    model.Camera
}

// ExtractMetadata reads EXIF from data. When the block cannot be decoded the
// error is returned with an empty Metadata; unreadable single tags are skipped.
func ExtractMetadata(data []byte) (Metadata, error) {
	var md Metadata
	x, err := exif.Decode(bytes.NewReader(data))
	if x == nil {
		if err == nil {
			err = fmt.Errorf("no exif data")
		}
		return md, fmt.Errorf("decode exif: %w", err)
	}

	if lat, lon, err := x.LatLong(); err == nil && hasFix(lat, lon) {
		md.Latitude, md.Longitude = &lat, &lon
		md.Altitude = altitude(x)
	}

	if ts, err := x.DateTime(); err == nil && !ts.IsZero() {
		md.TakenAt = &ts
	}

	md.Camera = model.Camera{
		Make:         stringTag(x, exif.Make),
		Model:        stringTag(x, exif.Model),
		Lens:         stringTag(x, exif.LensModel),
		FocalLength:  ratTag(x, exif.FocalLength),
		Aperture:     ratTag(x, exif.FNumber),
		ExposureTime: exposure(x),
		ISO:          intTag(x, exif.ISOSpeedRatings),
	}
	return md, nil
}

func stringTag(x *exif.Exif, name exif.FieldName) *string {
	tag, err := x.Get(name)
	if err != nil || tag.Format() != tiff.StringVal {
		return nil
	}
	s, err := tag.StringVal()
	if err != nil {
		return nil
	}
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if s == "" {
		return nil
	}
	return &s
}

func rat(x *exif.Exif, name exif.FieldName) *big.Rat {
	tag, err := x.Get(name)
	if err != nil || tag.Format() != tiff.RatVal {
		return nil
	}
	r, err := tag.Rat(0)
	if err != nil {
		return nil
	}
	return r
}

func ratTag(x *exif.Exif, name exif.FieldName) *float64 {
	r := rat(x, name)
	if r == nil {
		return nil
	}
	f, _ := r.Float64()
	return &f
}

func intTag(x *exif.Exif, name exif.FieldName) *int {
	tag, err := x.Get(name)
	if err != nil || tag.Format() != tiff.IntVal {
		return nil
	}
	v, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &v
}

// exposure renders the exposure time the way cameras display it ("1/250",
// "2", "2.5"). Fractions below one second are shown as 1/n.
func exposure(x *exif.Exif) *string {
	r := rat(x, exif.ExposureTime)
	if r == nil || r.Sign() <= 0 {
		return nil
	}
	var s string
	switch {
	case r.IsInt():
		s = r.Num().String()
	case r.Num().Cmp(big.NewInt(1)) == 0:
		s = "1/" + r.Denom().String()
	default:
		f, _ := r.Float64()
		if n := math.Round(1 / f); f < 1 && n >= 2 {
			s = fmt.Sprintf("1/%d", int64(n))
		} else {
			s = strconv.FormatFloat(f, 'f', 1, 64)
		}
	}
	return &s
}

// hasFix rejects positions outside the globe and the exact 0/0 that
// receivers without a fix write.
func hasFix(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	return model.Coordinates{Latitude: lat, Longitude: lon}.Valid()
}

func altitude(x *exif.Exif) *float64 {
	alt := ratTag(x, exif.GPSAltitude)
	if alt == nil {
		return nil
	}
	if ref, err := x.Get(exif.GPSAltitudeRef); err == nil {
		// 1 means below sea level.
		if v, err := ref.Int(0); err == nil && v == 1 {
			neg := -*alt
			return &neg
		}
	}
	return alt
}
