package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEGFixture(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestProcess_DownscalesWideImages(t *testing.T) {
	data := encodePNG(t, testImage(400, 200))

	out, err := Process(data, Options{MaxWidth: 100, ThumbnailSize: 32, JPEGQuality: 80})
	require.NoError(t, err)

	assert.Equal(t, 100, out.Width)
	assert.Equal(t, 50, out.Height)
	assert.Equal(t, "image/jpeg", out.MimeType)
	assert.Equal(t, "image/jpeg", DetectMime(out.Image))

	thumb, err := jpeg.Decode(bytes.NewReader(out.Thumbnail))
	require.NoError(t, err)
	assert.Equal(t, 32, thumb.Bounds().Dx())
	assert.Equal(t, 32, thumb.Bounds().Dy())
}

func TestProcess_KeepsSmallImages(t *testing.T) {
	data := encodeJPEGFixture(t, testImage(64, 48))
	out, err := Process(data, Options{MaxWidth: 2048, ThumbnailSize: 16})
	require.NoError(t, err)
	assert.Equal(t, 64, out.Width)
	assert.Equal(t, 48, out.Height)
	assert.NotEmpty(t, out.Thumbnail)
}

func TestProcess_RejectsCorruptData(t *testing.T) {
	_, err := Process([]byte("definitely not an image"), Options{MaxWidth: 100})
	assert.Error(t, err)
}

func TestExtractMetadata_NoExif(t *testing.T) {
	md, err := ExtractMetadata(encodeJPEGFixture(t, testImage(8, 8)))
	assert.Error(t, err)
	assert.Nil(t, md.Latitude)
	assert.Nil(t, md.TakenAt)
	assert.Nil(t, md.Camera.Make)
}

func TestExtractMetadata_Garbage(t *testing.T) {
	md, err := ExtractMetadata([]byte{0x00, 0x01})
	assert.Error(t, err)
	assert.Equal(t, Metadata{}, md)
}

func TestDetectMime(t *testing.T) {
	assert.Equal(t, "image/png", DetectMime(encodePNG(t, testImage(2, 2))))
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestExtractMetadata_FullExif(t *testing.T) {
	md, err := ExtractMetadata(readFixture(t, "gps_lens.jpg"))
	require.NoError(t, err)

	require.NotNil(t, md.Latitude)
	require.NotNil(t, md.Longitude)
	assert.InDelta(t, 59.332547, *md.Latitude, 1e-3)
	assert.InDelta(t, 18.064942, *md.Longitude, 1e-3)
	require.NotNil(t, md.Altitude)
	assert.InDelta(t, 29.0, *md.Altitude, 1e-9)

	require.NotNil(t, md.TakenAt)
	assert.Equal(t, "2014:09:01 15:03:47", md.TakenAt.Format("2006:01:02 15:04:05"))

	cam := md.Camera
	require.NotNil(t, cam.Make)
	assert.Equal(t, "Apple", *cam.Make)
	require.NotNil(t, cam.Model)
	assert.Equal(t, "iPhone 4S", *cam.Model)
	require.NotNil(t, cam.Lens)
	assert.Equal(t, "iPhone 4S back camera 4.28mm f/2.4", *cam.Lens)
	require.NotNil(t, cam.ExposureTime)
	assert.Equal(t, "1/1284", *cam.ExposureTime)
	require.NotNil(t, cam.ISO)
	assert.Equal(t, 50, *cam.ISO)
	require.NotNil(t, cam.Aperture)
	assert.InDelta(t, 2.4, *cam.Aperture, 1e-9)
	require.NotNil(t, cam.FocalLength)
	assert.InDelta(t, 4.28, *cam.FocalLength, 1e-9)
}

func TestExtractMetadata_ZeroPositionIsAbsent(t *testing.T) {
	md, err := ExtractMetadata(readFixture(t, "gps_zero.jpg"))
	require.NoError(t, err)

	assert.Nil(t, md.Latitude)
	assert.Nil(t, md.Longitude)
	assert.Nil(t, md.Altitude)
	require.NotNil(t, md.Camera.Make)
	assert.Equal(t, "HTC", *md.Camera.Make)
}

func TestExtractMetadata_ExposureFraction(t *testing.T) {
	md, err := ExtractMetadata(readFixture(t, "exposure_fraction.jpg"))
	require.NoError(t, err)

	require.NotNil(t, md.Camera.ExposureTime)
	assert.Equal(t, "1/60", *md.Camera.ExposureTime)
	require.NotNil(t, md.Camera.Aperture)
	assert.InDelta(t, 2.8, *md.Camera.Aperture, 1e-9)
	assert.Nil(t, md.Latitude)
}

func TestProcess_AppliesExifOrientation(t *testing.T) {
	out, err := Process(readFixture(t, "gps_lens.jpg"), Options{MaxWidth: 2048, ThumbnailSize: 16})
	require.NoError(t, err)
	assert.Equal(t, 120, out.Width)
	assert.Equal(t, 160, out.Height)
}
