package storage

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/jo-hoe/travelgallery/internal/common"
	"github.com/jo-hoe/travelgallery/internal/jobs"
	"github.com/jo-hoe/travelgallery/internal/util"
)

var ErrTooLarge = errors.New("upload exceeds size limit")

// Uploader handles temporary uploads and the processed photo files on disk.
type Uploader struct {
	uploadsDir string
	photosDir  string
	thumbsDir  string
}

var allowedImageMimes = map[string]string{
	common.MimeImagePNG:  ".png",
	common.MimeImageJPEG: ".jpg",
	common.MimeImageJPG:  ".jpg",
	common.MimeImageGIF:  ".gif",
}

// NewUploader creates an uploader rooted at baseDir with uploads/, photos/ and thumbnails/ below it.
func NewUploader(baseDir string) *Uploader {
	return &Uploader{
		uploadsDir: filepath.Join(baseDir, common.UploadsDirName),
		photosDir:  filepath.Join(baseDir, common.PhotosDirName),
		thumbsDir:  filepath.Join(baseDir, common.ThumbnailsDirName),
	}
}

// SaveMultipartImage validates and spools an uploaded image (png/jpg/gif) to disk.
// The returned cleanup removes the spooled file and must always be called
// once the file is no longer needed.
func (u *Uploader) SaveMultipartImage(fileHeader *multipart.FileHeader, maxBytes int64) (jobs.UploadedFile, func() error, error) {
	if fileHeader == nil {
		return jobs.UploadedFile{}, nil, fmt.Errorf("no file provided")
	}
	mimeType := fileHeader.Header.Get("Content-Type")
	// Some clients set application/octet-stream for uploads; fall back to the extension.
	if mimeType == "" || strings.EqualFold(strings.TrimSpace(mimeType), "application/octet-stream") {
		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		mimeType = mime.TypeByExtension(ext)
	}
	if !isAllowedImageMime(mimeType) {
		return jobs.UploadedFile{}, nil, fmt.Errorf("unsupported content type %q for %s", mimeType, fileHeader.Filename)
	}

	if err := os.MkdirAll(u.uploadsDir, 0o755); err != nil {
		return jobs.UploadedFile{}, nil, fmt.Errorf("ensure uploads dir: %w", err)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return jobs.UploadedFile{}, nil, fmt.Errorf("open uploaded file: %w", err)
	}
	defer func() { _ = src.Close() }()

	filename := util.RandomHex(16) + pickExtension(mimeType, fileHeader.Filename)
	dstPath := filepath.Join(u.uploadsDir, filename)

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return jobs.UploadedFile{}, nil, fmt.Errorf("create tmp file: %w", err)
	}
	defer func() { _ = dst.Close() }()

	var r io.Reader = src
	if maxBytes > 0 {
		// One extra byte tells an exact-limit file apart from an oversized one.
		r = io.LimitReader(src, maxBytes+1)
	}
	n, err := io.Copy(dst, r)
	if err != nil {
		_ = os.Remove(dstPath)
		return jobs.UploadedFile{}, nil, fmt.Errorf("copy upload: %w", err)
	}
	if maxBytes > 0 && n > maxBytes {
		_ = os.Remove(dstPath)
		return jobs.UploadedFile{}, nil, fmt.Errorf("%w: %s", ErrTooLarge, fileHeader.Filename)
	}

	cleanup := func() error {
		if err := os.Remove(dstPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return jobs.UploadedFile{
		Path:         dstPath,
		OriginalName: fileHeader.Filename,
		MimeType:     strings.ToLower(strings.TrimSpace(mimeType)),
		Size:         n,
	}, cleanup, nil
}

// SavePhoto writes a processed image and its thumbnail under a shared random
// name and returns that name.
func (u *Uploader) SavePhoto(image, thumbnail []byte) (string, error) {
	for _, dir := range []string{u.photosDir, u.thumbsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("ensure dir %s: %w", dir, err)
		}
	}
	name := util.RandomHex(16) + ".jpg"
	if err := writeExclusive(filepath.Join(u.photosDir, name), image); err != nil {
		return "", fmt.Errorf("write photo: %w", err)
	}
	if len(thumbnail) > 0 {
		if err := writeExclusive(filepath.Join(u.thumbsDir, name), thumbnail); err != nil {
			_ = os.Remove(filepath.Join(u.photosDir, name))
			return "", fmt.Errorf("write thumbnail: %w", err)
		}
	}
	return name, nil
}

// RemovePhoto deletes the image and thumbnail files. Missing files are ignored.
func (u *Uploader) RemovePhoto(filename, thumbnailName string) error {
	var errs []error
	if filename != "" {
		errs = append(errs, removeIfExists(u.PhotoPath(filename)))
	}
	if thumbnailName != "" {
		errs = append(errs, removeIfExists(u.ThumbnailPath(thumbnailName)))
	}
	return errors.Join(errs...)
}

// PhotoPath returns the on-disk location of a stored photo.
func (u *Uploader) PhotoPath(filename string) string {
	return filepath.Join(u.photosDir, filepath.Base(filename))
}

// ThumbnailPath returns the on-disk location of a stored thumbnail.
func (u *Uploader) ThumbnailPath(filename string) string {
	return filepath.Join(u.thumbsDir, filepath.Base(filename))
}

func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func isAllowedImageMime(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	_, ok := allowedImageMimes[mt]
	return ok
}

func pickExtension(mimeType, original string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if ext, ok := allowedImageMimes[mt]; ok {
		return ext
	}
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" {
		return ".bin"
	}
	return ext
}
