// Package uploads stores training media on local disk under content-sniffed,
// collision-free names and hands back the public URL of each stored file.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// MaxVideoBytes bounds a single video upload.
	MaxVideoBytes int64 = 50 << 20
	// MaxImageBytes bounds a single image upload.
	MaxImageBytes int64 = 10 << 20

	// VideosURLPrefix and ImagesURLPrefix are the public paths of stored files.
	VideosURLPrefix = "/uploads/videos/"
	ImagesURLPrefix = "/uploads/images/"

	videosDir = "videos"
	imagesDir = "images"
)

var (
	ErrMissingFile = errors.New("no file uploaded")
	ErrTooLarge    = errors.New("file too large or invalid")
	ErrNotVideo    = errors.New("file must be a video")
	ErrNotImage    = errors.New("file must be an image (JPEG, PNG, GIF, or WebP)")
	ErrSaveFailed  = errors.New("failed to save file")
)

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Kind distinguishes the two upload categories.
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
)

// StoreConfig configures the upload store.
type StoreConfig struct {
	Root   string
	Logger *zap.Logger
}

// Store writes uploads below Root/videos and Root/images.
type Store struct {
	root   string
	logger *zap.Logger
}

// NewStore creates the upload directories if needed.
func NewStore(cfg StoreConfig) (*Store, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("uploads: root directory is required")
	}
	for _, dir := range []string{videosDir, imagesDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("uploads: create %s: %w", dir, err)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{root: root, logger: logger}, nil
}

// VideosDir is the directory served under VideosURLPrefix.
func (s *Store) VideosDir() string {
	return filepath.Join(s.root, videosDir)
}

// ImagesDir is the directory served under ImagesURLPrefix.
func (s *Store) ImagesDir() string {
	return filepath.Join(s.root, imagesDir)
}

// SaveVideo stores a video upload and returns its public URL.
func (s *Store) SaveVideo(header *multipart.FileHeader) (string, error) {
	return s.save(KindVideo, header)
}

// SaveImage stores a JPEG, PNG, GIF or WebP upload and returns its public URL.
func (s *Store) SaveImage(header *multipart.FileHeader) (string, error) {
	return s.save(KindImage, header)
}

func (s *Store) save(kind Kind, header *multipart.FileHeader) (string, error) {
	if header == nil {
		return "", ErrMissingFile
	}
	limit, dir, prefix := MaxImageBytes, s.ImagesDir(), ImagesURLPrefix
	if kind == KindVideo {
		limit, dir, prefix = MaxVideoBytes, s.VideosDir(), VideosURLPrefix
	}
	if header.Size > limit {
		return "", ErrTooLarge
	}

	file, err := header.Open()
	if err != nil {
		return "", ErrMissingFile
	}
	defer file.Close()

	detected, err := mimetype.DetectReader(file)
	if err != nil {
		return "", ErrTooLarge
	}
	if err := checkType(kind, detected); err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		s.logger.Error("upload rewind failed", zap.String("kind", string(kind)), zap.Error(err))
		return "", ErrSaveFailed
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", ErrSaveFailed
	}
	name := id.String() + extension(header.Filename, detected)
	destination, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		s.logger.Error("upload create failed", zap.String("kind", string(kind)), zap.Error(err))
		return "", ErrSaveFailed
	}
	defer destination.Close()

	if _, err := io.Copy(destination, io.LimitReader(file, limit)); err != nil {
		s.logger.Error("upload copy failed", zap.String("kind", string(kind)), zap.Error(err))
		return "", ErrSaveFailed
	}
	s.logger.Info("upload stored",
		zap.String("kind", string(kind)),
		zap.String("file", name),
		zap.String("mime", detected.String()),
		zap.Int64("bytes", header.Size),
	)
	return path.Join(prefix, name), nil
}

func checkType(kind Kind, detected *mimetype.MIME) error {
	if kind == KindVideo {
		if !strings.HasPrefix(detected.String(), "video/") {
			return ErrNotVideo
		}
		return nil
	}
	for _, allowed := range allowedImageTypes {
		if detected.Is(allowed) {
			return nil
		}
	}
	return ErrNotImage
}

func extension(filename string, detected *mimetype.MIME) string {
	if ext := detected.Extension(); ext != "" {
		return ext
	}
	return strings.ToLower(filepath.Ext(filepath.Base(filename)))
}
