// Package images keeps downloaded photo files on disk and a short-lived
// in-memory copy of recently used images and thumbnails.
package images

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "image/gif"
	_ "image/png"

	"github.com/h2non/filetype"
	"github.com/nfnt/resize"
	gc "github.com/patrickmn/go-cache"
	"github.com/zfogg/photostream/cli/pkg/logger"
	"github.com/zfogg/photostream/cli/pkg/metrics"
)

var (
	ErrNotImage = errors.New("data is not a supported image")
	ErrNotFound = errors.New("image not found")
)

// DefaultTTL is how long an image stays in memory after its last use
const DefaultTTL = 10 * time.Minute

// Store is the image cache
type Store struct {
	dir     string
	cache   *gc.Cache
	metrics *metrics.Metrics
}

// New creates a store rooted at dir
func New(dir string, ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &Store{
		dir:     dir,
		cache:   gc.New(ttl, 2*ttl),
		metrics: metrics.Get(),
	}, nil
}

// Dir returns the directory image files live in
func (s *Store) Dir() string {
	return s.dir
}

// Extension returns the file extension for image data, or ErrNotImage
func Extension(data []byte) (string, error) {
	if !filetype.IsImage(data) {
		return "", ErrNotImage
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "", ErrNotImage
	}
	return kind.Extension, nil
}

// Validate checks that data is an image
func Validate(data []byte) error {
	_, err := Extension(data)
	return err
}

func imageKey(photoID int) string {
	return "img:" + strconv.Itoa(photoID)
}

func thumbKey(photoID, maxPx int) string {
	return fmt.Sprintf("thumb:%d:%d", photoID, maxPx)
}

// Save writes the image of a photo and returns its path
func (s *Store) Save(photoID int, data []byte) (string, error) {
	ext, err := Extension(data)
	if err != nil {
		return "", err
	}

	if err := s.removeFiles(photoID); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, strconv.Itoa(photoID)+"."+ext)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to store image: %w", err)
	}

	s.evict(photoID)
	s.cache.SetDefault(imageKey(photoID), data)
	logger.Debug("Image stored", "photo_id", photoID, "path", path, "bytes", len(data))
	return path, nil
}

// SaveBase64 decodes a base64 image and saves it
func (s *Store) SaveBase64(photoID int, encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return s.Save(photoID, data)
}

// Path returns the file of a photo, if stored
func (s *Store) Path(photoID int) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(s.dir, strconv.Itoa(photoID)+".*"))
	if err != nil {
		return "", false
	}
	for _, m := range matches {
		if !strings.HasSuffix(m, ".tmp") {
			return m, true
		}
	}
	return "", false
}

// Load returns the image bytes of a photo
func (s *Store) Load(photoID int) ([]byte, error) {
	if v, ok := s.cache.Get(imageKey(photoID)); ok {
		s.metrics.ImageCacheTotal.WithLabelValues("hit").Inc()
		return v.([]byte), nil
	}
	s.metrics.ImageCacheTotal.WithLabelValues("miss").Inc()

	path, ok := s.Path(photoID)
	if !ok {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	s.cache.SetDefault(imageKey(photoID), data)
	return data, nil
}

// Thumbnail returns a JPEG no larger than maxPx on either side
func (s *Store) Thumbnail(photoID, maxPx int) ([]byte, error) {
	if maxPx <= 0 {
		return nil, fmt.Errorf("thumbnail size must be positive, got %d", maxPx)
	}

	key := thumbKey(photoID, maxPx)
	if v, ok := s.cache.Get(key); ok {
		s.metrics.ImageCacheTotal.WithLabelValues("hit").Inc()
		return v.([]byte), nil
	}

	data, err := s.Load(photoID)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	thumbnail := resize.Thumbnail(uint(maxPx), uint(maxPx), img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumbnail, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	s.cache.SetDefault(key, buf.Bytes())
	return buf.Bytes(), nil
}

// Delete drops the image of a photo from disk and memory
func (s *Store) Delete(photoID int) error {
	s.evict(photoID)
	return s.removeFiles(photoID)
}

// Clear drops every stored image
func (s *Store) Clear() error {
	s.cache.Flush()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove image: %w", err)
		}
	}
	return nil
}

// Usage returns the number of stored files and their total size
func (s *Store) Usage() (int, int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list images: %w", err)
	}
	var files int
	var size int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files++
		size += info.Size()
	}
	return files, size, nil
}

// Cached returns the number of in-memory entries
func (s *Store) Cached() int {
	return s.cache.ItemCount()
}

func (s *Store) evict(photoID int) {
	s.cache.Delete(imageKey(photoID))
	prefix := fmt.Sprintf("thumb:%d:", photoID)
	for key := range s.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Delete(key)
		}
	}
}

func (s *Store) removeFiles(photoID int) error {
	matches, err := filepath.Glob(filepath.Join(s.dir, strconv.Itoa(photoID)+".*"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove image: %w", err)
		}
	}
	return nil
}
