// Package images stores exercise demonstration images on disk. The metadata
// (which image belongs to which exercise) lives in the database, this store
// only deals in bytes.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/gymtrack/internal/telemetry/tracing"
)

var (
	ErrImageNotFound    = errors.New("image file not found")
	ErrUnsupportedImage = errors.New("unsupported image type")
)

var supportedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ContentTypeFor returns the content type for a stored image path, or an
// error for extensions the store never writes.
func ContentTypeFor(imagePath string) (string, error) {
	ct, ok := supportedExtensions[strings.ToLower(path.Ext(imagePath))]
	if !ok {
		return "", ErrUnsupportedImage
	}
	return ct, nil
}

type Store struct {
	rootPath string
}

func NewStore(rootPath string) (*Store, error) {
	if rootPath == "" {
		return nil, errors.New("root path cannot be empty")
	}
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("create images root: %w", err)
	}
	return &Store{rootPath: rootPath}, nil
}

// Save writes the image under a fresh random file name and returns the name
// for the caller to persist. The extension decides the served content type.
func (s *Store) Save(ctx context.Context, extension string, src io.Reader) (_ string, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "images.save")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	extension = strings.ToLower(extension)
	if _, ok := supportedExtensions[extension]; !ok {
		return "", ErrUnsupportedImage
	}

	fileName := uuid.New().String() + extension
	span.SetAttributes(attribute.String("image.file", fileName))

	dst, err := os.Create(path.Join(s.rootPath, fileName))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}

	log.Debugf("images store: saved new image: %s", fileName)
	return fileName, nil
}

// Open returns the image bytes for a stored file name.
func (s *Store) Open(ctx context.Context, fileName string) (_ io.ReadCloser, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "images.open")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("image.file", fileName))

	if strings.Contains(fileName, "..") || strings.Contains(fileName, "/") || strings.Contains(fileName, "\\") {
		return nil, ErrImageNotFound
	}

	f, err := os.Open(path.Join(s.rootPath, fileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Store) Delete(ctx context.Context, fileName string) (err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "images.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("image.file", fileName))

	if strings.Contains(fileName, "..") || strings.Contains(fileName, "/") || strings.Contains(fileName, "\\") {
		return ErrImageNotFound
	}

	err = os.Remove(path.Join(s.rootPath, fileName))
	if errors.Is(err, os.ErrNotExist) {
		return ErrImageNotFound
	}
	if err != nil {
		return err
	}

	log.Debugf("images store: image [%s] deleted", fileName)
	return nil
}
