package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

type GCSService struct {
	client *storage.Client
}

func NewGCSService(ctx context.Context) (*GCSService, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSService{client: client}, nil
}

func (s *GCSService) UploadObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	writer := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

func (s *GCSService) DeleteObject(ctx context.Context, bucket, key string) error {
	return s.client.Bucket(bucket).Object(key).Delete(ctx)
}

// SignedURL returns a time-limited read URL for the object.
func (s *GCSService) SignedURL(bucket, key string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign object URL: %w", err)
	}
	return url, nil
}

// GenerateObjectKey builds a collision-free storage key that keeps the
// original extension for content-type inference on download.
func GenerateObjectKey(userID uuid.UUID, fileName string) string {
	return fmt.Sprintf("documents/%s/%s%s", userID, uuid.New(), filepath.Ext(fileName))
}
