// Package images caches card artwork in object storage so the UI never
// re-downloads from the card database on every render.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrImageNotFound = errors.New("card image not found")

type Service struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and makes sure the bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	return &Service{client: client, bucket: bucket}, nil
}

func objectKey(cardID string) string {
	return "cards/" + cardID + ".png"
}

// Put stores a card image.
func (s *Service) Put(ctx context.Context, cardID string, data io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectKey(cardID), data, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("store image for %s: %w", cardID, err)
	}
	return nil
}

// Get streams a cached card image. The caller closes the reader.
func (s *Service) Get(ctx context.Context, cardID string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(cardID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("read image for %s: %w", cardID, err)
	}
	// GetObject is lazy; Stat forces the existence check.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrImageNotFound
		}
		return nil, fmt.Errorf("stat image for %s: %w", cardID, err)
	}
	return obj, nil
}

// Exists reports whether an image is already cached.
func (s *Service) Exists(ctx context.Context, cardID string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, objectKey(cardID), minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("stat image for %s: %w", cardID, err)
	}
	return true, nil
}
