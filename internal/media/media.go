// Package media hands out presigned upload URLs for user images stored in
// an S3-compatible bucket.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"moai/api/internal/util"
)

var (
	ErrNotConfigured = errors.New("media storage not configured")
	ErrInvalidUpload = errors.New("invalid upload request")
)

// Purpose groups objects by what they are attached to.
type Purpose string

const (
	PurposeAvatar  Purpose = "avatars"
	PurposeToolkit Purpose = "toolkits"
	PurposeNews    Purpose = "news"
	PurposeProject Purpose = "projects"
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

const uploadTTL = 15 * time.Minute

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type Store struct {
	client *minio.Client
	bucket string
}

// Upload is what the client needs to PUT the object directly.
type Upload struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"uploadUrl"`
	PublicURL string    `json:"publicUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewStore returns nil when no endpoint is configured.
func NewStore(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, nil
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket on first start.
func (s *Store) EnsureBucket(ctx context.Context) error {
	if s == nil {
		return ErrNotConfigured
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}

// PresignUpload reserves an object key under ownerID and signs a PUT for it.
func (s *Store) PresignUpload(ctx context.Context, ownerID string, purpose Purpose, contentType string) (Upload, error) {
	if s == nil {
		return Upload{}, ErrNotConfigured
	}
	key, err := ObjectKey(ownerID, purpose, contentType)
	if err != nil {
		return Upload{}, err
	}
	signed, err := s.client.PresignedPutObject(ctx, s.bucket, key, uploadTTL)
	if err != nil {
		return Upload{}, fmt.Errorf("presign upload: %w", err)
	}
	return Upload{
		Key:       key,
		UploadURL: signed.String(),
		PublicURL: s.PublicURL(key),
		ExpiresAt: time.Now().Add(uploadTTL).UTC(),
	}, nil
}

// PublicURL is the unsigned object address; the bucket serves images
// anonymously.
func (s *Store) PublicURL(key string) string {
	if s == nil || key == "" {
		return ""
	}
	endpoint := *s.client.EndpointURL()
	endpoint.Path = path.Join("/", s.bucket, key)
	return endpoint.String()
}

// ObjectKey builds purpose/owner/<id><ext> after validating the inputs.
func ObjectKey(ownerID string, purpose Purpose, contentType string) (string, error) {
	switch purpose {
	case PurposeAvatar, PurposeToolkit, PurposeNews, PurposeProject:
	default:
		return "", fmt.Errorf("%w: unknown purpose %q", ErrInvalidUpload, purpose)
	}
	ext, ok := allowedTypes[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", fmt.Errorf("%w: content type %q is not an allowed image type", ErrInvalidUpload, contentType)
	}
	if strings.TrimSpace(ownerID) == "" {
		return "", fmt.Errorf("%w: owner required", ErrInvalidUpload)
	}
	return string(purpose) + "/" + url.PathEscape(ownerID) + "/" + util.NewID("img") + ext, nil
}
