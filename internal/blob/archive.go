// Package blob keeps exported artifacts in S3-compatible object storage and
// hands out time-limited download links.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrDisabled is returned when no object storage is configured.
var ErrDisabled = errors.New("object storage not configured")

const defaultLinkTTL = 15 * time.Minute

// Config describes the object storage endpoint.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	LinkTTL   time.Duration
}

type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, params url.Values) (*url.URL, error)
}

// Link is a stored artifact and its presigned download URL.
type Link struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Archive stores export artifacts in one bucket.
type Archive struct {
	client objectAPI
	bucket string
	ttl    time.Duration
	now    func() time.Time
}

// New connects to the endpoint. An empty endpoint gives ErrDisabled so the
// caller can run without archiving.
func New(cfg Config) (*Archive, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, ErrDisabled
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	return newArchive(client, cfg.Bucket, cfg.LinkTTL), nil
}

func newArchive(client objectAPI, bucket string, ttl time.Duration) *Archive {
	if ttl <= 0 {
		ttl = defaultLinkTTL
	}
	return &Archive{client: client, bucket: bucket, ttl: ttl, now: time.Now}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	log.Printf("blob: created bucket %s", a.bucket)
	return nil
}

// Ping reports whether the bucket is reachable.
func (a *Archive) Ping(ctx context.Context) error {
	_, err := a.client.BucketExists(ctx, a.bucket)
	return err
}

// Key builds the object key for an export of a file.
func (a *Archive) Key(ownerID, fileCode, filename string) string {
	stamp := a.now().UTC().Format("20060102T150405Z")
	return path.Join("exports", ownerID, fileCode, stamp+"-"+path.Base(filename))
}

// Put uploads data under key and returns a presigned GET link that
// downloads it as filename.
func (a *Archive) Put(ctx context.Context, key, filename, mimeType string, data []byte) (Link, error) {
	if a == nil {
		return Link{}, ErrDisabled
	}
	info, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return Link{}, fmt.Errorf("upload %s: %w", key, err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	signed, err := a.client.PresignedGetObject(ctx, a.bucket, key, a.ttl, params)
	if err != nil {
		return Link{}, fmt.Errorf("presign %s: %w", key, err)
	}
	return Link{
		Key:       key,
		URL:       signed.String(),
		Size:      info.Size,
		ExpiresAt: a.now().Add(a.ttl).UTC(),
	}, nil
}
