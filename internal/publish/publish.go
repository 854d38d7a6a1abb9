// Package publish uploads run artifacts to an S3-compatible bucket so a
// fleet dashboard can pick them up. Each run lands under a timestamped
// key prefix; nothing is ever overwritten.
package publish

import (
	"context"
	"fmt"
	"log"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds uploader parameters for artifact publishing.
type Config struct {
	BucketURL    string // s3://bucket/prefix, prefix optional
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	UseSSL       bool
}

// Publisher uploads artifact files to one bucket/prefix.
type Publisher struct {
	client    objectPutter
	bucket    string
	keyPrefix string
	now       func() time.Time
}

// objectPutter is the slice of the minio client the publisher needs.
type objectPutter interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// NewPublisher constructs a publisher from an S3 bucket URL and
// credentials. Static credentials are used when provided, otherwise the
// usual AWS environment chain applies.
func NewPublisher(cfg Config) (*Publisher, error) {
	bucket, prefix, err := parseBucketURL(cfg.BucketURL)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
		cfg.UseSSL = true
	}

	var creds *credentials.Credentials
	if strings.TrimSpace(cfg.AccessKey) != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken)
	} else {
		creds = credentials.NewEnvAWS()
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("publish: connecting to %s: %w", endpoint, err)
	}

	return &Publisher{
		client:    client,
		bucket:    bucket,
		keyPrefix: prefix,
		now:       time.Now,
	}, nil
}

// Upload pushes every named file under a run-timestamped key prefix and
// returns the prefix used.
func (p *Publisher) Upload(ctx context.Context, paths []string) (string, error) {
	runPrefix := path.Join(p.keyPrefix, "runs", p.now().UTC().Format("20060102-150405"))
	for _, localPath := range paths {
		key := path.Join(runPrefix, filepath.Base(localPath))
		opts := minio.PutObjectOptions{ContentType: contentType(localPath)}
		if _, err := p.client.FPutObject(ctx, p.bucket, key, localPath, opts); err != nil {
			return "", fmt.Errorf("publish: upload %s: %w", key, err)
		}
		log.Printf("publish: uploaded s3://%s/%s", p.bucket, key)
	}
	return runPrefix, nil
}

func contentType(localPath string) string {
	switch ext := filepath.Ext(localPath); ext {
	case ".md":
		return "text/markdown"
	case ".csv":
		return "text/csv"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}

// parseBucketURL splits s3://bucket/prefix into its parts.
func parseBucketURL(raw string) (bucket string, prefix string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("publish: bucket URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("publish: invalid bucket URL %q: %w", raw, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("publish: bucket URL must look like s3://bucket/prefix, got %q", raw)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}
