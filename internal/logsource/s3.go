package logsource

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rotormetrics/prophet/internal/model"
	"github.com/rotormetrics/prophet/internal/vehicle"
)

// S3Config holds connection parameters for an S3-compatible log store.
type S3Config struct {
	Endpoint     string // host[:port]; defaults to AWS S3
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	UseSSL       bool
	Bucket       string
	Prefix       string
}

// S3Source lists and opens flight logs in an S3-compatible bucket.
type S3Source struct {
	client *minio.Client
	bucket string
	prefix string
	filter *vehicle.Filter
}

// NewS3Source connects to the object store. Static credentials are used
// when provided, otherwise the usual AWS environment chain applies.
func NewS3Source(cfg S3Config, filter *vehicle.Filter) (*S3Source, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3: bucket is required")
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
		return nil, fmt.Errorf("s3: connecting to %s: %w", endpoint, err)
	}

	return &S3Source{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		filter: filter,
	}, nil
}

// List walks the bucket under the prefix and returns one LogRef per .ulg
// object that passes the vehicle filter, in listing order.
func (s *S3Source) List(ctx context.Context) ([]model.LogRef, error) {
	var refs []model.LogRef
	opts := minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("s3: listing %s/%s: %w", s.bucket, s.prefix, classifyS3(obj.Err))
		}
		if !isLogKey(obj.Key) {
			continue
		}
		if !s.filter.MatchKey(obj.Key) {
			continue
		}
		refs = append(refs, model.LogRef{
			Identifier: obj.Key,
			VehicleID:  vehicle.InferFromKey(obj.Key),
			SizeHint:   obj.Size,
		})
	}
	return refs, nil
}

// Open returns the object's byte stream. The object is fetched lazily;
// network errors can surface on the first read and are classified by the
// returned reader.
func (s *S3Source) Open(ctx context.Context, identifier string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, identifier, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("s3: opening %s: %w", identifier, classifyS3(err))
	}
	return &classifyingReader{obj: obj, identifier: identifier}, nil
}

// classifyingReader maps read-time S3 errors onto the source taxonomy so
// callers can distinguish missing objects from transient failures.
type classifyingReader struct {
	obj        *minio.Object
	identifier string
}

func (r *classifyingReader) Read(p []byte) (int, error) {
	n, err := r.obj.Read(p)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("s3: reading %s: %w", r.identifier, classifyS3(err))
	}
	return n, err
}

func (r *classifyingReader) Close() error {
	return r.obj.Close()
}
