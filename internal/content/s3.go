package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"nifty-go/internal/config"
	"nifty-go/internal/registry"
)

// S3API is the subset of *s3.Client the store uses.
type S3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store keeps content in an S3 (or S3-compatible) bucket under
// <prefix><sha256>. Objects are written once and never modified.
type S3Store struct {
	client    S3API
	uploader  *manager.Uploader
	bucket    string
	keyPrefix string
}

// S3StoreConfig contains configuration for the S3 content store.
type S3StoreConfig struct {
	Client S3API
	Bucket string

	// KeyPrefix is prepended to every object key, e.g. "nifty/content/".
	KeyPrefix string
}

func NewS3Store(cfg S3StoreConfig) (*S3Store, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	return &S3Store{
		client:    cfg.Client,
		uploader:  manager.NewUploader(cfg.Client),
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// NewS3StoreFromConfig builds an S3 client from the content config and
// wraps it in an S3Store. Static credentials are used when an access key
// is configured, otherwise the default AWS credential chain applies.
func NewS3StoreFromConfig(ctx context.Context, cfg config.ContentConfig) (*S3Store, error) {
	var opts []func(*awsConfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsConfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3Store(S3StoreConfig{
		Client:    client,
		Bucket:    cfg.S3Bucket,
		KeyPrefix: cfg.S3Prefix,
	})
}

func (s *S3Store) key(cid string) string {
	return s.keyPrefix + cid
}

// Put uploads the content unless an object with the same digest exists.
func (s *S3Store) Put(ctx context.Context, r io.Reader, size int64) (string, error) {
	data, cid, err := digest(r, size)
	if err != nil {
		return "", err
	}

	exists, err := s.exists(ctx, cid)
	if err != nil {
		return "", err
	}
	if exists {
		return cid, nil
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(cid)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to bucket %q: %w", cid, s.bucket, err)
	}
	return cid, nil
}

func (s *S3Store) exists(ctx context.Context, cid string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(cid)),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check object %s: %w", cid, err)
}

func (s *S3Store) Get(ctx context.Context, cid string, w io.Writer) error {
	if err := checkCID(cid); err != nil {
		return err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(cid)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return fmt.Errorf("%w: %s", ErrNotFound, cid)
		}
		return fmt.Errorf("failed to get object %s: %w", cid, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("failed to read object %s: %w", cid, err)
	}
	return nil
}

// ValidateSetup verifies the bucket exists and is accessible.
func (s *S3Store) ValidateSetup(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to access bucket %q: %w", s.bucket, err)
	}
	return nil
}

var _ registry.ContentStore = (*S3Store)(nil)
