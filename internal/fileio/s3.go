package fileio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/mesh-intelligence/schematic/pkg/types"
)

// DriverS3 names the S3 file system.
const DriverS3 = types.DriverS3

const defaultS3Region = "us-east-1"

// S3Options configures NewS3. Endpoint and PathStyle target S3-compatible
// stores such as MinIO. Static keys are optional; the default credential
// chain is used otherwise.
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	PathStyle       bool
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	HTTPClient      *http.Client
}

// S3 stores each file as one object under Prefix. Directories are implied by
// key prefixes; CreateDirectory writes an empty "dir/" marker object.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 builds an S3 client from opts.
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 file system: %w", types.ErrS3BucketEmpty)
	}
	region := opts.Region
	if region == "" {
		region = defaultS3Region
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3 file system: loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = opts.PathStyle
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		if opts.HTTPClient != nil {
			o.HTTPClient = opts.HTTPClient
		}
	})
	return NewS3FromClient(client, opts.Bucket, opts.Prefix), nil
}

// NewS3FromClient wraps an existing client.
func NewS3FromClient(client *s3.Client, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: cleanKey(prefix)}
}

func (*S3) Name() string { return DriverS3 }

func (s *S3) key(p string) string {
	k := cleanKey(p)
	if s.prefix == "" {
		return k
	}
	return path.Join(s.prefix, k)
}

func (s *S3) ReadAllText(ctx context.Context, p string) (string, error) {
	const op = "read"
	if err := checkContext(ctx, DriverS3, op, p); err != nil {
		return "", err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: aws.String(s.key(p))})
	if isS3NotFound(err) {
		return "", notFound(DriverS3, op, p)
	}
	if err != nil {
		return "", ioError(DriverS3, op, p, err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return "", ioError(DriverS3, op, p, err)
	}
	return string(b), nil
}

func (s *S3) ReadAllLines(ctx context.Context, p string) ([]string, error) {
	text, err := s.ReadAllText(ctx, p)
	if err != nil {
		return nil, err
	}
	return types.SplitLines(text), nil
}

func (s *S3) WriteAllText(ctx context.Context, p, text string) error {
	const op = "write"
	if err := checkContext(ctx, DriverS3, op, p); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         aws.String(s.key(p)),
		Body:        strings.NewReader(text),
		ContentType: aws.String(contentType(p)),
	})
	return ioError(DriverS3, op, p, err)
}

func (s *S3) FileExists(ctx context.Context, p string) (bool, error) {
	const op = "stat"
	if err := checkContext(ctx, DriverS3, op, p); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: aws.String(s.key(p))})
	if isS3NotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, ioError(DriverS3, op, p, err)
	}
	return true, nil
}

func (s *S3) DirectoryExists(ctx context.Context, p string) (bool, error) {
	const op = "stat"
	if err := checkContext(ctx, DriverS3, op, p); err != nil {
		return false, err
	}
	prefix := s.key(p)
	if prefix == "" {
		return true, nil
	}
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  &s.bucket,
		Prefix:  aws.String(prefix + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, ioError(DriverS3, op, p, err)
	}
	return len(out.Contents) > 0, nil
}

func (s *S3) CreateDirectory(ctx context.Context, p string) error {
	const op = "mkdir"
	if err := checkContext(ctx, DriverS3, op, p); err != nil {
		return err
	}
	prefix := s.key(p)
	if prefix == "" {
		return nil
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    aws.String(prefix + "/"),
		Body:   strings.NewReader(""),
	})
	return ioError(DriverS3, op, p, err)
}

func isS3NotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

func contentType(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "text/plain; charset=utf-8"
	}
}
