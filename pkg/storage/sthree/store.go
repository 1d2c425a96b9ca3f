package sthree

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/oneconcern/depot/pkg/storage"
	"github.com/oneconcern/depot/pkg/storage/status"
	"go.uber.org/zap"
)

// Option is a functor to pass optional parameters to the s3 store
type Option func(*s3FS)

// Bucket sets the bucket holding the repository
func Bucket(bucket string) Option {
	return func(fs *s3FS) {
		fs.bucket = bucket
	}
}

// Prefix sets the key prefix of the repository within its bucket
func Prefix(prefix string) Option {
	return func(fs *s3FS) {
		fs.prefix = strings.Trim(prefix, "/")
	}
}

// AWSConfig overrides the AWS session configuration (credentials, region, endpoint...)
func AWSConfig(cfg *aws.Config) Option {
	return func(fs *s3FS) {
		fs.awsConfig = cfg
	}
}

// Logger specifies a logger for this store
func Logger(logger *zap.Logger) Option {
	return func(fs *s3FS) {
		if logger != nil {
			fs.l = logger
		}
	}
}

// New builds an S3 store
func New(option Option, options ...Option) (storage.Store, error) {
	fs := &s3FS{
		l: zap.NewNop(),
	}
	option(fs)
	for _, apply := range options {
		apply(fs)
	}
	if fs.bucket == "" {
		return nil, status.ErrInvalidResource.Wrapf("an s3 store requires a bucket")
	}

	sess, err := session.NewSession(fs.awsConfig)
	if err != nil {
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	fs.s3 = s3.New(sess)
	fs.uploader = s3manager.NewUploaderWithClient(fs.s3)
	return fs, nil
}

// FromURL builds an S3 store from a s3://bucket/prefix URL
func FromURL(u string, options ...Option) (storage.Store, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, status.ErrInvalidResource.Wrap(err)
	}
	if parsed.Scheme != "s3" {
		return nil, status.ErrInvalidResource.Wrapf("unexpected scheme %q in %q", parsed.Scheme, u)
	}
	return New(Bucket(parsed.Host), append([]Option{Prefix(parsed.Path)}, options...)...)
}

type s3FS struct {
	bucket    string
	prefix    string
	awsConfig *aws.Config
	s3        *s3.S3
	uploader  *s3manager.Uploader
	l         *zap.Logger
}

func (s *s3FS) key(key string) string {
	return path.Join(s.prefix, strings.TrimLeft(key, "/"))
}

func (s *s3FS) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.s3.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})

	if err != nil {
		err = toSentinelErrors(err)
		if ignoreNotExists(err) == nil {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *s3FS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		err = toSentinelErrors(err)
		if status.IsNotExists(err) {
			s.l.Debug("object not found", zap.String("bucket", s.bucket), zap.String("key", s.key(key)))
		}
		return nil, err
	}
	return obj.Body, nil
}

func (s *s3FS) Put(ctx context.Context, key string, rdr io.Reader) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
		Body:   rdr,
	})
	return toSentinelErrors(err)
}

func (s *s3FS) Delete(ctx context.Context, key string) error {
	_, err := s.s3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	return ignoreNotExists(toSentinelErrors(err))
}

func (s *s3FS) String() string {
	if s.prefix == "" {
		return "s3@" + s.bucket
	}
	return "s3@" + s.bucket + "/" + s.prefix
}
