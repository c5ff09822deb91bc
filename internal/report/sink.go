package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/iyou00/chatui/internal/config"
)

// Sink stores finished report HTML. Write returns the location recorded on
// the Report; Open reads it back.
type Sink interface {
	Write(ctx context.Context, name string, html []byte) (string, error)
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// NewSink returns an S3Sink when a bucket is configured, else a DirSink.
func NewSink(ctx context.Context, cfg config.ReportsConfig) (Sink, error) {
	if cfg.S3.Bucket != "" {
		return NewS3Sink(ctx, cfg.S3)
	}
	return &DirSink{Dir: cfg.Dir}, nil
}

// DirSink writes reports into a local directory.
type DirSink struct {
	Dir string
}

// Write implements Sink.
func (s *DirSink) Write(_ context.Context, name string, html []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("report: create dir %s: %w", s.Dir, err)
	}
	p := filepath.Join(s.Dir, name)
	if err := os.WriteFile(p, html, 0644); err != nil {
		return "", fmt.Errorf("report: write %s: %w", p, err)
	}
	return p, nil
}

// Open implements Sink. Locations outside Dir are rejected.
func (s *DirSink) Open(_ context.Context, location string) (io.ReadCloser, error) {
	rel, err := filepath.Rel(s.Dir, location)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("report: open %s: outside report dir", location)
	}
	f, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("report: open %s: %w", location, err)
	}
	return f, nil
}

// s3API is the subset of *s3.Client used by S3Sink.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Sink writes reports to an S3 bucket (or an S3-compatible service such as
// MinIO when Endpoint is set). Locations have the form s3://bucket/key.
type S3Sink struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Sink creates an S3Sink from config.
func NewS3Sink(ctx context.Context, cfg config.S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("report: s3 bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("report: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Sink(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Sink(client s3API, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Sink) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Write implements Sink.
func (s *S3Sink) Write(ctx context.Context, name string, html []byte) (string, error) {
	key := s.key(name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(html),
		ContentType: aws.String("text/html; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("report: put s3://%s/%s: %w", s.bucket, key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// Open implements Sink.
func (s *S3Sink) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	key, ok := strings.CutPrefix(location, "s3://"+s.bucket+"/")
	if !ok {
		return nil, fmt.Errorf("report: open %s: not in bucket %s", location, s.bucket)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("report: get %s: %w", location, err)
	}
	return out.Body, nil
}
