package report

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/houston/pkg/log"
	"github.com/autopeer-io/houston/pkg/options"
)

// S3Sink uploads each report as {prefix}/{runID}.json.
type S3Sink struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Sink creates the client. The bucket is checked on first use.
func NewS3Sink(opts *options.S3Options) (*S3Sink, error) {
	minioOpts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	}
	if opts.InsecureSkipVerify {
		minioOpts.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &S3Sink{client: client, bucket: opts.BucketName, prefix: opts.Prefix}, nil
}

func (s *S3Sink) Name() string { return "s3" }

// CheckBucket creates the bucket when it does not exist.
func (s *S3Sink) CheckBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Info("Bucket does not exist, creating...", "bucket", s.bucket)
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// ObjectKey returns where the report of run is stored.
func (s *S3Sink) ObjectKey(run string) string {
	return path.Join(s.prefix, run+".json")
}

func (s *S3Sink) Write(ctx context.Context, r *Report) error {
	if err := s.CheckBucket(ctx); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.ObjectKey(r.RunID), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to upload report: %w", err)
	}
	return nil
}
