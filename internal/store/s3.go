package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store replicates state through an S3-compatible bucket instead of a git
// repository. Every operation goes straight to the bucket, so Sync and
// Flush have nothing to do; consistency is whatever the object store
// provides, which still satisfies last-writer-wins per key.
type S3Store struct {
	client *s3.Client
	bucket string
	root   string // key prefix within the bucket, may be empty
}

// OpenS3 creates an S3-backed store. If endpoint is non-empty, path-style
// addressing is enabled (for MinIO and similar).
func OpenS3(ctx context.Context, bucket, root, region, endpoint string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var opts []func(*s3.Options)
	if endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Store{
		client: s3.NewFromConfig(cfg, opts...),
		bucket: bucket,
		root:   strings.Trim(root, "/"),
	}, nil
}

func (s *S3Store) objectKey(key string) string {
	if s.root == "" {
		return key
	}
	return s.root + "/" + key
}

// GetAll lists and fetches every object under the prefix.
func (s *S3Store) GetAll(ctx context.Context, prefix string) (map[string][]byte, error) {
	full := s.objectKey(prefix) + "/"
	out := make(map[string][]byte)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(full),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			name := aws.ToString(obj.Key)
			resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(name),
			})
			if err != nil {
				return nil, fmt.Errorf("s3 get %s: %w", name, err)
			}
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("s3 read %s: %w", name, err)
			}
			key := name
			if s.root != "" {
				key = strings.TrimPrefix(name, s.root+"/")
			}
			out[key] = data
		}
	}
	return out, nil
}

// Put uploads the value immediately.
func (s *S3Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

// Delete removes the object. Deleting an absent object succeeds, matching
// the store contract.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

// Sync is a no-op: reads always hit the bucket directly.
func (s *S3Store) Sync(ctx context.Context) error { return nil }

// Flush is a no-op: writes are never staged.
func (s *S3Store) Flush(ctx context.Context, message string) error { return nil }
