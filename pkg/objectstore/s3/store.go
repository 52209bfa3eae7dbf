// Package s3 provides an S3- and R2-backed object store implementation.
//
// Every chunk is always written as its own object via PutObject so it can be
// read back individually before the upload completes (random-read support,
// missing-chunk resume, maintenance). When the upload is eligible for
// server-side multipart assembly, each chunk is additionally staged as a
// multipart part; CompleteUpload finalizes that multipart upload.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/dfsingest/dfsingest/pkg/objectstore"
)

// Config holds configuration for the S3/R2 object store.
type Config struct {
	// Bucket is the bucket name.
	Bucket string

	// Region is the region. For R2, pass "auto".
	Region string

	// Endpoint overrides the default S3 endpoint (required for R2).
	Endpoint string

	// AccessKeyID and SecretAccessKey set static credentials, used for R2
	// (which has no IAM role chain). Leave empty to use the default AWS
	// credential chain.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle forces path-style addressing, required for R2 and
	// most S3-compatible services.
	ForcePathStyle bool
}

// Store is an S3/R2-backed implementation of objectstore.Store.
type Store struct {
	client *s3.Client
	bucket string
}

// New creates a new store with an existing S3 client.
func New(client *s3.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// NewFromConfig builds an S3 client from cfg and returns a Store.
func NewFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(staticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return New(client, cfg.Bucket), nil
}

// InitializeUpload creates a multipart upload when requested and supported,
// returning its upload ID as the opaque token.
func (s *Store) InitializeUpload(ctx context.Context, uploadID string, multipart bool) (string, error) {
	if !multipart {
		return "", nil
	}

	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectstore.AssembledKey(uploadID)),
	})
	if err != nil {
		return "", fmt.Errorf("s3 create multipart upload: %w", err)
	}

	return aws.ToString(out.UploadId), nil
}

// WriteChunk always writes the chunk as its own object. When multipartToken
// is non-empty it additionally stages the chunk as part index+1 of the
// multipart upload, returning that part's etag.
func (s *Store) WriteChunk(ctx context.Context, uploadID string, index int, data []byte, multipartToken string) (string, string, error) {
	key := objectstore.ChunkKey(uploadID, index)

	putOut, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", "", fmt.Errorf("s3 put object: %w", err)
	}

	if multipartToken == "" {
		return key, aws.ToString(putOut.ETag), nil
	}

	partOut, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(objectstore.AssembledKey(uploadID)),
		UploadId:   aws.String(multipartToken),
		PartNumber: aws.Int32(int32(index + 1)),
		Body:       bytes.NewReader(data),
	})
	if err != nil {
		return "", "", fmt.Errorf("s3 upload part %d: %w", index+1, err)
	}

	return key, aws.ToString(partOut.ETag), nil
}

// CompleteUpload finalizes the multipart upload, ordering parts ascending
// by part number as S3 requires.
func (s *Store) CompleteUpload(ctx context.Context, uploadID string, multipartToken string, parts []objectstore.Part) error {
	if multipartToken == "" {
		return nil
	}

	sorted := make([]objectstore.Part, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	completedParts := make([]types.CompletedPart, len(sorted))
	for i, p := range sorted {
		completedParts[i] = types.CompletedPart{
			PartNumber: aws.Int32(int32(p.PartNumber)),
			ETag:       aws.String(p.ETag),
		}
	}

	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(objectstore.AssembledKey(uploadID)),
		UploadId:        aws.String(multipartToken),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completedParts},
	})
	if err != nil {
		return fmt.Errorf("s3 complete multipart upload: %w", err)
	}

	return nil
}

// ReadChunk reads a complete object.
func (s *Store) ReadChunk(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, objectstore.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object body: %w", err)
	}

	return data, nil
}

// ListKeys lists all keys under prefix, paginating through ListObjectsV2.
func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	return keys, nil
}

// DeleteKey removes a single key. Deleting a non-existent key is not an error.
func (s *Store) DeleteKey(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

// SupportsMultipart always returns true for S3/R2.
func (s *Store) SupportsMultipart() bool { return true }

func isNotFoundError(err error) bool {
	var nf *types.NoSuchKey
	if errors.As(err, &nf) {
		return true
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}

var _ objectstore.Store = (*Store)(nil)
