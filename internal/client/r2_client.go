package client

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hashicorp/go-multierror"

	"github.com/wavedeck/studio/internal/config"
)

const (
	defaultSignedURLTTL = 24 * time.Hour
	// S3 DeleteObjects accepts at most this many keys per call.
	maxDeleteBatch = 1000
	artifactCache  = "public, max-age=31536000, immutable"
)

// ObjectStore is the object storage the artifact mirror writes to. Keys are
// relative to the store's own prefix.
type ObjectStore interface {
	// Put stores data and returns a URL the object can be fetched from.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Remove deletes keys; missing keys are not an error.
	Remove(ctx context.Context, keys []string) error
	IsConfigured() bool
}

// R2Client stores mirrored artifacts in a Cloudflare R2 bucket. Objects are
// served from the public URL when one is configured and through presigned
// links otherwise.
type R2Client struct {
	s3        *s3.Client
	presigner *s3.PresignClient
	bucket    string
	prefix    string
	publicURL string
	signedTTL time.Duration
}

func NewR2Client(cfg *config.R2Config) (*R2Client, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.BucketName == "" {
		return nil, fmt.Errorf("R2 configuration incomplete")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.AccountID == "" {
			return nil, fmt.Errorf("R2 configuration incomplete: account id or endpoint required")
		}
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(strings.TrimRight(endpoint, "/"))
		o.UsePathStyle = true
	})

	ttl := cfg.SignedURLTTL
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}
	return &R2Client{
		s3:        client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.BucketName,
		prefix:    strings.Trim(cfg.KeyPrefix, "/"),
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		signedTTL: ttl,
	}, nil
}

// objectKey maps a store-relative key to the bucket key.
func (c *R2Client) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if c.prefix == "" {
		return key
	}
	return path.Join(c.prefix, key)
}

// Put uploads an immutable object. If no fetchable URL can be produced the
// object is removed again and the error returned.
func (c *R2Client) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objectKey := c.objectKey(key)
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String(artifactCache),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", objectKey, err)
	}

	url, err := c.fetchURL(ctx, objectKey)
	if err != nil {
		if rmErr := c.Remove(context.WithoutCancel(ctx), []string{key}); rmErr != nil {
			err = multierror.Append(err, rmErr)
		}
		return "", err
	}
	return url, nil
}

func (c *R2Client) fetchURL(ctx context.Context, objectKey string) (string, error) {
	if c.publicURL != "" {
		return c.publicURL + "/" + objectKey, nil
	}
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(c.signedTTL))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", objectKey, err)
	}
	return req.URL, nil
}

// Remove deletes keys in batches and reports every key the bucket refused.
func (c *R2Client) Remove(ctx context.Context, keys []string) error {
	ids := make([]types.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		ids = append(ids, types.ObjectIdentifier{Key: aws.String(c.objectKey(key))})
	}

	var result *multierror.Error
	for start := 0; start < len(ids); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(ids))
		out, err := c.s3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &types.Delete{Objects: ids[start:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("delete objects: %w", err))
			continue
		}
		for _, e := range out.Errors {
			result = multierror.Append(result, fmt.Errorf("delete %s: %s",
				aws.ToString(e.Key), aws.ToString(e.Message)))
		}
	}
	return result.ErrorOrNil()
}

func (c *R2Client) IsConfigured() bool {
	return c != nil && c.s3 != nil && c.bucket != ""
}
