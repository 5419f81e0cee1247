// pkg/apl/s3.go
package apl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"storeapp/pkg/apperr"
)

// S3Config addresses a bucket on AWS S3 or any S3-compatible store (MinIO, R2).
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client builds the SDK client. Static credentials are used when given,
// otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// s3APL stores one JSON object per tenant at prefix+escaped(tenantAPIURL).
// PutObject replaces an object atomically, so readers see either version.
type s3APL struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3(client *s3.Client, bucket, prefix string) APL {
	return &s3APL{client: client, bucket: bucket, prefix: prefix}
}

func (s *s3APL) key(tenantAPIURL string) string {
	return s.prefix + url.QueryEscape(tenantAPIURL) + ".json"
}

func isNoSuchKey(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

func (s *s3APL) read(ctx context.Context, key string) (*AuthData, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, nil
		}
		return nil, apperr.Storage(err, "apl: s3 get object", nil)
	}
	defer out.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(out.Body, 1<<20))
	if err != nil {
		return nil, apperr.Storage(err, "apl: s3 read object", nil)
	}
	d, err := decode(raw)
	if err != nil {
		return nil, apperr.Storage(err, "apl: s3 object is not auth data", nil)
	}
	return d, nil
}

func (s *s3APL) Get(ctx context.Context, tenantAPIURL string) (*AuthData, error) {
	if err := checkKey(tenantAPIURL); err != nil {
		return nil, err
	}
	return s.read(ctx, s.key(tenantAPIURL))
}

func (s *s3APL) Set(ctx context.Context, data AuthData) error {
	if err := checkAuthData(data); err != nil {
		return err
	}
	raw, err := encode(data)
	if err != nil {
		return apperr.Internal(err, "apl: encode auth data")
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(data.TenantAPIURL)),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return apperr.Storage(err, "apl: s3 put object", nil)
	}
	return nil
}

func (s *s3APL) Delete(ctx context.Context, tenantAPIURL string) error {
	if err := checkKey(tenantAPIURL); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(tenantAPIURL)),
	})
	if err != nil && !isNoSuchKey(err) {
		return apperr.Storage(err, "apl: s3 delete object", nil)
	}
	return nil
}

func (s *s3APL) GetAll(ctx context.Context) ([]AuthData, error) {
	out := []AuthData{}
	pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, apperr.Storage(err, "apl: s3 list objects", nil)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			d, err := s.read(ctx, key)
			if err != nil {
				return nil, err
			}
			// deleted between list and get
			if d == nil {
				continue
			}
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantAPIURL < out[j].TenantAPIURL })
	return out, nil
}

func (s *s3APL) IsReady(ctx context.Context) ReadyResult {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return ReadyResult{Reason: err}
	}
	return ReadyResult{Ready: true}
}

func (s *s3APL) IsConfigured(ctx context.Context) ConfiguredResult {
	if s.client == nil || s.bucket == "" {
		return ConfiguredResult{Reason: errors.New("S3_BUCKET is not configured")}
	}
	return ConfiguredResult{Configured: true}
}
