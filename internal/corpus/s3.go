package corpus

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/xxxsen/ragchat/internal/config"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

type s3Source struct {
	cfg config.S3Config
}

func init() {
	Register("s3", createS3Source)
}

func createS3Source(cfg config.CorpusConfig) (Source, error) {
	if cfg.S3.Endpoint == "" || cfg.S3.SecretID == "" || cfg.S3.SecretKey == "" {
		return nil, appErr.NewConfigurationError("corpus.s3", "endpoint/secret_id/secret_key are required")
	}
	return &s3Source{cfg: cfg.S3}, nil
}

func (s *s3Source) client(ctx context.Context) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(s.cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s.cfg.SecretID, s.cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}
	endpoint := buildEndpoint(s.cfg.Endpoint, s.cfg.UseSSL)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}), nil
}

// Walk lists bucket/prefix and streams each object. Names keep the
// s3://bucket/ prefix so they stay distinct from local sources.
func (s *s3Source) Walk(ctx context.Context, location string, fn func(name string, r io.Reader) error) error {
	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(location, "/"), "/")
	if bucket == "" {
		return fmt.Errorf("s3 location needs a bucket: %w", appErr.ErrInvalid)
	}
	client, err := s.client(ctx)
	if err != nil {
		return err
	}
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	pager := s3.NewListObjectsV2Paginator(client, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			if err := s.visit(ctx, client, bucket, key, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *s3Source) visit(ctx context.Context, client *s3.Client, bucket, key string, fn func(name string, r io.Reader) error) error {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	return fn("s3://"+bucket+"/"+key, out.Body)
}

func buildEndpoint(endpoint string, useSSL bool) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + endpoint
}
