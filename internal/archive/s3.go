package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type s3Backend struct {
	api     putObjectAPI
	bucket  string
	prefix  string
	baseURL string
}

// NewS3 archives into an S3 compatible bucket. endpoint may point at MinIO
// or another compatible service; path-style addressing is used then.
func NewS3(ctx context.Context, bucket, region, endpoint, prefix string, log *slog.Logger) (*Saver, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	base := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	if endpoint != "" {
		base = strings.TrimRight(endpoint, "/") + "/" + bucket
	}
	return newSaver(&s3Backend{api: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), baseURL: base}, log), nil
}

func (b *s3Backend) put(ctx context.Context, name string, body []byte) (string, error) {
	key := path.Join(b.prefix, name)
	_, err := b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/markdown; charset=utf-8"),
		IfNoneMatch: aws.String("*"),
	})
	if isPreconditionFailed(err) {
		return "", ErrCollision
	}
	if err != nil {
		return "", fmt.Errorf("s3 put failed: %w", err)
	}
	return b.baseURL + "/" + key, nil
}

func isPreconditionFailed(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusPreconditionFailed
}
