package media

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/hongminglow/onboard-be/internal/config"
)

const selfieFolder = "user_selfies"

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores processed selfies in an S3-compatible bucket.
type S3Uploader struct {
	client        objectPutter
	bucket        string
	publicBaseURL string
}

// NewS3Uploader builds an uploader from static credentials. A custom endpoint
// switches to path-style addressing for S3-compatible hosts.
func NewS3Uploader(ctx context.Context, cfg config.S3Config) (*S3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	base := cfg.PublicBaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &S3Uploader{client: client, bucket: cfg.Bucket, publicBaseURL: base}, nil
}

// UploadSelfie resizes the image and stores it under the user's prefix,
// returning its public URL.
func (u *S3Uploader) UploadSelfie(ctx context.Context, userID string, r io.Reader) (string, error) {
	data, err := PrepareSelfie(r)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s/%s-%s.jpg", selfieFolder, userID, uuid.NewString())
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return "", fmt.Errorf("put selfie object: %w", err)
	}
	return u.publicBaseURL + "/" + key, nil
}
