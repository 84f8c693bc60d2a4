package storage

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/earthframe/earthframe/pkg/config"
)

// s3Signer presigns with the AWS SDK.
type s3Signer struct {
	client *s3.PresignClient
}

func newS3Signer(cfg *config.StorageConfig) *s3Signer {
	client := s3.New(s3.Options{}, func(o *s3.Options) {
		if cfg.Region != "" {
			o.Region = cfg.Region
		} else {
			o.Region = "us-east-1"
		}

		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}

		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}

		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)
		}
	})

	return &s3Signer{client: s3.NewPresignClient(client)}
}

func (s *s3Signer) PresignGet(
	ctx context.Context, obj Object, expiry time.Duration,
) (string, error) {
	result, err := s.client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", err
	}

	return result.URL, nil
}
