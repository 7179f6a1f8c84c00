package storage

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"cfoclient/internal/pkg/logx"
)

// s3Client implements StorageService against an S3-compatible endpoint.
type s3Client struct {
	cfg      ServiceConfig
	s3Client *s3.Client
	uploader *manager.Uploader
}

// newS3Client initializes the S3 client with per-request user credentials.
func newS3Client(cfg ServiceConfig, tokens TokenSource) (*s3Client, error) {
	ref := cfg.ProjectRef()
	if ref == "" {
		return nil, errors.New("storage: cannot derive project ref from URL")
	}

	provider := aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		token := ""
		if tokens != nil {
			token = tokens.AccessToken(ctx)
		}
		return credentials.NewStaticCredentialsProvider(ref, cfg.AnonKey, token).Retrieve(ctx)
	})

	sdkCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(provider),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		logx.Error(err, "Failed to load AWS SDK config")
		return nil, errors.New("failed to initialize S3 client configuration")
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint())
		o.UsePathStyle = true
	})

	return &s3Client{
		cfg:      cfg,
		s3Client: client,
		uploader: manager.NewUploader(client),
	}, nil
}

// Upload stores obj under its key in the configured bucket.
func (c *s3Client) Upload(ctx context.Context, obj Object) (Uploaded, error) {
	input := &s3.PutObjectInput{
		Bucket:      &c.cfg.BucketName,
		Key:         &obj.Key,
		Body:        obj.Body,
		ContentType: &obj.ContentType,
	}

	if _, err := c.uploader.Upload(ctx, input); err != nil {
		logx.Error(err, "S3 upload failed", "key", obj.Key)
		return Uploaded{}, errors.New("failed to upload file")
	}

	return Uploaded{Key: obj.Key, URL: c.cfg.PublicURL(obj.Key)}, nil
}

// Delete removes the file specified by the given key from the bucket.
func (c *s3Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &c.cfg.BucketName,
		Key:    &key,
	})

	if err != nil {
		logx.Error(err, "S3 delete failed", "key", key)
		return errors.New("failed to delete file from S3")
	}

	return nil
}
