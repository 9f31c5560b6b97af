package config

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Fetcher downloads config files from S3 with the default credential chain
type S3Fetcher struct {
	Region  string
	Profile string
}

// Fetch downloads bucket/key into memory
func (f *S3Fetcher) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if f.Region != "" {
		opts = append(opts, awsconfig.WithRegion(f.Region))
	}
	if f.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(f.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	downloader := manager.NewDownloader(s3.NewFromConfig(cfg))
	buf := manager.NewWriteAtBuffer(nil)
	if _, err := downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
