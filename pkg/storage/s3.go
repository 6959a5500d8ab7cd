package storage

import (
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// s3API is the subset of the S3 client the bucket handle uses.
type s3API interface {
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// s3Client returns the cached S3 client for the bucket, constructing it on
// first use. Construction is single-flighted: concurrent first callers share
// one construction and its result.
func (b *Bucket) s3Client(ctx context.Context) (s3API, error) {
	b.mu.Lock()
	c := b.s3c
	b.mu.Unlock()
	if c != nil {
		return c, nil
	}

	v, err, _ := b.sf.Do("s3", func() (any, error) {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if b.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(b.Region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, err
		}

		var s3Opts []func(*awss3.Options)
		if b.EndpointURL != "" {
			s3Opts = append(s3Opts, func(o *awss3.Options) {
				o.BaseEndpoint = aws.String(b.EndpointURL)
				o.UsePathStyle = true
			})
		}

		client := awss3.NewFromConfig(cfg, s3Opts...)
		b.mu.Lock()
		b.s3c = client
		b.mu.Unlock()
		return s3API(client), nil
	})
	if err != nil {
		return nil, &StorageError{Bucket: b, Err: err}
	}
	return v.(s3API), nil
}

func (b *Bucket) s3Exists(ctx context.Context) (bool, error) {
	client, err := b.s3Client(ctx)
	if err != nil {
		return false, err
	}
	_, err = client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(b.Name),
	})
	if err == nil {
		return true, nil
	}
	if s3IsNotFound(err) {
		return false, nil
	}
	// forbidden and transport errors are not "absent"
	return false, &StorageError{Bucket: b, Err: err}
}

func (b *Bucket) s3Put(ctx context.Context, key string, body io.Reader, size int64) error {
	client, err := b.s3Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(b.Name),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return &StorageError{Bucket: b, Err: err}
	}
	return nil
}

func s3IsNotFound(err error) bool {
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noBucket *s3types.NoSuchBucket
	if errors.As(err, &noBucket) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket", "404":
			return true
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}
