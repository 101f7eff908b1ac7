package storage

import (
	"context"
	"errors"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"subclean/internal/fileutil"
	"subclean/internal/services"
)

// S3API is the subset of the S3 client used by the backend.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configure the S3 client.
type S3Options struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

type s3Backend struct {
	api         S3API
	credentials aws.CredentialsProvider
}

// newS3Backend loads the default AWS credential chain and builds a client.
func newS3Backend(ctx context.Context, opts S3Options) (*s3Backend, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "load aws config", "", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return &s3Backend{api: client, credentials: cfg.Credentials}, nil
}

func (b *s3Backend) checkCredentials(ctx context.Context) error {
	if b.credentials == nil {
		return services.Wrap(services.ErrConfiguration, "storage", "resolve credentials", "no AWS credential provider configured", nil)
	}
	if _, err := b.credentials.Retrieve(ctx); err != nil {
		return services.Wrap(services.ErrConfiguration, "storage", "resolve credentials",
			"set AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY or an AWS profile", err)
	}
	return nil
}

func (b *s3Backend) download(ctx context.Context, loc Locator, local string) error {
	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return services.Wrap(services.ErrNotFound, "storage", "get object", loc.String(), err)
		}
		return services.Wrap(services.ErrTransient, "storage", "get object", loc.String(), err)
	}
	defer out.Body.Close()
	if err := fileutil.WriteAtomic(local, out.Body); err != nil {
		return services.Wrap(services.ErrTransient, "storage", "write download", local, err)
	}
	return nil
}

func (b *s3Backend) upload(ctx context.Context, local string, loc Locator) error {
	f, err := os.Open(local)
	if err != nil {
		return services.Wrap(services.ErrNotFound, "storage", "open upload", local, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return services.Wrap(services.ErrNotFound, "storage", "stat upload", local, err)
	}
	_, err = b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(loc.Bucket),
		Key:           aws.String(loc.Key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(local)),
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, "storage", "put object", loc.String(), err)
	}
	return nil
}
