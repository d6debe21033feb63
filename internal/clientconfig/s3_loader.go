package clientconfig

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const maxConfigBytes = 256 << 10

type s3API interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Loader reads <prefix><sender>.json from a bucket.
type S3Loader struct {
	client s3API
	bucket string
	prefix string
}

func NewS3Loader(client s3API, bucket, prefix string) *S3Loader {
	if client == nil {
		panic("clientconfig: s3 client cannot be nil")
	}
	if bucket == "" {
		panic("clientconfig: bucket cannot be empty")
	}
	return &S3Loader{client: client, bucket: bucket, prefix: prefix}
}

var _ Loader = (*S3Loader)(nil)

// Key returns the object key consulted for sender.
func (l *S3Loader) Key(sender string) string {
	return l.prefix + fileSafe(sender) + ".json"
}

func (l *S3Loader) Load(ctx context.Context, sender string) (ClientConfig, error) {
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(l.Key(sender)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("%w: %v", ErrConfigLoad, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxConfigBytes))
	if err != nil {
		return Default(), fmt.Errorf("%w: %v", ErrConfigLoad, err)
	}
	return Decode(data)
}
