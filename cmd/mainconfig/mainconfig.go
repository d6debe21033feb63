package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appconfig "github.com/wolfman30/replybridge/internal/config"
)

// LoadAWSConfig centralizes AWS SDK initialization so the API and the tooling
// binaries share the same LocalStack/production wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.EndpointResolverWithOptions = endpointOverride(endpoint, cfg.AWSRegion)
	}

	return awsCfg, nil
}

// endpointOverride points the services the bridge uses at a single local endpoint.
// S3 keys stay path-style so LocalStack buckets resolve.
func endpointOverride(endpoint, region string) aws.EndpointResolverWithOptions {
	return aws.EndpointResolverWithOptionsFunc(
		func(service, _ string, _ ...interface{}) (aws.Endpoint, error) {
			switch service {
			case dynamodb.ServiceID, s3.ServiceID, bedrockruntime.ServiceID:
				return aws.Endpoint{
					URL:               endpoint,
					PartitionID:       "aws",
					SigningRegion:     region,
					HostnameImmutable: service == s3.ServiceID,
				}, nil
			default:
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			}
		},
	)
}
