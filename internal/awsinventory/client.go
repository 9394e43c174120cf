// Package awsinventory lists resources straight from AWS APIs. It is the
// alternate inventory source for accounts reachable with local
// credentials.
package awsinventory

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/yairfalse/lwcomply/internal/errors"
)

// EC2API defines the EC2 client methods we use
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
}

// S3API defines the S3 client methods we use
type S3API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketTagging(ctx context.Context, params *s3.GetBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error)
}

// LambdaAPI defines the Lambda client methods we use
type LambdaAPI interface {
	ListFunctions(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error)
	ListTags(ctx context.Context, params *lambda.ListTagsInput, optFns ...func(*lambda.Options)) (*lambda.ListTagsOutput, error)
}

// RDSAPI defines the RDS client methods we use
type RDSAPI interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
}

// STSAPI defines the STS client methods we use
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Clients holds the AWS service clients
type Clients struct {
	EC2    EC2API
	S3     S3API
	Lambda LambdaAPI
	RDS    RDSAPI
	STS    STSAPI
	Region string
}

// ClientConfig holds configuration for AWS client creation
type ClientConfig struct {
	Region     string
	Profile    string
	MaxRetries int
	Timeout    time.Duration
}

// NewClients creates and configures AWS service clients
func NewClients(ctx context.Context, clientConfig ClientConfig) (*Clients, error) {
	if clientConfig.MaxRetries == 0 {
		clientConfig.MaxRetries = 3
	}
	if clientConfig.Timeout == 0 {
		clientConfig.Timeout = 30 * time.Second
	}

	var opts []func(*config.LoadOptions) error
	if clientConfig.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(clientConfig.Profile))
	}
	if clientConfig.Region != "" {
		opts = append(opts, config.WithRegion(clientConfig.Region))
	}

	// The SDK retries transient faults; throttling is left to the caller's
	// rate limiter, so keep SDK attempts low.
	opts = append(opts, config.WithRetryer(func() aws.Retryer {
		return retry.AddWithMaxAttempts(retry.NewStandard(), clientConfig.MaxRetries)
	}))

	loadCtx, cancel := context.WithTimeout(ctx, clientConfig.Timeout)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(loadCtx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if err := validateCredentials(loadCtx, cfg); err != nil {
		return nil, err
	}

	return &Clients{
		EC2:    ec2.NewFromConfig(cfg),
		S3:     s3.NewFromConfig(cfg),
		Lambda: lambda.NewFromConfig(cfg),
		RDS:    rds.NewFromConfig(cfg),
		STS:    sts.NewFromConfig(cfg),
		Region: cfg.Region,
	}, nil
}

// CallerAccount returns the account the credentials belong to.
func (c *Clients) CallerAccount(ctx context.Context) (string, error) {
	result, err := c.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", errors.AWSCredentialsError(err)
	}
	if result.Account == nil || *result.Account == "" {
		return "", fmt.Errorf("received invalid identity information from AWS")
	}
	return *result.Account, nil
}

func validateCredentials(ctx context.Context, cfg aws.Config) error {
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return errors.AWSCredentialsError(err)
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return errors.AWSCredentialsError(fmt.Errorf("empty access key"))
	}
	if !creds.Expires.IsZero() && time.Now().After(creds.Expires) {
		return errors.AWSCredentialsError(fmt.Errorf("ExpiredToken: credentials expired at %v", creds.Expires))
	}
	return nil
}
