package awsinventory

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/yairfalse/lwcomply/internal/transport"
	"github.com/yairfalse/lwcomply/pkg/types"
)

// page is one native page of a listing.
type page struct {
	records []types.ResourceRecord
	next    string
}

type lister func(ctx context.Context, account, token string, limit int) (page, error)

func clamp(limit, lo, hi int) int32 {
	if limit < lo {
		return int32(lo)
	}
	if limit > hi {
		return int32(hi)
	}
	return int32(limit)
}

func optional(token string) *string {
	if token == "" {
		return nil
	}
	return aws.String(token)
}

func ec2Tags(tags []ec2types.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for _, tag := range tags {
		if tag.Key != nil {
			out[*tag.Key] = aws.ToString(tag.Value)
		}
	}
	return out
}

func (p *Provider) listInstances(ctx context.Context, account, token string, limit int) (page, error) {
	result, err := p.clients.EC2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		MaxResults: aws.Int32(clamp(limit, 5, 1000)),
		NextToken:  optional(token),
	})
	if err != nil {
		return page{}, fmt.Errorf("failed to describe instances: %w", err)
	}

	var out page
	for _, reservation := range result.Reservations {
		owner := aws.ToString(reservation.OwnerId)
		if owner == "" {
			owner = account
		}
		for _, instance := range reservation.Instances {
			if instance.State != nil && instance.State.Name == ec2types.InstanceStateNameTerminated {
				continue
			}
			id := aws.ToString(instance.InstanceId)
			out.records = append(out.records, types.ResourceRecord{
				ARN:          fmt.Sprintf("arn:aws:ec2:%s:%s:instance/%s", p.clients.Region, owner, id),
				ResourceType: "ec2:instance",
				AccountID:    owner,
				Region:       p.clients.Region,
				Tags:         ec2Tags(instance.Tags),
				StartTime:    aws.ToTime(instance.LaunchTime).UTC(),
			})
		}
	}
	out.next = aws.ToString(result.NextToken)
	return out, nil
}

func (p *Provider) listVolumes(ctx context.Context, account, token string, limit int) (page, error) {
	result, err := p.clients.EC2.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		MaxResults: aws.Int32(clamp(limit, 5, 500)),
		NextToken:  optional(token),
	})
	if err != nil {
		return page{}, fmt.Errorf("failed to describe volumes: %w", err)
	}

	var out page
	for _, volume := range result.Volumes {
		out.records = append(out.records, types.ResourceRecord{
			ARN:          fmt.Sprintf("arn:aws:ec2:%s:%s:volume/%s", p.clients.Region, account, aws.ToString(volume.VolumeId)),
			ResourceType: "ec2:volume",
			AccountID:    account,
			Region:       p.clients.Region,
			Tags:         ec2Tags(volume.Tags),
			StartTime:    aws.ToTime(volume.CreateTime).UTC(),
		})
	}
	out.next = aws.ToString(result.NextToken)
	return out, nil
}

func (p *Provider) listBuckets(ctx context.Context, account, token string, limit int) (page, error) {
	result, err := p.clients.S3.ListBuckets(ctx, &s3.ListBucketsInput{
		MaxBuckets:        aws.Int32(clamp(limit, 1, 10000)),
		ContinuationToken: optional(token),
	})
	if err != nil {
		return page{}, fmt.Errorf("failed to list S3 buckets: %w", err)
	}

	var out page
	for _, bucket := range result.Buckets {
		name := aws.ToString(bucket.Name)
		tags, err := p.bucketTags(ctx, name)
		if err != nil {
			return page{}, err
		}
		out.records = append(out.records, types.ResourceRecord{
			ARN:          "arn:aws:s3:::" + name,
			ResourceType: "s3:bucket",
			AccountID:    account,
			Region:       aws.ToString(bucket.BucketRegion),
			Tags:         tags,
			StartTime:    aws.ToTime(bucket.CreationDate).UTC(),
		})
	}
	out.next = aws.ToString(result.ContinuationToken)
	return out, nil
}

// bucketTags returns a bucket's tags. Buckets without tags, or that we may
// not read, have none; throttling is passed up.
func (p *Provider) bucketTags(ctx context.Context, name string) (map[string]string, error) {
	result, err := p.clients.S3.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: aws.String(name)})
	if err != nil {
		if transport.IsThrottled(err) {
			return nil, err
		}
		var apiErr smithy.APIError
		if !stderrors.As(err, &apiErr) || apiErr.ErrorCode() != "NoSuchTagSet" {
			p.log.WithField("bucket", name).Debug("bucket tags unavailable: " + err.Error())
		}
		return nil, nil
	}

	if len(result.TagSet) == 0 {
		return nil, nil
	}
	tags := make(map[string]string, len(result.TagSet))
	for _, tag := range result.TagSet {
		if tag.Key != nil {
			tags[*tag.Key] = aws.ToString(tag.Value)
		}
	}
	return tags, nil
}

func (p *Provider) listFunctions(ctx context.Context, account, token string, limit int) (page, error) {
	result, err := p.clients.Lambda.ListFunctions(ctx, &lambda.ListFunctionsInput{
		MaxItems: aws.Int32(clamp(limit, 1, 50)),
		Marker:   optional(token),
	})
	if err != nil {
		return page{}, fmt.Errorf("failed to list Lambda functions: %w", err)
	}

	var out page
	for _, function := range result.Functions {
		arn := aws.ToString(function.FunctionArn)
		tags, err := p.functionTags(ctx, arn)
		if err != nil {
			return page{}, err
		}
		modified, _ := time.Parse("2006-01-02T15:04:05.000-0700", aws.ToString(function.LastModified))
		out.records = append(out.records, types.ResourceRecord{
			ARN:          arn,
			ResourceType: "lambda:function",
			AccountID:    account,
			Region:       p.clients.Region,
			Tags:         tags,
			StartTime:    modified.UTC(),
		})
	}
	out.next = aws.ToString(result.NextMarker)
	return out, nil
}

func (p *Provider) functionTags(ctx context.Context, arn string) (map[string]string, error) {
	result, err := p.clients.Lambda.ListTags(ctx, &lambda.ListTagsInput{Resource: aws.String(arn)})
	if err != nil {
		if transport.IsThrottled(err) {
			return nil, err
		}
		p.log.WithField("function", arn).Debug("function tags unavailable: " + err.Error())
		return nil, nil
	}
	if len(result.Tags) == 0 {
		return nil, nil
	}
	return result.Tags, nil
}

func (p *Provider) listDBInstances(ctx context.Context, account, token string, limit int) (page, error) {
	result, err := p.clients.RDS.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		MaxRecords: aws.Int32(clamp(limit, 20, 100)),
		Marker:     optional(token),
	})
	if err != nil {
		return page{}, fmt.Errorf("failed to describe RDS instances: %w", err)
	}

	var out page
	for _, instance := range result.DBInstances {
		var tags map[string]string
		if len(instance.TagList) > 0 {
			tags = make(map[string]string, len(instance.TagList))
			for _, tag := range instance.TagList {
				if tag.Key != nil {
					tags[*tag.Key] = aws.ToString(tag.Value)
				}
			}
		}
		out.records = append(out.records, types.ResourceRecord{
			ARN:          aws.ToString(instance.DBInstanceArn),
			ResourceType: "rds:db",
			AccountID:    account,
			Region:       p.clients.Region,
			Tags:         tags,
			StartTime:    aws.ToTime(instance.InstanceCreateTime).UTC(),
		})
	}
	out.next = aws.ToString(result.Marker)
	return out, nil
}
