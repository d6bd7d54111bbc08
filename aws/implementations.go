// Package aws implements the AWS service abstractions as specified in the
// design specification's domain stack. This file contains the concrete
// SDK-backed implementations of the service interfaces.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/firehose"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSClientImpl implements SQSClient using the AWS SDK.
type SQSClientImpl struct {
	client *sqs.Client
}

// NewSQSClient creates a new SQSClientImpl instance.
func NewSQSClient(client *sqs.Client) *SQSClientImpl {
	return &SQSClientImpl{client: client}
}

// ReceiveMessage implements the SQSClient interface.
func (c *SQSClientImpl) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return c.client.ReceiveMessage(ctx, params, optFns...)
}

// DeleteMessage implements the SQSClient interface.
func (c *SQSClientImpl) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	return c.client.DeleteMessage(ctx, params, optFns...)
}

// ChangeMessageVisibility implements the SQSClient interface.
func (c *SQSClientImpl) ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	return c.client.ChangeMessageVisibility(ctx, params, optFns...)
}

// S3ClientImpl implements S3Client using the AWS SDK.
type S3ClientImpl struct {
	client *s3.Client
}

// NewS3Client creates a new S3ClientImpl instance.
func NewS3Client(client *s3.Client) *S3ClientImpl {
	return &S3ClientImpl{client: client}
}

// HeadObject implements the S3Client interface.
func (c *S3ClientImpl) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return c.client.HeadObject(ctx, params, optFns...)
}

// FirehoseClientImpl implements FirehoseClient using the AWS SDK.
type FirehoseClientImpl struct {
	client *firehose.Client
}

// NewFirehoseClient creates a new FirehoseClientImpl instance.
func NewFirehoseClient(client *firehose.Client) *FirehoseClientImpl {
	return &FirehoseClientImpl{client: client}
}

// PutRecordBatch implements the FirehoseClient interface.
func (c *FirehoseClientImpl) PutRecordBatch(ctx context.Context, params *firehose.PutRecordBatchInput, optFns ...func(*firehose.Options)) (*firehose.PutRecordBatchOutput, error) {
	return c.client.PutRecordBatch(ctx, params, optFns...)
}
