// Package aws implements the AWS service abstractions as specified in the
// design specification's domain stack. It provides narrow interfaces and
// concrete AWS SDK v2 implementations for every service the pipeline talks
// to, following the ports-and-implementations pattern the teacher codebase
// uses for DynamoDB and S3.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/firehose"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSClient defines the interface for SQS operations required by the
// QueueConsumer: long-poll receive, visibility-timeout extension and
// deletion once a message's derived records are fully acknowledged.
type SQSClient interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// S3Client defines the interface for S3 operations required by ObjectReader:
// a size pre-check via HeadObject. The object body itself is streamed
// through s3streamer.Streamer directly against the raw SDK client, not
// through this port.
type S3Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// FirehoseClient defines the interface for Firehose operations required by
// DeliverySink. PutRecordBatch returns a per-record status vector and a
// FailedPutCount, which is the concrete collaborator behind the partial
// batch failure resubmission behavior.
type FirehoseClient interface {
	PutRecordBatch(ctx context.Context, params *firehose.PutRecordBatchInput, optFns ...func(*firehose.Options)) (*firehose.PutRecordBatchOutput, error)
}

// Compile-time interface checks to ensure implementations satisfy interfaces.
var (
	_ SQSClient      = (*SQSClientImpl)(nil)
	_ S3Client       = (*S3ClientImpl)(nil)
	_ FirehoseClient = (*FirehoseClientImpl)(nil)

	// AWS SDK interface checks to ensure SDK clients satisfy interfaces.
	_ SQSClient      = (*sqs.Client)(nil)
	_ S3Client       = (*s3.Client)(nil)
	_ FirehoseClient = (*firehose.Client)(nil)
)
