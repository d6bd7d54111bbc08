// Package objectreader implements ObjectReader: it opens the object an
// UploadEvent references as a lazy, bounded sequence of UTF-8 lines,
// rejecting anything over the configured max file size before ever opening
// the body, and guaranteeing the underlying handle is released on every
// exit path. It reuses the streaming engine the teacher used for S3 export
// files (github.com/gurre/s3streamer) unchanged.
package objectreader

import (
	"context"
	"fmt"

	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gurre/s3streamer"

	awsport "github.com/wifiloc/pipeline/aws"
)

// ErrTooLarge is returned when an object exceeds the configured max file
// size; it is non-retriable, the object is rejected before it is opened.
var ErrTooLarge = fmt.Errorf("object exceeds maximum file size")

// LineFunc is invoked once per line read from the object body. Returning an
// error stops the stream.
type LineFunc func(line []byte) error

// Reader opens referenced objects as line sequences.
type Reader struct {
	s3Client    awsport.S3Client
	streamer    s3streamer.Streamer
	maxFileSize int64
}

// New constructs a Reader.
func New(s3Client awsport.S3Client, streamer s3streamer.Streamer, maxFileSize int64) *Reader {
	return &Reader{s3Client: s3Client, streamer: streamer, maxFileSize: maxFileSize}
}

// Open streams bucket/key line by line, invoking fn for each line. It
// pre-checks the object's size via HeadObject and rejects it with
// ErrTooLarge before ever opening the body. On a mid-stream transport error
// the sequence simply ends; the caller treats this as a processing failure
// for the owning message, not a crash.
func (r *Reader) Open(ctx context.Context, bucket, key string, fn LineFunc) error {
	head, err := r.s3Client.HeadObject(ctx, &s3svc.HeadObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("head object: %w", err)
	}
	if head.ContentLength != nil && *head.ContentLength > r.maxFileSize {
		return fmt.Errorf("%w: %d bytes > max %d", ErrTooLarge, *head.ContentLength, r.maxFileSize)
	}

	err = r.streamer.Stream(ctx, bucket, key, 0, func(line []byte, _ int64) error {
		return fn(line)
	})
	if err != nil {
		return fmt.Errorf("stream object: %w", err)
	}
	return nil
}
