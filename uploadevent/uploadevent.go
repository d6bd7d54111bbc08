// Package uploadevent decodes a queue message body into a typed UploadEvent,
// accepting both the S3 Records notification shape and the EventBridge
// "Object Created" shape, following the notification-parsing style of the
// rosa-log-router processor (models.SNSMessage / models.S3Event).
package uploadevent

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/google/uuid"
)

// ErrInvalid is returned (wrapped) for any malformed or out-of-bounds event.
var ErrInvalid = fmt.Errorf("invalid upload event")

const (
	maxObjectSize = 5 * 1024 * 1024 * 1024 // 5 GiB
	maxKeyLength  = 1024
	maxBucketLen  = 63
)

var bucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// UploadEvent is the immutable, parsed representation of a work-queue
// notification that a new object has landed in the object store.
type UploadEvent struct {
	ID         string
	Time       time.Time
	Region     string
	Bucket     string
	Key        string
	Size       int64
	ETag       string
	Sequencer  string
	StreamName string
}

type s3RecordsEnvelope struct {
	Records []struct {
		EventSource string `json:"eventSource"`
		EventTime   string `json:"eventTime"`
		AWSRegion   string `json:"awsRegion"`
		S3          struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key       string `json:"key"`
				Size      int64  `json:"size"`
				ETag      string `json:"eTag"`
				Sequencer string `json:"sequencer"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

type eventBridgeEnvelope struct {
	DetailType string   `json:"detail-type"`
	Source     string   `json:"source"`
	ID         string   `json:"id"`
	Time       string   `json:"time"`
	Region     string   `json:"region"`
	Resources  []string `json:"resources"`
	Detail     struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key       string `json:"key"`
			Size      int64  `json:"size"`
			ETag      string `json:"etag"`
			VersionID string `json:"version-id"`
		} `json:"object"`
	} `json:"detail"`
}

// Parse decodes body into an UploadEvent. Both the S3-Records wrapper and
// the EventBridge "Object Created" shape are accepted unconditionally (no
// feature flag — a decided Open Question, see DESIGN.md). Any validation
// failure returns a zero value and a wrapped ErrInvalid; no partial events
// are produced.
func Parse(body []byte) (UploadEvent, error) {
	if ev, err := parseS3Records(body); err == nil {
		return finish(ev)
	}
	if ev, err := parseEventBridge(body); err == nil {
		return finish(ev)
	}
	return UploadEvent{}, fmt.Errorf("%w: unrecognized wire shape", ErrInvalid)
}

func parseS3Records(body []byte) (UploadEvent, error) {
	var env s3RecordsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return UploadEvent{}, err
	}
	if len(env.Records) == 0 || env.Records[0].EventSource != "aws:s3" {
		return UploadEvent{}, fmt.Errorf("%w: not an s3 records envelope", ErrInvalid)
	}
	r := env.Records[0]
	t, err := time.Parse(time.RFC3339, r.EventTime)
	if err != nil {
		return UploadEvent{}, fmt.Errorf("%w: bad eventTime: %v", ErrInvalid, err)
	}
	return UploadEvent{
		ID:        uuid.NewString(),
		Time:      t,
		Region:    r.AWSRegion,
		Bucket:    r.S3.Bucket.Name,
		Key:       r.S3.Object.Key,
		Size:      r.S3.Object.Size,
		ETag:      r.S3.Object.ETag,
		Sequencer: r.S3.Object.Sequencer,
	}, nil
}

func parseEventBridge(body []byte) (UploadEvent, error) {
	var env eventBridgeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return UploadEvent{}, err
	}
	if env.DetailType != "Object Created" || env.Source != "aws.s3" {
		return UploadEvent{}, fmt.Errorf("%w: not an event-bridge object-created envelope", ErrInvalid)
	}
	t, err := time.Parse(time.RFC3339, env.Time)
	if err != nil {
		return UploadEvent{}, fmt.Errorf("%w: bad time: %v", ErrInvalid, err)
	}
	id := env.ID
	if id == "" {
		id = uuid.NewString()
	}
	return UploadEvent{
		ID:        id,
		Time:      t,
		Region:    env.Region,
		Bucket:    env.Detail.Bucket.Name,
		Key:       env.Detail.Object.Key,
		Size:      env.Detail.Object.Size,
		ETag:      env.Detail.Object.ETag,
		Sequencer: env.Detail.Object.VersionID,
	}, nil
}

// finish validates bounds common to both wire shapes and derives streamName.
func finish(ev UploadEvent) (UploadEvent, error) {
	if ev.Size < 0 || ev.Size > maxObjectSize {
		return UploadEvent{}, fmt.Errorf("%w: size %d out of bounds", ErrInvalid, ev.Size)
	}
	if len(ev.Key) == 0 || len(ev.Key) > maxKeyLength {
		return UploadEvent{}, fmt.Errorf("%w: key length %d out of bounds", ErrInvalid, len(ev.Key))
	}
	if strings.Contains(ev.Key, "..") || strings.Contains(ev.Key, "//") {
		return UploadEvent{}, fmt.Errorf("%w: key contains disallowed path segment", ErrInvalid)
	}
	if len(ev.Bucket) == 0 || len(ev.Bucket) > maxBucketLen || !bucketPattern.MatchString(ev.Bucket) {
		return UploadEvent{}, fmt.Errorf("%w: bucket name %q invalid", ErrInvalid, ev.Bucket)
	}

	now := time.Now()
	if ev.Time.Before(now.Add(-365*24*time.Hour)) || ev.Time.After(now.Add(24*time.Hour)) {
		return UploadEvent{}, fmt.Errorf("%w: event time %s outside allowed window", ErrInvalid, ev.Time)
	}

	ev.StreamName = streamNameFromKey(ev.Key)
	return ev, nil
}

// streamNameFromKey URL-decodes key and returns the path component
// immediately preceding the filename, or "unknown" on any failure.
// Idempotent under repeated URL-decoding of already-decoded input, since
// decoding a string with no percent-escapes is a no-op.
func streamNameFromKey(key string) string {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return "unknown"
	}
	parts := strings.Split(decoded, "/")
	// drop empty trailing segments (e.g. a trailing slash)
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) < 2 {
		return "unknown"
	}
	return parts[len(parts)-2]
}
