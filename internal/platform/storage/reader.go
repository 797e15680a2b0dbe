package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// ErrObjectNotFound is returned when the requested object does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

const defaultMaxObjectBytes = 1 << 20

// Reader fetches small configuration objects from Cloud Storage.
type Reader struct {
	client   *gcs.Client
	maxBytes int64
}

// NewReader constructs a Reader backed by the provided Cloud Storage client.
func NewReader(client *gcs.Client) (*Reader, error) {
	if client == nil {
		return nil, errors.New("storage reader: client is required")
	}
	return &Reader{client: client, maxBytes: defaultMaxObjectBytes}, nil
}

// ReadObject returns the full contents of bucket/object, refusing objects larger than 1 MiB.
func (r *Reader) ReadObject(ctx context.Context, bucket, object string) ([]byte, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("storage reader: client is not initialised")
	}
	bucket = strings.TrimSpace(bucket)
	object = strings.TrimSpace(object)
	if bucket == "" || object == "" {
		return nil, errors.New("storage reader: bucket and object must be provided")
	}

	rc, err := r.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
			return nil, fmt.Errorf("%w: gs://%s/%s", ErrObjectNotFound, bucket, object)
		}
		return nil, fmt.Errorf("storage reader: open gs://%s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("storage reader: read gs://%s/%s: %w", bucket, object, err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("storage reader: gs://%s/%s exceeds %d bytes", bucket, object, r.maxBytes)
	}
	return data, nil
}

// ParseURI splits a gs://bucket/object URI.
func ParseURI(uri string) (bucket, object string, err error) {
	trimmed := strings.TrimSpace(uri)
	if !strings.HasPrefix(trimmed, "gs://") {
		return "", "", fmt.Errorf("storage: %q is not a gs:// uri", uri)
	}
	rest := strings.TrimPrefix(trimmed, "gs://")
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || strings.TrimSpace(bucket) == "" || strings.TrimSpace(object) == "" {
		return "", "", fmt.Errorf("storage: %q must name a bucket and object", uri)
	}
	return bucket, object, nil
}
