package capsule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/shinyyama/sensor-market/internal/metrics"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCSStore keeps capsules as objects named by content id in a bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore opens a storage client. A non-empty endpoint targets a
// storage emulator without credentials.
func NewGCSStore(ctx context.Context, bucket, prefix, endpoint string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("capsule bucket is required")
	}
	var opts []option.ClientOption
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) Put(ctx context.Context, data []byte) (string, error) {
	id, err := ContentID(data)
	if err != nil {
		return "", err
	}
	obj := s.client.Bucket(s.bucket).Object(s.prefix + id)
	// Content addressing makes a second write of the same id a no-op.
	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		metrics.CapsuleOps.WithLabelValues("put", "error").Inc()
		return "", err
	}
	if err := w.Close(); err != nil && !isPreconditionFailed(err) {
		metrics.CapsuleOps.WithLabelValues("put", "error").Inc()
		return "", err
	}
	metrics.CapsuleOps.WithLabelValues("put", "ok").Inc()
	log.Debugw("stored capsule", "cid", id, "bytes", len(data))
	return id, nil
}

func (s *GCSStore) Get(ctx context.Context, id string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.prefix + id).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		metrics.CapsuleOps.WithLabelValues("get", "not_found").Inc()
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.CapsuleOps.WithLabelValues("get", "error").Inc()
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		metrics.CapsuleOps.WithLabelValues("get", "error").Inc()
		return nil, err
	}
	if err := Verify(id, data); err != nil {
		metrics.CapsuleOps.WithLabelValues("get", "corrupted").Inc()
		return nil, err
	}
	metrics.CapsuleOps.WithLabelValues("get", "ok").Inc()
	return data, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
