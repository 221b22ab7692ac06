package broker

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Volpestyle/basic-budget-sub003/internal/common"
)

// ObjectFetcher loads a payload that a message references by bucket and key.
type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, object string) ([]byte, error)
}

// MinioFetcher reads payloads from MinIO or any S3-compatible store.
type MinioFetcher struct {
	client   *minio.Client
	maxBytes int64
}

// NewMinioClient initializes a client for cfg.Endpoint with static credentials.
func NewMinioClient(cfg common.MinIOConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "init minio client for %s", cfg.Endpoint)
	}
	return client, nil
}

// NewMinioFetcher returns a fetcher that refuses objects over maxBytes.
// A non-positive maxBytes disables the limit.
func NewMinioFetcher(client *minio.Client, maxBytes int64) *MinioFetcher {
	return &MinioFetcher{client: client, maxBytes: maxBytes}
}

func (f *MinioFetcher) Fetch(ctx context.Context, bucket, object string) ([]byte, error) {
	obj, err := f.client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "get object %s/%s", bucket, object)
	}
	defer obj.Close()

	var r io.Reader = obj
	if f.maxBytes > 0 {
		r = io.LimitReader(obj, f.maxBytes+1)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read object %s/%s", bucket, object)
	}
	if f.maxBytes > 0 && int64(len(content)) > f.maxBytes {
		return nil, errors.Wrapf(common.ErrInvalidInput, "object %s/%s exceeds %d bytes", bucket, object, f.maxBytes)
	}
	return content, nil
}
