package blobwriter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
)

// ObjectStoreBackend writes blobs to an S3-compatible bucket, returning
// "object://bucket/key" URIs.
type ObjectStoreBackend struct {
	client *s3.Client
}

// NewObjectStoreBackend wraps an already-configured S3 client.
func NewObjectStoreBackend(client *s3.Client) *ObjectStoreBackend {
	return &ObjectStoreBackend{client: client}
}

func (b *ObjectStoreBackend) Put(ctx context.Context, bucket, key string, content []byte) (string, error) {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return "", relayerrors.Internal("put object", err)
	}
	return fmt.Sprintf("object://%s/%s", bucket, key), nil
}

// LocalBackend writes blobs under a root directory on the local filesystem,
// returning the absolute path.
type LocalBackend struct {
	RootPath string
}

// NewLocalBackend roots writes under basePath (the LOCAL_STORAGE_PATH
// configuration value).
func NewLocalBackend(basePath string) *LocalBackend {
	return &LocalBackend{RootPath: basePath}
}

func (b *LocalBackend) Put(_ context.Context, bucket, key string, content []byte) (string, error) {
	fullPath := filepath.Join(b.RootPath, bucket, key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", relayerrors.Internal("create storage directory", err)
	}
	if err := os.WriteFile(fullPath, content, 0o644); err != nil {
		return "", relayerrors.Internal("write local blob", err)
	}
	abs, err := filepath.Abs(fullPath)
	if err != nil {
		return "", relayerrors.Internal("resolve absolute path", err)
	}
	return abs, nil
}
