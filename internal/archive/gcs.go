package archive

import (
	"context"

	"cloud.google.com/go/storage"

	"permgate/internal/pgerr"
)

// GCSArchiver uploads archived files to a Google Cloud Storage bucket,
// grounded on connectors/gcs's client construction.
type GCSArchiver struct {
	client *storage.Client
	bucket string
}

// NewGCSArchiver builds a client using application default credentials.
func NewGCSArchiver(ctx context.Context, bucket string) (*GCSArchiver, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.IO, "build gcs client for archiver", err)
	}
	return &GCSArchiver{client: client, bucket: bucket}, nil
}

func (a *GCSArchiver) Put(ctx context.Context, key string, data []byte) error {
	w := a.client.Bucket(a.bucket).Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return pgerr.Wrap(pgerr.IO, "gcs object write", err).WithContext("key", key)
	}
	if err := w.Close(); err != nil {
		return pgerr.Wrap(pgerr.IO, "gcs object close", err).WithContext("key", key)
	}
	return nil
}
