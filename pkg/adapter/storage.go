package adapter

import (
	"context"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

const gcsScheme = "gs://"

// Storage reads source documents kept in Cloud Storage
type Storage interface {
	// Open returns a reader of the object at a gs://bucket/object URL
	Open(ctx context.Context, url string) (io.ReadCloser, error)
	Close() error
}

// storageClient implements Storage interface using Cloud Storage
type storageClient struct {
	client *storage.Client
}

// NewStorage creates a new Cloud Storage client
func NewStorage(ctx context.Context) (Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &storageClient{client: client}, nil
}

// IsGCSURL reports whether path points to a Cloud Storage object
func IsGCSURL(path string) bool {
	return strings.HasPrefix(path, gcsScheme)
}

// ParseGCSURL splits gs://bucket/object into bucket and object names
func ParseGCSURL(url string) (bucket, object string, err error) {
	if !IsGCSURL(url) {
		return "", "", goerr.New("not a gs:// url", goerr.V("url", url))
	}

	bucket, object, ok := strings.Cut(strings.TrimPrefix(url, gcsScheme), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", goerr.New("gs:// url needs bucket and object", goerr.V("url", url))
	}
	return bucket, object, nil
}

func (s *storageClient) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	bucket, object, err := ParseGCSURL(url)
	if err != nil {
		return nil, err
	}

	reader, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read from storage", goerr.Value("url", url))
	}

	return reader, nil
}

func (s *storageClient) Close() error {
	if err := s.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage client")
	}
	return nil
}
