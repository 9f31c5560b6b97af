package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	sourceTimeout       = 30 * time.Minute
	sourceHeaderTimeout = time.Minute
)

// MinIOStore implements BlobStore on an S3-compatible bucket.
// S3 cannot pull from an arbitrary URL, so StartCopy streams the source through this
// process and the copy is complete when it returns.
type MinIOStore struct {
	client     *minio.Client
	httpClient *http.Client
}

// NewMinIOStore creates a new MinIO destination; Account and Key are the access and secret keys
func NewMinIOStore(cfg Config) (*MinIOStore, error) {
	endpoint, secure, err := cleanEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Account, cfg.Key, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}

	return &MinIOStore{client: client, httpClient: newSourceClient(sourceTimeout, sourceHeaderTimeout)}, nil
}

// newSourceClient bounds the whole source download by timeout and the wait for the
// response headers by headerTimeout
func newSourceClient(timeout, headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Timeout: timeout, Transport: transport}
}

// cleanEndpoint strips the scheme from endpoint and reports whether it was https.
// An endpoint without a scheme is taken as host:port over https.
func cleanEndpoint(endpoint string) (string, bool, error) {
	if endpoint == "" {
		return "", false, fmt.Errorf("endpoint cannot be empty")
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if strings.Contains(endpoint, "/") {
			return "", false, fmt.Errorf("endpoint contains path but no protocol")
		}
		return endpoint, true, nil
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("failed to parse endpoint URL: %w", err)
	}

	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return "", false, fmt.Errorf("endpoint URL cannot have paths, only host:port is allowed (got path: %s)", parsedURL.Path)
	}

	return parsedURL.Host, parsedURL.Scheme == "https", nil
}

// EnsureContainer creates the bucket if it does not exist
func (s *MinIOStore) EnsureContainer(ctx context.Context, container string) error {
	exists, err := s.client.BucketExists(ctx, container)
	if err != nil {
		return fmt.Errorf("%w: bucket %s: %w", ErrConnection, container, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, container, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("%w: create bucket %s: %w", ErrConnection, container, err)
	}
	return nil
}

// StartCopy downloads sourceURL and uploads it as container/name
func (s *MinIOStore) StartCopy(ctx context.Context, container, name, sourceURL string) (CopyHandle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return CopyHandle{}, fmt.Errorf("invalid source url: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return CopyHandle{}, fmt.Errorf("%w: get source: %w", ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CopyHandle{}, fmt.Errorf("%w: get source: unexpected status %s", ErrConnection, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.client.PutObject(ctx, container, name, resp.Body, resp.ContentLength, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return CopyHandle{}, fmt.Errorf("%w: put object %s: %w", ErrConnection, name, err)
	}

	return CopyHandle{ID: info.ETag, Status: CopySuccess}, nil
}

// CopyStatus reports success once the object exists
func (s *MinIOStore) CopyStatus(ctx context.Context, container, name string) (CopyState, error) {
	info, err := s.client.StatObject(ctx, container, name, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return CopyState{Status: CopyFailed, Description: "object not found"}, nil
		}
		return CopyState{}, fmt.Errorf("%w: stat object %s: %w", ErrConnection, name, err)
	}

	return CopyState{
		Status:   CopySuccess,
		Progress: fmt.Sprintf("%d/%d", info.Size, info.Size),
		Size:     info.Size,
	}, nil
}
