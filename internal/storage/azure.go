package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureStore implements BlobStore on Azure Blob Storage
type AzureStore struct {
	client *azblob.Client
}

// NewAzureStore creates a blob service client using a shared key, or the default
// Azure credential chain when cfg.UseIdentity is set
func NewAzureStore(cfg Config) (*AzureStore, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultAzureEndpoint(cfg.Account)
	}

	if cfg.UseIdentity {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to get azure credential: %w", ErrConnection, err)
		}
		client, err := azblob.NewClient(endpoint, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnection, err)
		}
		return &AzureStore{client: client}, nil
	}

	if strings.TrimSpace(cfg.Account) == "" {
		return nil, fmt.Errorf("storage account is required")
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, fmt.Errorf("storage key is required")
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.Account, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid shared key: %w", ErrConnection, err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	return &AzureStore{client: client}, nil
}

// DefaultAzureEndpoint returns the public blob endpoint of an account
func DefaultAzureEndpoint(account string) string {
	return fmt.Sprintf("https://%s.blob.core.windows.net/", account)
}

// EnsureContainer checks the container properties and creates it on 404
func (s *AzureStore) EnsureContainer(ctx context.Context, container string) error {
	containerClient := s.client.ServiceClient().NewContainerClient(container)

	_, err := containerClient.GetProperties(ctx, nil)
	if err == nil {
		return nil
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		_, err = containerClient.Create(ctx, nil)
		if err == nil || bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil
		}
	}

	return fmt.Errorf("%w: container %s: %s", ErrConnection, container, describe(err))
}

// StartCopy starts an asynchronous copy from sourceURL
func (s *AzureStore) StartCopy(ctx context.Context, container, name, sourceURL string) (CopyHandle, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(container).NewBlobClient(name)

	resp, err := blobClient.StartCopyFromURL(ctx, sourceURL, nil)
	if err != nil {
		return CopyHandle{}, fmt.Errorf("%w: start copy %s: %s", ErrConnection, name, describe(err))
	}

	handle := CopyHandle{Status: copyStatusFrom(resp.CopyStatus)}
	if resp.CopyID != nil {
		handle.ID = *resp.CopyID
	}
	return handle, nil
}

// CopyStatus reads the copy fields of the destination blob properties
func (s *AzureStore) CopyStatus(ctx context.Context, container, name string) (CopyState, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(container).NewBlobClient(name)

	props, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		return CopyState{}, fmt.Errorf("%w: get properties %s: %s", ErrConnection, name, describe(err))
	}

	state := CopyState{Status: copyStatusFrom(props.CopyStatus)}
	if props.CopyProgress != nil {
		state.Progress = *props.CopyProgress
	}
	if props.CopyStatusDescription != nil {
		state.Description = *props.CopyStatusDescription
	}
	if props.ContentLength != nil {
		state.Size = *props.ContentLength
	}
	return state, nil
}

// copyStatusFrom maps the service copy status; a blob with no copy status was not
// created by a copy yet and is still pending from our point of view
func copyStatusFrom(status *blob.CopyStatusType) CopyStatus {
	if status == nil {
		return CopyPending
	}

	switch *status {
	case blob.CopyStatusTypeSuccess:
		return CopySuccess
	case blob.CopyStatusTypeFailed:
		return CopyFailed
	case blob.CopyStatusTypeAborted:
		return CopyAborted
	default:
		return CopyPending
	}
}

func describe(err error) string {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return fmt.Sprintf("%s (status %d)", respErr.ErrorCode, respErr.StatusCode)
	}
	return err.Error()
}
