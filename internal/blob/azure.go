package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"

	"github.com/press-vault/internal/config"
)

// AzureBucket implements Bucket on an Azure Blob Storage container.
type AzureBucket struct {
	serviceClient *service.Client
	credential    azcore.TokenCredential
	containerName string
}

// NewAzureBucket creates an Azure-backed bucket from the blob config.
func NewAzureBucket(cfg config.BlobConfig) (*AzureBucket, error) {
	var serviceClient *service.Client
	var cred azcore.TokenCredential
	var err error

	serviceURL := cfg.GetServiceURL()

	switch cfg.GetAuthMethod() {
	case "connection_string":
		serviceClient, err = service.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client from connection string: %w", err)
		}

	case "sas_token":
		sasURL := serviceURL
		if !strings.HasPrefix(cfg.SASToken, "?") {
			sasURL += "?"
		}
		sasURL += cfg.SASToken
		serviceClient, err = service.NewClientWithNoCredential(sasURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client with SAS token: %w", err)
		}

	case "managed_identity":
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create default azure credential: %w", err)
		}
		serviceClient, err = service.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client with managed identity: %w", err)
		}

	case "service_principal":
		cred, err = azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create service principal credential: %w", err)
		}
		serviceClient, err = service.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client with service principal: %w", err)
		}

	default:
		return nil, fmt.Errorf("no valid authentication method configured")
	}

	return &AzureBucket{
		serviceClient: serviceClient,
		credential:    cred,
		containerName: cfg.Container,
	}, nil
}

// Put uploads a blob.
func (b *AzureBucket) Put(ctx context.Context, key string, body []byte) (PutResult, error) {
	containerClient := b.serviceClient.NewContainerClient(b.containerName)
	blobClient := containerClient.NewBlockBlobClient(key)

	if _, err := blobClient.UploadBuffer(ctx, body, nil); err != nil {
		return PutResult{}, fmt.Errorf("failed to upload blob: %w", err)
	}

	return PutResult{Key: key, Size: int64(len(body))}, nil
}

// Get downloads a blob, (nil, nil) when absent.
func (b *AzureBucket) Get(ctx context.Context, key string) ([]byte, error) {
	containerClient := b.serviceClient.NewContainerClient(b.containerName)
	blobClient := containerClient.NewBlobClient(key)

	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob content: %w", err)
	}

	return body, nil
}

// Delete removes a blob. Deleting a missing key is a no-op.
func (b *AzureBucket) Delete(ctx context.Context, key string) error {
	containerClient := b.serviceClient.NewContainerClient(b.containerName)
	blobClient := containerClient.NewBlobClient(key)

	if _, err := blobClient.Delete(ctx, nil); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Head reports whether a blob exists.
func (b *AzureBucket) Head(ctx context.Context, key string) (bool, error) {
	containerClient := b.serviceClient.NewContainerClient(b.containerName)
	blobClient := containerClient.NewBlobClient(key)

	if _, err := blobClient.GetProperties(ctx, nil); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check blob existence: %w", err)
	}

	return true, nil
}

// List returns every key in the container.
func (b *AzureBucket) List(ctx context.Context) ([]string, error) {
	var keys []string

	containerClient := b.serviceClient.NewContainerClient(b.containerName)
	pager := containerClient.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{})

	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}

		for _, item := range resp.Segment.BlobItems {
			if item.Name != nil {
				keys = append(keys, *item.Name)
			}
		}
	}

	return keys, nil
}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "BlobNotFound") || strings.Contains(err.Error(), "404")
}
