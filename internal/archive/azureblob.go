package archive

import (
	"bytes"
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"permgate/internal/pgerr"
)

// AzureBlobArchiver uploads archived files to an Azure Blob Storage
// container, grounded on connectors/azureblob's client construction.
type AzureBlobArchiver struct {
	client    *azblob.Client
	container string
}

// NewAzureBlobArchiver authenticates against accountURL with the default
// Azure credential chain and targets container.
func NewAzureBlobArchiver(accountURL, container string) (*AzureBlobArchiver, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.IO, "build azure credential for archiver", err)
	}
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.IO, "build azure blob client for archiver", err)
	}
	return &AzureBlobArchiver{client: client, container: container}, nil
}

func (a *AzureBlobArchiver) Put(ctx context.Context, key string, data []byte) error {
	_, err := a.client.UploadBuffer(ctx, a.container, key, data, nil)
	if err != nil {
		return pgerr.Wrap(pgerr.IO, "azure blob upload", err).WithContext("key", key)
	}
	return nil
}
