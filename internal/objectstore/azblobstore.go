package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureBlobConfig describes the connection parameters for an Azure Blob
// Storage container back-end.
type AzureBlobConfig struct {
	AccountName string
	AccountKey  string
	Container   string
}

// AzureBlobStore is a Store backed by an Azure Blob Storage container.
// Blob paths map directly onto blob names.
type AzureBlobStore struct {
	client    *azblob.Client
	container string
}

// NewAzureBlobStore builds an AzureBlobStore from cfg.
func NewAzureBlobStore(cfg AzureBlobConfig) (*AzureBlobStore, error) {
	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("azblobstore: build credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azblobstore: build client: %w", err)
	}
	return &AzureBlobStore{client: client, container: cfg.Container}, nil
}

func (s *AzureBlobStore) Read(ctx context.Context, path string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, path, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("azblobstore: read %s: %w", path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("azblobstore: read body %s: %w", path, err)
	}
	return data, nil
}

func (s *AzureBlobStore) Write(ctx context.Context, path string, data []byte) error {
	if _, err := s.client.UploadBuffer(ctx, s.container, path, data, nil); err != nil {
		return fmt.Errorf("azblobstore: write %s: %w", path, err)
	}
	return nil
}

func (s *AzureBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var out []string
	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azblobstore: list %s: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				out = append(out, *item.Name)
			}
		}
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (s *AzureBlobStore) Delete(ctx context.Context, path string) error {
	if _, err := s.client.DeleteBlob(ctx, s.container, path, nil); err != nil {
		if isAzureNotFound(err) {
			return nil
		}
		return fmt.Errorf("azblobstore: delete %s: %w", path, err)
	}
	return nil
}

func isAzureNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
