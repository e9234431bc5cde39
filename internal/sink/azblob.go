package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/rescale/drivectl/internal/config"
	"github.com/rescale/drivectl/internal/http"
)

const envAzureStorageKey = "AZURE_STORAGE_KEY"

var errNoAzureCredentials = errors.New("no Azure credentials: set azure_sas_token or " + envAzureStorageKey)

type azureUploader struct {
	client    *azblob.Client
	container string
	blob      string
}

func accountURL(cfg *config.Config, account string) string {
	if cfg.AzureAccountURL != "" {
		return strings.TrimSuffix(cfg.AzureAccountURL, "/") + "/"
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", account)
}

func newAzureUploader(cfg *config.Config, d Destination) (*azureUploader, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	httpClient, err := http.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	opts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{Transport: httpClient},
	}

	base := accountURL(cfg, d.Account)
	var client *azblob.Client
	switch {
	case cfg.AzureSASToken != "":
		sasURL := base + "?" + strings.TrimPrefix(cfg.AzureSASToken, "?")
		client, err = azblob.NewClientWithNoCredential(sasURL, opts)
	case os.Getenv(envAzureStorageKey) != "":
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(d.Account, os.Getenv(envAzureStorageKey))
		if err == nil {
			client, err = azblob.NewClientWithSharedKeyCredential(base, cred, opts)
		}
	default:
		return nil, errNoAzureCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return &azureUploader{client: client, container: d.Container, blob: d.Blob}, nil
}

func (u *azureUploader) upload(ctx context.Context, f *os.File, _ int64) error {
	if _, err := u.client.UploadFile(ctx, u.container, u.blob, f, nil); err != nil {
		return fmt.Errorf("failed to upload to Azure: %w", err)
	}
	return nil
}
