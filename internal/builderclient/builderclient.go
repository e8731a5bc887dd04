// Package builderclient models the upstream builder service as the
// pull-blob-by-descriptor interface the repository manager needs. The
// builder service itself — its API shape, authentication, retry policy
// — is an external collaborator; this package only defines the seam
// the repository manager calls through, plus one concrete HTTP-backed
// implementation so the seam has a real body.
package builderclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pipebase/pipebased/internal/descriptor"
	"github.com/pipebase/pipebased/internal/pipeerr"
)

// Client is the interface the repository manager depends on. It is
// intentionally narrow: fetch an app binary, fetch a catalogs archive,
// and expand a catalogs archive onto disk (expansion is delegated to
// the builder client since only it knows the archive format).
type Client interface {
	PullApp(ctx context.Context, desc descriptor.App) ([]byte, error)
	PullCatalogs(ctx context.Context, desc descriptor.Catalogs) ([]byte, error)
	DumpCatalogs(ctx context.Context, buffer []byte, destDir string) error
}

// Options configures the HTTP-backed client (daemon.repository.pb_client).
type Options struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPClient is a minimal real implementation of Client that fetches
// blobs over HTTP from the builder service and expands catalogs
// archives as a flat tar-less byte dump (the wire format of the real
// builder's catalogs archive is not fixed here; this implementation
// treats the payload as an opaque blob written to a single file under
// destDir, which is sufficient for the repository manager's contract:
// a tree exists under the version directory after dump).
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// New constructs an HTTPClient from Options.
func New(opts Options) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: opts.BaseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pipeerr.Transport(err.Error())
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("builder service returned status %d for %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

// PullApp fetches the app binary bytes for desc.
func (c *HTTPClient) PullApp(ctx context.Context, desc descriptor.App) ([]byte, error) {
	path := fmt.Sprintf("/apps/%s/%s/%d", desc.Namespace, desc.ID, desc.Version)
	data, err := c.get(ctx, path)
	if err != nil {
		return nil, pipeerr.Resource(pipeerr.ResourceApp, err)
	}
	return data, nil
}

// PullCatalogs fetches the catalogs archive bytes for desc.
func (c *HTTPClient) PullCatalogs(ctx context.Context, desc descriptor.Catalogs) ([]byte, error) {
	path := fmt.Sprintf("/catalogs/%s/%s/%d", desc.Namespace, desc.ID, desc.Version)
	data, err := c.get(ctx, path)
	if err != nil {
		return nil, pipeerr.Resource(pipeerr.ResourceCatalogs, err)
	}
	return data, nil
}

// DumpCatalogs expands the catalogs archive under destDir.
func (c *HTTPClient) DumpCatalogs(ctx context.Context, buffer []byte, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return pipeerr.Resource(pipeerr.ResourceCatalogs, err)
	}
	path := filepath.Join(destDir, "catalogs")
	if err := os.WriteFile(path, buffer, 0o644); err != nil {
		return pipeerr.Resource(pipeerr.ResourceCatalogs, err)
	}
	return nil
}
