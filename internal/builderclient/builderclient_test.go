package builderclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipebase/pipebased/internal/descriptor"
)

func TestPullAppFetchesFromBuilderService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apps/ns/svc/3", r.URL.Path)
		_, _ = w.Write([]byte("binary-payload"))
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL, Timeout: 5 * time.Second})
	data, err := client.PullApp(context.Background(), descriptor.App{Namespace: "ns", ID: "svc", Version: 3})
	require.NoError(t, err)
	assert.Equal(t, "binary-payload", string(data))
}

func TestPullAppNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL})
	_, err := client.PullApp(context.Background(), descriptor.App{Namespace: "ns", ID: "svc", Version: 3})
	require.Error(t, err)
}

func TestDumpCatalogsWritesUnderDestDir(t *testing.T) {
	client := New(Options{BaseURL: "http://unused"})
	destDir := filepath.Join(t.TempDir(), "ns", "cat", "1")
	require.NoError(t, client.DumpCatalogs(context.Background(), []byte("bundle"), destDir))

	data, err := os.ReadFile(filepath.Join(destDir, "catalogs"))
	require.NoError(t, err)
	assert.Equal(t, "bundle", string(data))
}
