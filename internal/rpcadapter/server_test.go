package rpcadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/user"
	"testing"

	sdunit "github.com/coreos/go-systemd/v22/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipebase/pipebased/internal/daemond"
	"github.com/pipebase/pipebased/internal/descriptor"
	"github.com/pipebase/pipebased/internal/pipe"
	"github.com/pipebase/pipebased/internal/repository"
)

type fakeBuilderClient struct{}

func (fakeBuilderClient) PullApp(_ context.Context, _ descriptor.App) ([]byte, error) {
	return []byte("binary"), nil
}
func (fakeBuilderClient) PullCatalogs(_ context.Context, _ descriptor.Catalogs) ([]byte, error) {
	return []byte("bundle"), nil
}
func (fakeBuilderClient) DumpCatalogs(_ context.Context, _ []byte, destDir string) error {
	return os.MkdirAll(destDir, 0o755)
}

type fakeServiceManager struct {
	units map[string]pipe.State
}

func newFakeServiceManager() *fakeServiceManager {
	return &fakeServiceManager{units: map[string]pipe.State{}}
}
func (f *fakeServiceManager) CreateUnit(_ context.Context, unitName string, _ []*sdunit.UnitOption) error {
	f.units[unitName] = pipe.State{Load: pipe.NewLoadState("loaded"), Active: pipe.NewActiveState("inactive"), Sub: pipe.NewSubState("dead")}
	return nil
}
func (f *fakeServiceManager) StartUnit(_ context.Context, unitName string) error { return nil }
func (f *fakeServiceManager) StopUnit(_ context.Context, unitName string) error  { return nil }
func (f *fakeServiceManager) DeleteUnit(_ context.Context, unitName string) error {
	delete(f.units, unitName)
	return nil
}
func (f *fakeServiceManager) QueryProperties(_ context.Context, unitName string) (pipe.State, error) {
	st, ok := f.units[unitName]
	if !ok {
		return pipe.State{Load: pipe.NewLoadState("not-found")}, nil
	}
	return st, nil
}
func (f *fakeServiceManager) UnitKnown(_ context.Context, unitName string) (bool, error) {
	_, ok := f.units[unitName]
	return ok, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repoMgr := repository.New(t.TempDir(), t.TempDir(), fakeBuilderClient{})
	pipeMgr := pipe.New(t.TempDir(), newFakeServiceManager())
	return New(daemond.New(repoMgr, pipeMgr))
}

func currentUserGroup(t *testing.T) (string, string) {
	t.Helper()
	u, err := user.Current()
	require.NoError(t, err)
	g, err := user.LookupGroupId(u.Gid)
	require.NoError(t, err)
	return u.Username, g.Name
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestListAppEmpty(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/v1/apps", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body["apps"])
}

func TestPullAppThenListApp(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/v1/apps/pull", descriptor.AppWire{Namespace: "ns", ID: "svc", Version: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/v1/apps", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]descriptor.AppWire
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body["apps"], 1)
	assert.Equal(t, "svc", body["apps"][0].ID)
}

func TestCreatePipeRejectsUnregisteredApp(t *testing.T) {
	s := newTestServer(t)
	user, group := currentUserGroup(t)
	rec := doJSON(t, s, http.MethodPost, "/v1/pipes", map[string]any{
		"id":    "pipe-1",
		"user":  user,
		"group": group,
		"app":      descriptor.AppWire{Namespace: "ns", ID: "app", Version: 1},
		"catalogs": descriptor.CatalogsWire{Namespace: "ns", ID: "cat", Version: 1},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
}

func TestCreatePipeFullFlow(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/v1/apps/pull", descriptor.AppWire{Namespace: "ns", ID: "app", Version: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, s, http.MethodPost, "/v1/catalogs/pull", descriptor.CatalogsWire{Namespace: "ns", ID: "cat", Version: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	user, group := currentUserGroup(t)
	rec = doJSON(t, s, http.MethodPost, "/v1/pipes", map[string]any{
		"id":       "pipe-1",
		"user":     user,
		"group":    group,
		"app":      descriptor.AppWire{Namespace: "ns", ID: "app", Version: 1},
		"catalogs": descriptor.CatalogsWire{Namespace: "ns", ID: "cat", Version: 1},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/v1/pipes", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	pipes, ok := body["pipes"].([]any)
	require.True(t, ok)
	assert.Len(t, pipes, 1)
}
