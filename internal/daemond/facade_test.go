package daemond

import (
	"context"
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"testing"

	sdunit "github.com/coreos/go-systemd/v22/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipebase/pipebased/internal/descriptor"
	"github.com/pipebase/pipebased/internal/pipe"
	"github.com/pipebase/pipebased/internal/pipeerr"
	"github.com/pipebase/pipebased/internal/repository"
)

type fakeBuilderClient struct{}

func (fakeBuilderClient) PullApp(_ context.Context, _ descriptor.App) ([]byte, error) {
	return []byte("binary"), nil
}
func (fakeBuilderClient) PullCatalogs(_ context.Context, _ descriptor.Catalogs) ([]byte, error) {
	return []byte("bundle"), nil
}
func (fakeBuilderClient) DumpCatalogs(_ context.Context, buffer []byte, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(destDir, "catalogs"), buffer, 0o644)
}

type fakeServiceManager struct {
	units     map[string]pipe.State
	failQuery map[string]error
}

func newFakeServiceManager() *fakeServiceManager {
	return &fakeServiceManager{units: map[string]pipe.State{}, failQuery: map[string]error{}}
}

func (f *fakeServiceManager) CreateUnit(_ context.Context, unitName string, _ []*sdunit.UnitOption) error {
	f.units[unitName] = pipe.State{Load: pipe.NewLoadState("loaded"), Active: pipe.NewActiveState("inactive"), Sub: pipe.NewSubState("dead")}
	return nil
}
func (f *fakeServiceManager) StartUnit(_ context.Context, unitName string) error {
	st := f.units[unitName]
	st.Active, st.Sub = pipe.NewActiveState("active"), pipe.NewSubState("running")
	f.units[unitName] = st
	return nil
}
func (f *fakeServiceManager) StopUnit(_ context.Context, unitName string) error {
	st := f.units[unitName]
	st.Active, st.Sub = pipe.NewActiveState("inactive"), pipe.NewSubState("dead")
	f.units[unitName] = st
	return nil
}
func (f *fakeServiceManager) DeleteUnit(_ context.Context, unitName string) error {
	delete(f.units, unitName)
	return nil
}
func (f *fakeServiceManager) QueryProperties(_ context.Context, unitName string) (pipe.State, error) {
	if err, ok := f.failQuery[unitName]; ok {
		return pipe.State{}, err
	}
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

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	repoMgr := repository.New(t.TempDir(), t.TempDir(), fakeBuilderClient{})
	pipeMgr := pipe.New(t.TempDir(), newFakeServiceManager())
	return New(repoMgr, pipeMgr)
}

func currentUserGroup(t *testing.T) (string, string) {
	t.Helper()
	u, err := user.Current()
	require.NoError(t, err)
	g, err := user.LookupGroupId(u.Gid)
	require.NoError(t, err)
	return u.Username, g.Name
}

func TestCreatePipeRequiresAppRegistered(t *testing.T) {
	facade := newTestFacade(t)
	user, group := currentUserGroup(t)
	err := facade.CreatePipe(context.Background(), CreatePipeRequest{
		ID:       "pipe-1",
		User:     user,
		Group:    group,
		App:      descriptor.App{Namespace: "ns", ID: "app", Version: 1},
		Catalogs: descriptor.Catalogs{Namespace: "ns", ID: "cat", Version: 1},
	})
	require.Error(t, err)
	assert.True(t, pipeerr.IsKind(err, pipeerr.KindResource))
}

func TestCreatePipeRequiresCatalogsRegistered(t *testing.T) {
	facade := newTestFacade(t)
	ctx := context.Background()
	app := descriptor.App{Namespace: "ns", ID: "app", Version: 1}
	require.NoError(t, facade.PullApp(ctx, app))

	user, group := currentUserGroup(t)
	err := facade.CreatePipe(ctx, CreatePipeRequest{
		ID:       "pipe-1",
		User:     user,
		Group:    group,
		App:      app,
		Catalogs: descriptor.Catalogs{Namespace: "ns", ID: "cat", Version: 1},
	})
	require.Error(t, err)
	assert.True(t, pipeerr.IsKind(err, pipeerr.KindResource))
}

func TestCreatePipeSucceedsWhenBothRegistered(t *testing.T) {
	facade := newTestFacade(t)
	ctx := context.Background()
	app := descriptor.App{Namespace: "ns", ID: "app", Version: 1}
	catalogs := descriptor.Catalogs{Namespace: "ns", ID: "cat", Version: 1}
	require.NoError(t, facade.PullApp(ctx, app))
	require.NoError(t, facade.PullCatalogs(ctx, catalogs))

	user, group := currentUserGroup(t)
	err := facade.CreatePipe(ctx, CreatePipeRequest{
		ID:       "pipe-1",
		User:     user,
		Group:    group,
		App:      app,
		Catalogs: catalogs,
	})
	require.NoError(t, err)

	states, err := facade.ListPipeStatus(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "pipe-1", states[0].ID)
}

func TestListPipeStatusSkipsFailingEntries(t *testing.T) {
	repoMgr := repository.New(t.TempDir(), t.TempDir(), fakeBuilderClient{})
	svcMgr := newFakeServiceManager()
	pipeMgr := pipe.New(t.TempDir(), svcMgr)
	facade := New(repoMgr, pipeMgr)

	ctx := context.Background()
	app := descriptor.App{Namespace: "ns", ID: "app", Version: 1}
	catalogs := descriptor.Catalogs{Namespace: "ns", ID: "cat", Version: 1}
	require.NoError(t, facade.PullApp(ctx, app))
	require.NoError(t, facade.PullCatalogs(ctx, catalogs))

	user, group := currentUserGroup(t)
	require.NoError(t, facade.CreatePipe(ctx, CreatePipeRequest{ID: "pipe-1", User: user, Group: group, App: app, Catalogs: catalogs}))
	require.NoError(t, facade.CreatePipe(ctx, CreatePipeRequest{ID: "pipe-2", User: user, Group: group, App: app, Catalogs: catalogs}))

	svcMgr.failQuery["pipe-2.service"] = errors.New("d-bus connection lost")

	states, err := facade.ListPipeStatus(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "pipe-1", states[0].ID)
}
