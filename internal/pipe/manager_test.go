package pipe

import (
	"context"
	"os/user"
	"path/filepath"
	"testing"

	sdunit "github.com/coreos/go-systemd/v22/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServiceManager is an in-memory stand-in for a real systemd
// connection, letting the pipe manager's lifecycle logic be exercised
// without root privileges or a running systemd instance.
type fakeServiceManager struct {
	units map[string]State
}

func newFakeServiceManager() *fakeServiceManager {
	return &fakeServiceManager{units: map[string]State{}}
}

func (f *fakeServiceManager) CreateUnit(_ context.Context, unitName string, _ []*sdunit.UnitOption) error {
	f.units[unitName] = State{
		Load:   NewLoadState("loaded"),
		Active: NewActiveState("inactive"),
		Sub:    NewSubState("dead"),
	}
	return nil
}

func (f *fakeServiceManager) StartUnit(_ context.Context, unitName string) error {
	st := f.units[unitName]
	st.Active = NewActiveState("active")
	st.Sub = NewSubState("running")
	f.units[unitName] = st
	return nil
}

func (f *fakeServiceManager) StopUnit(_ context.Context, unitName string) error {
	st := f.units[unitName]
	st.Active = NewActiveState("inactive")
	st.Sub = NewSubState("dead")
	f.units[unitName] = st
	return nil
}

func (f *fakeServiceManager) DeleteUnit(_ context.Context, unitName string) error {
	delete(f.units, unitName)
	return nil
}

func (f *fakeServiceManager) QueryProperties(_ context.Context, unitName string) (State, error) {
	st, ok := f.units[unitName]
	if !ok {
		return State{Load: NewLoadState("not-found")}, nil
	}
	return st, nil
}

func (f *fakeServiceManager) UnitKnown(_ context.Context, unitName string) (bool, error) {
	_, ok := f.units[unitName]
	return ok, nil
}

// newTestDescriptor builds a Descriptor owned by the user running the
// test, so Manager.Create's recursive chown (real exec.Command calls,
// per fsx.Chown) succeeds without requiring the "pipebase" system user
// to exist in the test environment.
func newTestDescriptor(t *testing.T, id string) Descriptor {
	t.Helper()
	appDir := t.TempDir()
	catalogsDir := t.TempDir()

	u, err := user.Current()
	require.NoError(t, err)
	group, err := user.LookupGroupId(u.Gid)
	require.NoError(t, err)

	desc, err := NewDescriptor(id, filepath.Join(appDir, "app"), catalogsDir,
		WithUser(u.Username), WithGroup(group.Name))
	require.NoError(t, err)
	return desc
}

func TestManagerCreateStartStopRemove(t *testing.T) {
	svc := newFakeServiceManager()
	mgr := New(t.TempDir(), svc)
	ctx := context.Background()
	desc := newTestDescriptor(t, "pipe-1")

	require.NoError(t, mgr.Create(ctx, desc))

	ids, err := mgr.ListPipeRegister(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pipe-1"}, ids)

	require.NoError(t, mgr.Start(ctx, "pipe-1"))
	state, err := mgr.Status(ctx, "pipe-1")
	require.NoError(t, err)
	assert.Equal(t, "active", state.Active.String())
	assert.Equal(t, "running", state.Sub.String())

	require.NoError(t, mgr.Stop(ctx, "pipe-1"))
	state, err = mgr.Status(ctx, "pipe-1")
	require.NoError(t, err)
	assert.True(t, state.Removable())

	require.NoError(t, mgr.Remove(ctx, "pipe-1"))
	ids, err = mgr.ListPipeRegister(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestManagerCreateConflict(t *testing.T) {
	svc := newFakeServiceManager()
	mgr := New(t.TempDir(), svc)
	ctx := context.Background()
	desc := newTestDescriptor(t, "pipe-1")

	require.NoError(t, mgr.Create(ctx, desc))
	err := mgr.Create(ctx, desc)
	require.Error(t, err)
}

func TestManagerStartNotRegistered(t *testing.T) {
	mgr := New(t.TempDir(), newFakeServiceManager())
	err := mgr.Start(context.Background(), "ghost")
	require.Error(t, err)
}

func TestManagerRemoveRejectsActivePipe(t *testing.T) {
	svc := newFakeServiceManager()
	mgr := New(t.TempDir(), svc)
	ctx := context.Background()
	desc := newTestDescriptor(t, "pipe-1")

	require.NoError(t, mgr.Create(ctx, desc))
	require.NoError(t, mgr.Start(ctx, "pipe-1"))

	err := mgr.Remove(ctx, "pipe-1")
	require.Error(t, err)
}

func TestManagerRemoveNoOpWhenNotRegistered(t *testing.T) {
	mgr := New(t.TempDir(), newFakeServiceManager())
	err := mgr.Remove(context.Background(), "ghost")
	assert.NoError(t, err)
}
