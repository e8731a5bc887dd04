// Package pipe implements the Pipe Manager: a state-machine wrapper
// over the host service manager that creates unit files, grants
// ownership, serializes concurrent lifecycle operations via a
// workspace lock, and reports three-axis service state.
package pipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	sdunit "github.com/coreos/go-systemd/v22/unit"

	"github.com/pipebase/pipebased/internal/fsx"
	"github.com/pipebase/pipebased/internal/pipeerr"
	"github.com/pipebase/pipebased/pkg/logging"
)

const subsystem = "Pipe"

const (
	pipeLockFile     = "pipe.lock"
	pipeRegisterFile = "pipe.reg"
	catalogsLinkName = "catalogs"
)

// Manager is the Pipe Manager, rooted at one workspace directory.
type Manager struct {
	workspace string
	svc       ServiceManager
}

// New constructs a Manager that installs working directories under
// workspace and issues unit operations through svc.
func New(workspace string, svc ServiceManager) *Manager {
	return &Manager{workspace: workspace, svc: svc}
}

func (m *Manager) lockPath() string     { return filepath.Join(m.workspace, pipeLockFile) }
func (m *Manager) registerPath() string { return filepath.Join(m.workspace, pipeRegisterFile) }

func (m *Manager) openLock() (*fsx.LockFile, error) {
	return fsx.OpenLockFile(m.lockPath())
}

func readRegister(path string) ([]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	var ids []string
	if err := fsx.ReadYAML(path, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// swapRemove removes the element at i without preserving order, per
// the same register-removal policy as the repository manager (§4.3).
func swapRemove(ids []string, i int) []string {
	last := len(ids) - 1
	ids[i] = ids[last]
	return ids[:last]
}

// Create installs pipe desc: fails Create/conflict if the id is
// already registered or already known to the host service manager;
// otherwise creates the working directory, symlinks catalogs, grants
// ownership, installs the unit file, and registers the id. All under
// pipe.lock.
func (m *Manager) Create(ctx context.Context, desc Descriptor) error {
	lock, err := m.openLock()
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	ids, err := readRegister(m.registerPath())
	if err != nil {
		return err
	}
	if indexOf(ids, desc.ID) >= 0 {
		return pipeerr.Pipe(pipeerr.PipeOpCreate, fmt.Sprintf("conflict pipe id %q", desc.ID))
	}
	name := unitName(desc.ID)
	known, err := m.svc.UnitKnown(ctx, name)
	if err != nil {
		return err
	}
	if known {
		return pipeerr.Pipe(pipeerr.PipeOpCreate, fmt.Sprintf("conflict pipe id %q", desc.ID))
	}

	workingDir := filepath.Join(m.workspace, desc.ID)
	if err := fsx.CreateDirectory(workingDir); err != nil {
		return err
	}
	catalogsLink := filepath.Join(workingDir, catalogsLinkName)
	if err := fsx.Link(desc.CatalogsPath, catalogsLink, true); err != nil {
		return err
	}
	if err := fsx.Chown(desc.User, desc.Group, workingDir, true); err != nil {
		return err
	}

	opts, err := renderUnitOptions(desc, workingDir)
	if err != nil {
		return err
	}
	if err := m.svc.CreateUnit(ctx, name, opts); err != nil {
		return err
	}

	ids = append(ids, desc.ID)
	return fsx.WriteYAML(m.registerPath(), ids)
}

// renderUnitOptions builds the unit file option list for desc: a
// [Unit] Description, a [Service] ExecStart of a single argv element,
// WorkingDirectory, User, Group, and one Environment=
// line per env pair in insertion order.
func renderUnitOptions(desc Descriptor, workingDir string) ([]*sdunit.UnitOption, error) {
	if !utf8.ValidString(desc.AppPath) {
		return nil, pipeerr.Path(pipeerr.PipeOpCreate, "app path is not valid UTF-8")
	}
	if !utf8.ValidString(workingDir) {
		return nil, pipeerr.Path(pipeerr.PipeOpCreate, "working directory is not valid UTF-8")
	}

	opts := []*sdunit.UnitOption{
		sdunit.NewUnitOption("Unit", "Description", desc.Description),
		sdunit.NewUnitOption("Service", "ExecStart", desc.AppPath),
		sdunit.NewUnitOption("Service", "WorkingDirectory", workingDir),
		sdunit.NewUnitOption("Service", "User", desc.User),
		sdunit.NewUnitOption("Service", "Group", desc.Group),
	}
	for _, e := range desc.Envs {
		opts = append(opts, sdunit.NewUnitOption("Service", "Environment", fmt.Sprintf("%s=%s", e.Key, e.Value)))
	}
	return opts, nil
}

// Start issues start_unit for id, failing Start/not-registered if id
// is not in the pipe register.
func (m *Manager) Start(ctx context.Context, id string) error {
	lock, err := m.openLock()
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	if err := m.requireRegistered(id, pipeerr.PipeOpStart); err != nil {
		return err
	}
	return m.svc.StartUnit(ctx, unitName(id))
}

// Stop issues stop_unit for id, failing Stop/not-registered if id is
// not in the pipe register.
func (m *Manager) Stop(ctx context.Context, id string) error {
	lock, err := m.openLock()
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	if err := m.requireRegistered(id, pipeerr.PipeOpStop); err != nil {
		return err
	}
	return m.svc.StopUnit(ctx, unitName(id))
}

// Status resolves and returns the current three-axis state for id,
// failing Status/not-registered if id is not in the pipe register.
func (m *Manager) Status(ctx context.Context, id string) (State, error) {
	lock, err := m.openLock()
	if err != nil {
		return State{}, err
	}
	if err := lock.Lock(); err != nil {
		return State{}, err
	}
	defer lock.Unlock()

	if err := m.requireRegistered(id, pipeerr.PipeOpStatus); err != nil {
		return State{}, err
	}
	state, err := m.svc.QueryProperties(ctx, unitName(id))
	if err != nil {
		return State{}, err
	}
	state.ID = id
	return state, nil
}

// Remove no-ops if id is not registered; otherwise it requires the
// pipe be Inactive and Dead (failing Remove/precondition otherwise),
// deletes the unit file, and removes id from the register via
// swap-remove.
func (m *Manager) Remove(ctx context.Context, id string) error {
	lock, err := m.openLock()
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	ids, err := readRegister(m.registerPath())
	if err != nil {
		return err
	}
	i := indexOf(ids, id)
	if i < 0 {
		logging.Warn(subsystem, "remove no-op, pipe %s not registered", id)
		return nil
	}

	name := unitName(id)
	state, err := m.svc.QueryProperties(ctx, name)
	if err != nil {
		return err
	}
	if !state.Removable() {
		return pipeerr.Pipe(pipeerr.PipeOpRemove,
			fmt.Sprintf("pipe %s is not inactive+dead (active=%s, sub=%s)", id, state.Active, state.Sub))
	}

	if err := m.svc.DeleteUnit(ctx, name); err != nil {
		return err
	}
	ids = swapRemove(ids, i)
	return fsx.WriteYAML(m.registerPath(), ids)
}

// ListPipeRegister returns the pipe ids known to this daemon.
func (m *Manager) ListPipeRegister(_ context.Context) ([]string, error) {
	lock, err := m.openLock()
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, err
	}
	defer lock.Unlock()
	return readRegister(m.registerPath())
}

func (m *Manager) requireRegistered(id string, op pipeerr.PipeOp) error {
	ids, err := readRegister(m.registerPath())
	if err != nil {
		return err
	}
	if indexOf(ids, id) < 0 {
		return pipeerr.Pipe(op, fmt.Sprintf("pipe %s not registered", id))
	}
	return nil
}
