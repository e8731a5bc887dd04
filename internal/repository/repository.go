// Package repository implements the Repository Manager: an on-disk,
// lock-serialized store of versioned app and catalogs artifacts with
// a separate register file per kind.
package repository

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/pipebase/pipebased/internal/builderclient"
	"github.com/pipebase/pipebased/internal/descriptor"
	"github.com/pipebase/pipebased/internal/fsx"
	"github.com/pipebase/pipebased/internal/pipeerr"
	"github.com/pipebase/pipebased/pkg/logging"
)

const subsystem = "Repository"

// On-disk filenames.
const (
	appLockFile      = "app.lock"
	appRegisterFile  = "app.reg"
	appBinaryFile    = "app"
	catalogsLockFile = "catalogs.lock"
	catalogsRegFile  = "catalogs.reg"
	catalogsDirName  = "catalogs"
)

// Manager is the Repository Manager. It is safe for concurrent use:
// all register mutations are serialized by an advisory lock file per
// root (app directory / catalogs directory). Concurrent pulls of the
// same descriptor are additionally deduplicated in-process by a
// singleflight group per kind, so two callers racing to pull the same
// artifact share one fetch instead of both paying for the transfer.
type Manager struct {
	appDirectory      string
	catalogsDirectory string
	client            builderclient.Client

	pullAppGroup      singleflight.Group
	pullCatalogsGroup singleflight.Group
}

// New constructs a Manager rooted at appDirectory and catalogsDirectory,
// pulling artifact bytes through client.
func New(appDirectory, catalogsDirectory string, client builderclient.Client) *Manager {
	return &Manager{
		appDirectory:      appDirectory,
		catalogsDirectory: catalogsDirectory,
		client:            client,
	}
}

func (m *Manager) appPath(desc descriptor.App) string {
	return filepath.Join(m.appDirectory, desc.Namespace, desc.ID, strconv.FormatUint(desc.Version, 10), appBinaryFile)
}

func (m *Manager) catalogsPath(desc descriptor.Catalogs) string {
	return filepath.Join(m.catalogsDirectory, desc.Namespace, desc.ID, strconv.FormatUint(desc.Version, 10), catalogsDirName)
}

func (m *Manager) openAppLock() (*fsx.LockFile, error) {
	return fsx.OpenLockFile(filepath.Join(m.appDirectory, appLockFile))
}

func (m *Manager) openCatalogsLock() (*fsx.LockFile, error) {
	return fsx.OpenLockFile(filepath.Join(m.catalogsDirectory, catalogsLockFile))
}

func (m *Manager) appRegisterPath() string {
	return filepath.Join(m.appDirectory, appRegisterFile)
}

func (m *Manager) catalogsRegisterPath() string {
	return filepath.Join(m.catalogsDirectory, catalogsRegFile)
}

func readAppRegister(path string) ([]descriptor.App, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	var descs []descriptor.App
	if err := fsx.ReadYAML(path, &descs); err != nil {
		return nil, err
	}
	return descs, nil
}

func readCatalogsRegister(path string) ([]descriptor.Catalogs, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	var descs []descriptor.Catalogs
	if err := fsx.ReadYAML(path, &descs); err != nil {
		return nil, err
	}
	return descs, nil
}

func appIndexOf(descs []descriptor.App, target descriptor.App) int {
	for i, d := range descs {
		if d.Equal(target) {
			return i
		}
	}
	return -1
}

func catalogsIndexOf(descs []descriptor.Catalogs, target descriptor.Catalogs) int {
	for i, d := range descs {
		if d.Equal(target) {
			return i
		}
	}
	return -1
}

// swapRemoveApp removes the element at i without preserving order,
// avoiding an O(N) shift.
func swapRemoveApp(descs []descriptor.App, i int) []descriptor.App {
	last := len(descs) - 1
	descs[i] = descs[last]
	return descs[:last]
}

func swapRemoveCatalogs(descs []descriptor.Catalogs, i int) []descriptor.Catalogs {
	last := len(descs) - 1
	descs[i] = descs[last]
	return descs[:last]
}

// PullApp fetches the app bytes from the builder service, then under
// the app lock no-ops (warn-logs) if desc is already registered;
// otherwise it saves the binary, chmods it executable, and appends
// desc to the register. Bytes are fetched before the lock is taken so
// a slow network does not stall unrelated pull/remove operations.
// Concurrent pulls of the same descriptor share one fetch via
// pullAppGroup rather than each downloading the blob independently.
func (m *Manager) PullApp(ctx context.Context, desc descriptor.App) error {
	result, err, _ := m.pullAppGroup.Do(desc.String(), func() (any, error) {
		return m.client.PullApp(ctx, desc)
	})
	if err != nil {
		return err
	}
	buffer := result.([]byte)

	lock, err := m.openAppLock()
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	descs, err := readAppRegister(m.appRegisterPath())
	if err != nil {
		return err
	}
	if appIndexOf(descs, desc) >= 0 {
		logging.Warn(subsystem, "pull_app no-op, already registered: %s", desc)
		return nil
	}

	if err := m.saveApp(desc, buffer); err != nil {
		return err
	}
	descs = append(descs, desc)
	return fsx.WriteYAML(m.appRegisterPath(), descs)
}

func (m *Manager) saveApp(desc descriptor.App, buffer []byte) error {
	version := strconv.FormatUint(desc.Version, 10)
	if err := fsx.CreateRecursiveDirectoryWithPermission(
		[]string{m.appDirectory, desc.Namespace, desc.ID, version}, "+r"); err != nil {
		return err
	}
	path := m.appPath(desc)
	if err := fsx.WriteFile(path, buffer); err != nil {
		return err
	}
	return fsx.Chmod("+x", path, false)
}

// PullCatalogs fetches the catalogs archive bytes, then under the
// catalogs lock no-ops if desc is already registered; otherwise it
// delegates archive expansion to the builder client, chmods the tree
// readable recursively, and appends desc to the register. Concurrent
// pulls of the same descriptor share one fetch via pullCatalogsGroup.
func (m *Manager) PullCatalogs(ctx context.Context, desc descriptor.Catalogs) error {
	result, err, _ := m.pullCatalogsGroup.Do(desc.String(), func() (any, error) {
		return m.client.PullCatalogs(ctx, desc)
	})
	if err != nil {
		return err
	}
	buffer := result.([]byte)

	lock, err := m.openCatalogsLock()
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	descs, err := readCatalogsRegister(m.catalogsRegisterPath())
	if err != nil {
		return err
	}
	if catalogsIndexOf(descs, desc) >= 0 {
		logging.Warn(subsystem, "pull_catalogs no-op, already registered: %s", desc)
		return nil
	}

	if err := m.saveCatalogs(ctx, desc, buffer); err != nil {
		return err
	}
	descs = append(descs, desc)
	return fsx.WriteYAML(m.catalogsRegisterPath(), descs)
}

func (m *Manager) saveCatalogs(ctx context.Context, desc descriptor.Catalogs, buffer []byte) error {
	version := strconv.FormatUint(desc.Version, 10)
	if err := fsx.CreateRecursiveDirectoryWithPermission(
		[]string{m.catalogsDirectory, desc.Namespace, desc.ID, version}, "+r"); err != nil {
		return err
	}
	path := m.catalogsPath(desc)
	if err := m.client.DumpCatalogs(ctx, buffer, path); err != nil {
		return err
	}
	return fsx.Chmod("+r", path, true)
}

// RemoveApp no-ops (warn-logs) if desc is not registered; otherwise it
// recursively deletes the version directory and removes desc from the
// register via swap-remove.
func (m *Manager) RemoveApp(_ context.Context, desc descriptor.App) error {
	lock, err := m.openAppLock()
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	descs, err := readAppRegister(m.appRegisterPath())
	if err != nil {
		return err
	}
	i := appIndexOf(descs, desc)
	if i < 0 {
		logging.Warn(subsystem, "remove_app no-op, not registered: %s", desc)
		return nil
	}

	versionDir := filepath.Dir(m.appPath(desc))
	if err := os.RemoveAll(versionDir); err != nil {
		return pipeerr.IO(err)
	}
	descs = swapRemoveApp(descs, i)
	return fsx.WriteYAML(m.appRegisterPath(), descs)
}

// RemoveCatalogs is the catalogs-kind symmetric of RemoveApp.
func (m *Manager) RemoveCatalogs(_ context.Context, desc descriptor.Catalogs) error {
	lock, err := m.openCatalogsLock()
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	descs, err := readCatalogsRegister(m.catalogsRegisterPath())
	if err != nil {
		return err
	}
	i := catalogsIndexOf(descs, desc)
	if i < 0 {
		logging.Warn(subsystem, "remove_catalogs no-op, not registered: %s", desc)
		return nil
	}

	versionDir := filepath.Dir(m.catalogsPath(desc))
	if err := os.RemoveAll(versionDir); err != nil {
		return pipeerr.IO(err)
	}
	descs = swapRemoveCatalogs(descs, i)
	return fsx.WriteYAML(m.catalogsRegisterPath(), descs)
}

// ListAppRegister returns the app register contents under the app
// lock.
func (m *Manager) ListAppRegister(_ context.Context) ([]descriptor.App, error) {
	lock, err := m.openAppLock()
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, err
	}
	defer lock.Unlock()
	return readAppRegister(m.appRegisterPath())
}

// ListCatalogsRegister returns the catalogs register contents under
// the catalogs lock.
func (m *Manager) ListCatalogsRegister(_ context.Context) ([]descriptor.Catalogs, error) {
	lock, err := m.openCatalogsLock()
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, err
	}
	defer lock.Unlock()
	return readCatalogsRegister(m.catalogsRegisterPath())
}

// CheckAppRegistered returns the canonical artifact path if desc is in
// the app register, else ("", false). The register is authoritative:
// if the path does not exist on disk despite a register entry, this
// still reports registered but emits a conflict warning.
func (m *Manager) CheckAppRegistered(_ context.Context, desc descriptor.App) (string, bool, error) {
	lock, err := m.openAppLock()
	if err != nil {
		return "", false, err
	}
	if err := lock.Lock(); err != nil {
		return "", false, err
	}
	defer lock.Unlock()

	descs, err := readAppRegister(m.appRegisterPath())
	if err != nil {
		return "", false, err
	}
	if appIndexOf(descs, desc) < 0 {
		return "", false, nil
	}
	path := m.appPath(desc)
	if _, statErr := os.Stat(path); statErr != nil {
		logging.Warn(subsystem, "register/filesystem conflict for %s: path %s missing", desc, path)
	}
	return path, true, nil
}

// CheckCatalogsRegistered is the catalogs-kind symmetric of
// CheckAppRegistered.
func (m *Manager) CheckCatalogsRegistered(_ context.Context, desc descriptor.Catalogs) (string, bool, error) {
	lock, err := m.openCatalogsLock()
	if err != nil {
		return "", false, err
	}
	if err := lock.Lock(); err != nil {
		return "", false, err
	}
	defer lock.Unlock()

	descs, err := readCatalogsRegister(m.catalogsRegisterPath())
	if err != nil {
		return "", false, err
	}
	if catalogsIndexOf(descs, desc) < 0 {
		return "", false, nil
	}
	path := m.catalogsPath(desc)
	if _, statErr := os.Stat(path); statErr != nil {
		logging.Warn(subsystem, "register/filesystem conflict for %s: path %s missing", desc, path)
	}
	return path, true, nil
}
