package pipe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	systemdbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/coreos/go-systemd/v22/unit"
	"github.com/godbus/dbus/v5"

	"github.com/pipebase/pipebased/internal/pipeerr"
)

const (
	startUnitMode = "replace"
	stopUnitMode  = "replace"

	// dbusNoSuchUnit is the D-Bus error name systemd returns from
	// GetUnitProperties when the unit has never been loaded at all.
	dbusNoSuchUnit = "org.freedesktop.systemd1.NoSuchUnit"
)

// ServiceManager is the host service-manager collaborator the Pipe
// Manager is a thin wrapper over: create_unit, start, stop,
// delete_unit, query_properties. It is an interface so the pipe
// manager can be exercised against a fake in tests without a real
// systemd instance.
type ServiceManager interface {
	// CreateUnit renders and installs a unit file for unitName.
	CreateUnit(ctx context.Context, unitName string, opts []*unit.UnitOption) error
	// StartUnit issues a start job for unitName in "replace" mode.
	StartUnit(ctx context.Context, unitName string) error
	// StopUnit issues a stop job for unitName in "replace" mode.
	StopUnit(ctx context.Context, unitName string) error
	// DeleteUnit removes the installed unit file for unitName.
	DeleteUnit(ctx context.Context, unitName string) error
	// QueryProperties returns the three state axes for unitName.
	QueryProperties(ctx context.Context, unitName string) (State, error)
	// UnitKnown reports whether the service manager already has a
	// unit by this name whose load state is anything other than
	// not-found (used for the create-time conflict check).
	UnitKnown(ctx context.Context, unitName string) (bool, error)
}

// SystemdServiceManager implements ServiceManager against a real
// systemd instance over D-Bus, using github.com/coreos/go-systemd/v22.
// A single *systemdbus.Conn is held and reused across calls rather
// than opened fresh per call.
type SystemdServiceManager struct {
	conn    *systemdbus.Conn
	unitDir string
}

// NewSystemdServiceManager opens one pooled system-bus connection and
// installs unit files under unitDir (typically /etc/systemd/system).
func NewSystemdServiceManager(ctx context.Context, unitDir string) (*SystemdServiceManager, error) {
	conn, err := systemdbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, pipeerr.ServiceManager(err)
	}
	return &SystemdServiceManager{conn: conn, unitDir: unitDir}, nil
}

// Close releases the pooled D-Bus connection.
func (s *SystemdServiceManager) Close() { s.conn.Close() }

func (s *SystemdServiceManager) unitPath(unitName string) string {
	return filepath.Join(s.unitDir, unitName)
}

// CreateUnit writes the unit file and makes systemd aware of it via a
// daemon-reload.
func (s *SystemdServiceManager) CreateUnit(ctx context.Context, unitName string, opts []*unit.UnitOption) error {
	f, err := os.Create(s.unitPath(unitName))
	if err != nil {
		return pipeerr.IO(err)
	}
	defer f.Close()
	r := unit.Serialize(opts)
	if _, err := f.ReadFrom(r); err != nil {
		return pipeerr.IO(err)
	}
	if err := s.conn.ReloadContext(ctx); err != nil {
		return pipeerr.ServiceManager(err)
	}
	return nil
}

// StartUnit issues `start_unit(<unit>, "replace")`.
func (s *SystemdServiceManager) StartUnit(ctx context.Context, unitName string) error {
	ch := make(chan string, 1)
	if _, err := s.conn.StartUnitContext(ctx, unitName, startUnitMode, ch); err != nil {
		return pipeerr.ServiceManager(err)
	}
	<-ch
	return nil
}

// StopUnit issues `stop_unit(<unit>, "replace")`.
func (s *SystemdServiceManager) StopUnit(ctx context.Context, unitName string) error {
	ch := make(chan string, 1)
	if _, err := s.conn.StopUnitContext(ctx, unitName, stopUnitMode, ch); err != nil {
		return pipeerr.ServiceManager(err)
	}
	<-ch
	return nil
}

// DeleteUnit removes the installed unit file and daemon-reloads.
func (s *SystemdServiceManager) DeleteUnit(ctx context.Context, unitName string) error {
	if err := os.Remove(s.unitPath(unitName)); err != nil && !os.IsNotExist(err) {
		return pipeerr.IO(err)
	}
	if err := s.conn.ReloadContext(ctx); err != nil {
		return pipeerr.ServiceManager(err)
	}
	return nil
}

// QueryProperties reads LoadState/ActiveState/SubState for unitName.
func (s *SystemdServiceManager) QueryProperties(ctx context.Context, unitName string) (State, error) {
	props, err := s.conn.GetUnitPropertiesContext(ctx, unitName)
	if err != nil {
		return State{}, pipeerr.ServiceManager(err)
	}
	return propsToState(unitName, props), nil
}

// UnitKnown reports whether systemd has ever loaded a unit by this
// name (LoadState != "not-found").
func (s *SystemdServiceManager) UnitKnown(ctx context.Context, unitName string) (bool, error) {
	props, err := s.conn.GetUnitPropertiesContext(ctx, unitName)
	if err != nil {
		var dbusErr dbus.Error
		if errors.As(err, &dbusErr) && dbusErr.Name == dbusNoSuchUnit {
			return false, nil
		}
		return false, pipeerr.ServiceManager(err)
	}
	load, _ := props["LoadState"].(string)
	return load != "" && load != "not-found", nil
}

func propsToState(unitName string, props map[string]interface{}) State {
	load, _ := props["LoadState"].(string)
	active, _ := props["ActiveState"].(string)
	sub, _ := props["SubState"].(string)
	return State{
		ID:     unitName,
		Load:   NewLoadState(load),
		Active: NewActiveState(active),
		Sub:    NewSubState(sub),
	}
}

// unitName derives the host service-manager unit name for a pipe id:
// "<id>.service".
func unitName(id string) string {
	return fmt.Sprintf("%s.service", id)
}
