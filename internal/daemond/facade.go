// Package daemond implements the Daemon Façade: the composition rules
// binding the Repository Manager and the Pipe Manager, including the
// cross-manager invariant that a pipe may only be created if both
// referenced artifacts are registered.
package daemond

import (
	"context"

	"github.com/pipebase/pipebased/internal/descriptor"
	"github.com/pipebase/pipebased/internal/pipe"
	"github.com/pipebase/pipebased/internal/pipeerr"
	"github.com/pipebase/pipebased/internal/repository"
	"github.com/pipebase/pipebased/pkg/logging"
)

const subsystem = "Facade"

// CreatePipeRequest is the façade-level request to create a pipe,
// mirroring §6's CreatePipe RPC request shape before defaults are
// applied.
type CreatePipeRequest struct {
	ID          string
	Description string // optional; default applied if empty
	User        string // optional; default applied if empty
	Group       string // optional; default applied if empty
	Envs        []pipe.EnvVar
	App         descriptor.App
	Catalogs    descriptor.Catalogs
}

// Facade composes the Repository Manager and Pipe Manager.
type Facade struct {
	Repo *repository.Manager
	Pipe *pipe.Manager
}

// New constructs a Facade over the given managers.
func New(repo *repository.Manager, pipeMgr *pipe.Manager) *Facade {
	return &Facade{Repo: repo, Pipe: pipeMgr}
}

// Repository pass-throughs: these forward directly to the Repository
// Manager.

func (f *Facade) PullApp(ctx context.Context, desc descriptor.App) error {
	return f.Repo.PullApp(ctx, desc)
}

func (f *Facade) PullCatalogs(ctx context.Context, desc descriptor.Catalogs) error {
	return f.Repo.PullCatalogs(ctx, desc)
}

func (f *Facade) RemoveApp(ctx context.Context, desc descriptor.App) error {
	return f.Repo.RemoveApp(ctx, desc)
}

func (f *Facade) RemoveCatalogs(ctx context.Context, desc descriptor.Catalogs) error {
	return f.Repo.RemoveCatalogs(ctx, desc)
}

func (f *Facade) ListApp(ctx context.Context) ([]descriptor.App, error) {
	return f.Repo.ListAppRegister(ctx)
}

func (f *Facade) ListCatalogs(ctx context.Context) ([]descriptor.Catalogs, error) {
	return f.Repo.ListCatalogsRegister(ctx)
}

// CreatePipe resolves app_path and catalogs_path via the repository
// manager — failing Resource/NotFound before any pipe-side work if
// either is unregistered — applies defaults, and delegates to the pipe
// manager. A pipe may only be created once both referenced artifacts
// are registered.
func (f *Facade) CreatePipe(ctx context.Context, req CreatePipeRequest) error {
	appPath, ok, err := f.Repo.CheckAppRegistered(ctx, req.App)
	if err != nil {
		return err
	}
	if !ok {
		return pipeerr.Resource(pipeerr.ResourceApp, notFoundError{req.App.String()})
	}

	catalogsPath, ok, err := f.Repo.CheckCatalogsRegistered(ctx, req.Catalogs)
	if err != nil {
		return err
	}
	if !ok {
		return pipeerr.Resource(pipeerr.ResourceCatalogs, notFoundError{req.Catalogs.String()})
	}

	var opts []pipe.Option
	if req.Description != "" {
		opts = append(opts, pipe.WithDescription(req.Description))
	}
	if req.User != "" {
		opts = append(opts, pipe.WithUser(req.User))
	}
	if req.Group != "" {
		opts = append(opts, pipe.WithGroup(req.Group))
	}
	if len(req.Envs) > 0 {
		opts = append(opts, pipe.WithEnvs(req.Envs))
	}

	desc, err := pipe.NewDescriptor(req.ID, appPath, catalogsPath, opts...)
	if err != nil {
		return err
	}
	return f.Pipe.Create(ctx, desc)
}

func (f *Facade) StartPipe(ctx context.Context, id string) error { return f.Pipe.Start(ctx, id) }
func (f *Facade) StopPipe(ctx context.Context, id string) error  { return f.Pipe.Stop(ctx, id) }
func (f *Facade) RemovePipe(ctx context.Context, id string) error { return f.Pipe.Remove(ctx, id) }

// ListPipeStatus reads the pipe register and resolves status(id) for
// each entry. A single id that fails to resolve is logged and
// skipped — the only place a per-item failure is swallowed rather than
// propagated.
func (f *Facade) ListPipeStatus(ctx context.Context) ([]pipe.State, error) {
	ids, err := f.Pipe.ListPipeRegister(ctx)
	if err != nil {
		return nil, err
	}
	states := make([]pipe.State, 0, len(ids))
	for _, id := range ids {
		state, err := f.Pipe.Status(ctx, id)
		if err != nil {
			logging.Warn(subsystem, "skipping pipe %s in list_pipe_status: %v", id, err)
			continue
		}
		states = append(states, state)
	}
	return states, nil
}

// notFoundError is a plain error carrying the descriptor text, wrapped
// by pipeerr.Resource so the RPC adapter can still classify it as a
// user fault.
type notFoundError struct{ desc string }

func (e notFoundError) Error() string { return e.desc + " is not registered" }
