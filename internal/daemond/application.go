package daemond

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pipebase/pipebased/internal/builderclient"
	"github.com/pipebase/pipebased/internal/config"
	"github.com/pipebase/pipebased/internal/pipe"
	"github.com/pipebase/pipebased/internal/repository"
	"github.com/pipebase/pipebased/pkg/logging"
)

const appSubsystem = "Application"

// Application is the fully wired daemon: a Facade backed by a
// Repository Manager and a Pipe Manager over a real systemd service
// manager, served over HTTP via the RPC adapter.
type Application struct {
	cfg    *config.Config
	facade *Facade
	server *http.Server
	svcMgr *pipe.SystemdServiceManager
}

// Bootstrap wires an Application from cfg: a repository manager rooted
// at the configured app/catalogs directories, a pipe manager over a
// real systemd connection, and the façade composing both. The HTTP
// server is not built here; Serve creates it on cfg.Address.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	client := builderclient.New(builderclient.Options{
		BaseURL: cfg.Daemon.Repository.PBClient.BaseURL,
		Timeout: 30 * time.Second,
	})
	repoMgr := repository.New(cfg.Daemon.Repository.AppDirectory, cfg.Daemon.Repository.CatalogsDirectory, client)

	svcMgr, err := pipe.NewSystemdServiceManager(ctx, "/etc/systemd/system")
	if err != nil {
		return nil, err
	}
	pipeMgr := pipe.New(cfg.Daemon.Pipe.Workspace, svcMgr)

	facade := New(repoMgr, pipeMgr)

	return &Application{cfg: cfg, facade: facade, svcMgr: svcMgr}, nil
}

// Facade exposes the wired façade, primarily for embedding the RPC
// adapter from the cmd package without importing internal/rpcadapter
// here (keeping daemond free of a transport dependency).
func (a *Application) Facade() *Facade { return a.facade }

// Serve runs handler (normally an *rpcadapter.Server wrapping
// a.Facade()) on a.cfg.Address until ctx is cancelled or a termination
// signal arrives, then shuts down gracefully.
func (a *Application) Serve(ctx context.Context, handler http.Handler) error {
	a.server = &http.Server{Addr: a.cfg.Address, Handler: handler}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logging.Info(appSubsystem, "listening on %s", a.cfg.Address)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-sigCtx.Done():
		logging.Info(appSubsystem, "shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown stops the HTTP server and releases the systemd connection.
func (a *Application) Shutdown(ctx context.Context) error {
	defer a.svcMgr.Close()
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}
