// Command campreg runs the camp registration wizard API and offers
// maintenance subcommands for the locally staged registration.
//
// Usage:
//
//	campreg [serve] [-addr :8080]
//	campreg show
//	campreg sync
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"campreg/internal/adapters/wizard"
	"campreg/internal/blob"
	"campreg/internal/catalog"
	"campreg/internal/core"
	"campreg/internal/platform/config"
	"campreg/internal/platform/logger"
	"campreg/internal/platform/otel"
	"campreg/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName     = "campreg"
	shutdownTimeout = 10 * time.Second
)

var (
	exitFunc      = os.Exit
	notifyContext = signal.NotifyContext
)

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	fs := flag.NewFlagSet("campreg "+cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var addr string
	fs.StringVar(&addr, "addr", "", "listen address for serve (overrides CAMPREG_ADDR)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if addr != "" {
		cfg.Addr = addr
	}

	ctx, stop := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve", "show", "sync":
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q (want serve, show or sync)\n", cmd)
		return 2
	}

	a, err := newApp(ctx, cfg, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer a.close()

	switch cmd {
	case "show":
		return a.show(ctx, stdout, stderr)
	case "sync":
		return a.sync(ctx, stdout, stderr)
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "listen: %v\n", err)
		return 1
	}
	if err := a.serve(ctx, ln); err != nil {
		a.logger.Error("server stopped", "error", err)
		return 1
	}
	return 0
}

// app holds the wired components shared by every subcommand.
type app struct {
	cfg             config.Config
	logger          *slog.Logger
	store           domain.StagingStore
	engine          *core.SyncEngine
	wizard          *core.Wizard
	catalog         *catalog.Catalog
	registry        *prometheus.Registry
	shutdownTracing func(context.Context) error
}

func newApp(ctx context.Context, cfg config.Config, logOut io.Writer) (_ *app, err error) {
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, logOut)
	if err != nil {
		return nil, err
	}
	shutdownTracing, err := otel.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a := &app{cfg: cfg, logger: log, shutdownTracing: shutdownTracing}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.catalog, err = loadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := core.NewMetrics(a.registry)

	a.store, err = core.OpenStagingStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	remote, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open remote store: %w", err)
	}

	a.engine, err = core.NewSyncEngine(remote,
		core.WithSyncTimeout(cfg.SyncTimeout),
		core.WithKeyPrefix(cfg.SyncKeyPrefix),
		core.WithSyncLogger(log),
		core.WithSyncMetrics(metrics),
		core.WithObserver(func(s core.SyncStatus) {
			log.Debug("sync status changed", "state", s.State, "attempts", s.Attempts)
		}),
	)
	if err != nil {
		return nil, err
	}
	a.wizard, err = core.NewWizard(a.store, a.engine,
		core.WithCampAvailability(a.catalog),
		core.WithLogger(log),
		core.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}
	log.Info("campreg ready",
		"storage", cfg.Storage.Driver,
		"remote", remote.Driver(),
		"sync_timeout", cfg.SyncTimeout,
	)
	return a, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return catalog.Default(), nil
	}
	data, err := os.ReadFile(path) // #nosec G304: operator-supplied catalog path
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := catalog.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close staging store", "error", err)
		}
	}
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.shutdownTracing(ctx); err != nil {
			a.logger.Warn("shutdown tracing", "error", err)
		}
	}
}

// serve resumes any staged registration, optionally pushes it again, and
// serves the API on ln until ctx is done.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	rec, found, err := a.wizard.Resume(ctx)
	if err != nil {
		return err
	}
	if found {
		a.logger.Info("resumed staged registration", "id", rec.ID)
		if a.cfg.ResyncOnStart {
			out, _, err := a.wizard.Resync(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("startup resync finished", "status", out.Status, "key", out.Key)
		}
	}

	handler := wizard.NewHandler(a.wizard, a.catalog,
		wizard.WithLogger(a.logger),
		wizard.WithGatherer(a.registry),
	)
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func (a *app) show(ctx context.Context, stdout, stderr io.Writer) int {
	rec, found, err := a.store.Pending(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "read staged registration: %v\n", err)
		return 1
	}
	if !found {
		_, _ = fmt.Fprintln(stdout, "No staged registration.")
		return 0
	}
	return writeJSON(stdout, stderr, rec)
}

func (a *app) sync(ctx context.Context, stdout, stderr io.Writer) int {
	out, found, err := a.wizard.Resync(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "sync: %v\n", err)
		return 1
	}
	if !found {
		_, _ = fmt.Fprintln(stdout, "No staged registration.")
		return 0
	}
	if code := writeJSON(stdout, stderr, out); code != 0 {
		return code
	}
	if !out.Succeeded() {
		_, _ = fmt.Fprintf(stderr, "sync failed (%s): %v\n", out.Failure, out.Err)
		return 1
	}
	return 0
}

func writeJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintf(stderr, "encode: %v\n", err)
		return 1
	}
	return 0
}
