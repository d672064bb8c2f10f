package cliapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

var ErrDepsNotBuilt = errors.New("dependencies not built, call BuildDeps before SetupServices")

type Service interface {
	Name() string
	Setup(ctx context.Context, deps *Dependencies) error
	Run(ctx context.Context) error
	Close(ctx context.Context) error
}

type PortReporter interface {
	Service
	BoundAddr() string
	Ready() <-chan struct{}
}

// PortsManifest is written to the ports file once every listener is bound.
// It names the store being served so that scripts driving several instances
// can tell them apart.
type PortsManifest struct {
	Namespace string            `json:"namespace,omitempty"`
	Engine    string            `json:"engine,omitempty"`
	Services  map[string]string `json:"services"`
}

// Register adds a service to the server.
// Services are setup in registration order and closed in reverse order.
func (ms *Server) Register(svc Service) {
	ms.services = append(ms.services, svc)
}

func (ms *Server) SetupServices(ctx context.Context) error {
	if ms.deps == nil {
		return ErrDepsNotBuilt
	}

	for _, svc := range ms.services {
		slog.Info("[statusdb.cliapp]",
			slog.String("event_type", "service.setup.started"),
			slog.String("service", svc.Name()),
			slog.String("namespace", ms.namespace()))

		if err := svc.Setup(ctx, ms.deps); err != nil {
			return fmt.Errorf("service %s setup failed: %w", svc.Name(), err)
		}
	}
	return nil
}

// RunServices runs every service until ctx is done or one of them fails.
// The first failure cancels the others.
func (ms *Server) RunServices(ctx context.Context) error {
	g, groupCtx := errgroup.WithContext(ctx)

	for _, svc := range ms.services {
		g.Go(func() error {
			err := svc.Run(groupCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("[statusdb.cliapp]",
					slog.String("event_type", "service.run.error"),
					slog.String("service", svc.Name()),
					slog.String("namespace", ms.namespace()),
					slog.Any("error", err))
			}
			return err
		})
	}

	if ms.PortsFile != "" {
		go ms.waitAndWritePortsFile(groupCtx)
	}

	return g.Wait()
}

// CloseServices shuts down all services in reverse order, then logs the
// store counters as they stood when the last request finished.
func (ms *Server) CloseServices(ctx context.Context) {
	for i := len(ms.services) - 1; i >= 0; i-- {
		svc := ms.services[i]
		if err := svc.Close(ctx); err != nil {
			slog.Error("[statusdb.cliapp]",
				slog.String("event_type", "service.close.error"),
				slog.String("service", svc.Name()),
				slog.Any("error", err))
		}
	}

	if ms.store == nil {
		return
	}
	stats := ms.store.Stats()
	slog.Info("[statusdb.cliapp]",
		slog.String("event_type", "services.closed"),
		slog.Int("services", len(ms.services)),
		slog.Group("store",
			slog.String("namespace", stats.Namespace),
			slog.Uint64("sets", stats.Sets),
			slog.Uint64("gets", stats.Gets),
			slog.Uint64("get_misses", stats.GetMisses),
		),
	)
}

func (ms *Server) BuildDeps() *Dependencies {
	ms.deps = &Dependencies{
		Env:    ms.env,
		Config: ms.cfg,
		Store:  ms.store,
		Status: ms.status,
		Logger: ms.pl,
	}
	return ms.deps
}

func (ms *Server) namespace() string {
	if ms.store == nil {
		return ""
	}
	return ms.store.Namespace()
}

func (ms *Server) portsManifest(ctx context.Context) (PortsManifest, bool) {
	manifest := PortsManifest{Services: make(map[string]string)}
	if ms.store != nil {
		stats := ms.store.Stats()
		manifest.Namespace = stats.Namespace
		manifest.Engine = stats.Engine
	}

	for _, svc := range ms.services {
		pr, ok := svc.(PortReporter)
		if !ok {
			continue
		}
		select {
		case <-pr.Ready():
			if addr := pr.BoundAddr(); addr != "" {
				manifest.Services[svc.Name()] = addr
			}
		case <-ctx.Done():
			slog.Warn("[statusdb.cliapp] context cancelled while waiting for ports",
				slog.String("service", svc.Name()))
			return manifest, false
		}
	}
	return manifest, true
}

func (ms *Server) waitAndWritePortsFile(ctx context.Context) {
	manifest, ok := ms.portsManifest(ctx)
	if !ok {
		return
	}

	if err := writeFileAtomic(ms.PortsFile, manifest); err != nil {
		slog.Error("[statusdb.cliapp] failed to write ports file",
			slog.String("path", ms.PortsFile),
			slog.Any("error", err))
		return
	}

	slog.Info("[statusdb.cliapp]",
		slog.String("event_type", "ports.file.written"),
		slog.String("path", ms.PortsFile),
		slog.Int("service_count", len(manifest.Services)))
}

// writeFileAtomic renames a fully written temp file into place, so a reader
// polling for path never sees a partial manifest.
func writeFileAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
