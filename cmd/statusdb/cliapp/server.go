package cliapp

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/ankur-anand/statusdb/cmd/statusdb/config"
	"github.com/ankur-anand/statusdb/contract"
	statusmetrics "github.com/ankur-anand/statusdb/internal/metrics"
	"github.com/ankur-anand/statusdb/pkg/logutil"
	"github.com/ankur-anand/statusdb/pkg/umetrics"
	"github.com/ankur-anand/statusdb/recordstore"
	"github.com/hashicorp/go-metrics"
	hashiprom "github.com/hashicorp/go-metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	tallyprom "github.com/uber-go/tally/v4/prometheus"
)

type Server struct {
	env    string
	cfg    config.Config
	store  *recordstore.Store
	status *contract.StatusMessage
	pl     *slog.Logger

	services []Service
	deps     *Dependencies

	// PortsFile, when set, receives a JSON map of service name to bound address
	// once every listener is up.
	PortsFile string

	// callbacks when shutdown.
	DeferCallback []func(ctx context.Context)
}

func (ms *Server) InitFromCLI(cfgPath, env string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ms.env = env

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		ms.cfg = cfg

		logPercentage, err := config.ParseLevelPercents(ms.cfg.LogConfig)
		if err != nil {
			return err
		}
		minLevel, err := logutil.ParseLevel(ms.cfg.LogConfig.LogLevel)
		if err != nil {
			return err
		}

		handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: minLevel})
		ms.pl = logutil.NewSampledLogger(logPercentage, handler, minLevel)
		slog.SetDefault(ms.pl)
		return nil
	}
}

func (ms *Server) InitTelemetry(ctx context.Context) error {
	prometheus.Unregister(collectors.NewGoCollector())
	err := prometheus.Register(collectors.NewBuildInfoCollector())
	if err != nil {
		return err
	}

	sink, err := hashiprom.NewPrometheusSink()
	if err != nil {
		return err
	}

	defaultConfig := metrics.DefaultConfig(ms.cfg.MetricsConfig.MetricsPrefix())
	defaultConfig.EnableHostname = false
	_, err = metrics.NewGlobal(defaultConfig, sink)
	if err != nil {
		return err
	}

	closer, err := umetrics.Initialize(umetrics.Options{
		Prefix:         ms.cfg.MetricsConfig.MetricsPrefix(),
		Reporter:       tallyprom.NewReporter(tallyprom.Options{}),
		ReportInterval: ms.cfg.MetricsConfig.MetricsReportInterval(),
		CommonTags:     map[string]string{"env": ms.env},
	})
	if err != nil {
		return err
	}
	ms.deferClose("metrics", closer)
	return nil
}

func (ms *Server) SetupStorage(ctx context.Context) error {
	storeConf, err := ms.cfg.Storage.RecordStoreConfig()
	if err != nil {
		return err
	}

	store, err := recordstore.Open(ms.cfg.Storage.BaseDir, storeConf)
	if err != nil {
		return err
	}

	ms.store = store
	ms.status = contract.NewStatusMessage(store)
	ms.deferClose("storage", store)

	collector, err := statusmetrics.NewStoreCollector(store)
	if err != nil {
		slog.Warn("[statusdb.cliapp] store collector disabled", slog.Any("error", err))
		return nil
	}
	if err := prometheus.Register(collector); err != nil {
		return err
	}
	ms.DeferCallback = append(ms.DeferCallback, func(ctx context.Context) {
		prometheus.Unregister(collector)
	})
	return nil
}

func (ms *Server) deferClose(name string, closer io.Closer) {
	if closer == nil {
		return
	}
	ms.DeferCallback = append(ms.DeferCallback, func(ctx context.Context) {
		if err := closer.Close(); err != nil {
			slog.Error("[statusdb.cliapp] close failed",
				slog.String("component", name),
				slog.Any("error", err))
		}
	})
}

// Shutdown runs the deferred callbacks, most recent first.
func (ms *Server) Shutdown(ctx context.Context) {
	for i := len(ms.DeferCallback) - 1; i >= 0; i-- {
		ms.DeferCallback[i](ctx)
	}
}
