package metrics

import (
	"log/slog"
	"os"
	"sync"

	"github.com/ankur-anand/statusdb/recordstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
)

const (
	namespace = "statusdb"
)

// StatsSource is satisfied by *recordstore.Store.
type StatsSource interface {
	Stats() recordstore.Stats
}

// StoreCollector exports the record store counters together with the process
// disk I/O the store causes.
type StoreCollector struct {
	source StatsSource
	proc   *process.Process
	mu     sync.Mutex

	setsDesc        *prometheus.Desc
	getsDesc        *prometheus.Desc
	missesDesc      *prometheus.Desc
	filterSkipsDesc *prometheus.Desc
	readBytesDesc   *prometheus.Desc
	writeBytesDesc  *prometheus.Desc
	cpuIowaitDesc   *prometheus.Desc
}

// NewStoreCollector creates a collector for source and the current process.
func NewStoreCollector(source StatsSource) (*StoreCollector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	storeLabels := []string{"namespace", "engine"}
	return &StoreCollector{
		source: source,
		proc:   proc,
		setsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "sets_total"),
			"Status records written since open",
			storeLabels, nil,
		),
		getsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "gets_total"),
			"Status lookups since open",
			storeLabels, nil,
		),
		missesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "get_misses_total"),
			"Lookups for accounts without a status",
			storeLabels, nil,
		),
		filterSkipsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "filter_skips_total"),
			"Misses answered by the bloom filter without touching the B-tree",
			storeLabels, nil,
		),
		readBytesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "process", "io_read_bytes_total"),
			"Total number of bytes read by the process",
			nil, nil,
		),
		writeBytesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "process", "io_write_bytes_total"),
			"Total number of bytes written by the process",
			nil, nil,
		),
		cpuIowaitDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "system", "cpu_iowait_percent"),
			"Percentage of CPU time spent waiting for I/O",
			nil, nil,
		),
	}, nil
}

// Describe implements prometheus.Collector
func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.setsDesc
	ch <- c.getsDesc
	ch <- c.missesDesc
	ch <- c.filterSkipsDesc
	ch <- c.readBytesDesc
	ch <- c.writeBytesDesc
	ch <- c.cpuIowaitDesc
}

// Collect implements prometheus.Collector
func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.source.Stats()
	for desc, value := range map[*prometheus.Desc]uint64{
		c.setsDesc:        stats.Sets,
		c.getsDesc:        stats.Gets,
		c.missesDesc:      stats.GetMisses,
		c.filterSkipsDesc: stats.FilterSkips,
	} {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(value),
			stats.Namespace, stats.Engine)
	}

	ioCounters, err := c.proc.IOCounters()
	if err != nil {
		slog.Debug("[statusdb.metrics] failed to get process I/O counters", slog.Any("error", err))
	} else {
		ch <- prometheus.MustNewConstMetric(c.readBytesDesc, prometheus.CounterValue, float64(ioCounters.ReadBytes))
		ch <- prometheus.MustNewConstMetric(c.writeBytesDesc, prometheus.CounterValue, float64(ioCounters.WriteBytes))
	}

	cpuTimes, err := cpu.Times(false)
	if err != nil || len(cpuTimes) == 0 {
		slog.Debug("[statusdb.metrics] failed to get CPU times", slog.Any("error", err))
		return
	}

	times := cpuTimes[0]
	total := times.User + times.System + times.Idle + times.Nice +
		times.Iowait + times.Irq + times.Softirq + times.Steal

	var iowaitPercent float64
	if total > 0 {
		iowaitPercent = (times.Iowait / total) * 100.0
	}

	ch <- prometheus.MustNewConstMetric(c.cpuIowaitDesc, prometheus.GaugeValue, iowaitPercent)
}
