package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/procfs"
	"github.com/z0w13/dmserv/internal/metrics"
	"github.com/z0w13/dmserv/internal/model"
	"github.com/z0w13/dmserv/internal/store"
	"github.com/z0w13/dmserv/internal/util"
	"go.uber.org/zap"
)

// TaskUpdateStats is the name of the process stats task
const TaskUpdateStats = "update-stats"

// ProcessSampler reads cumulative CPU time and resident memory of the process
type ProcessSampler interface {
	Sample() (cpuSeconds float64, rssBytes uint64, err error)
}

// ProcfsSampler samples the current process from /proc
type ProcfsSampler struct{}

// Sample implements ProcessSampler
func (ProcfsSampler) Sample() (float64, uint64, error) {
	proc, err := procfs.Self()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open /proc/self: %w", err)
	}
	stat, err := proc.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read process stat: %w", err)
	}
	return stat.CPUTime(), uint64(stat.ResidentMemory()), nil
}

// StatsSnapshot is the view of process and gateway stats shown to users
type StatsSnapshot struct {
	Version         string             `json:"version"`
	Started         time.Time          `json:"started"`
	Uptime          string             `json:"uptime"`
	Guilds          int                `json:"guilds"`
	TotalShards     int                `json:"total_shards"`
	ConnectedShards int                `json:"connected_shards"`
	Shards          []model.ShardStats `json:"shards"`
	CPUPercent      float64            `json:"cpu_percent"`
	MemoryBytes     uint64             `json:"memory_bytes"`
	FronterSystems  int                `json:"fronter_systems"`
}

// StatsService refreshes process usage and serves stats snapshots
type StatsService struct {
	stats    *model.Stats
	sampler  ProcessSampler
	tenants  store.TenantStore
	guilds   func() int
	version  string
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger

	lastCPU float64
	lastAt  time.Time
	now     func() time.Time
}

// NewStatsService creates a new stats service.
// guilds reports the number of guilds the gateway session is in.
func NewStatsService(
	stats *model.Stats,
	sampler ProcessSampler,
	tenants store.TenantStore,
	guilds func() int,
	version string,
	interval time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *StatsService {
	if guilds == nil {
		guilds = func() int { return 0 }
	}
	return &StatsService{
		stats:    stats,
		sampler:  sampler,
		tenants:  tenants,
		guilds:   guilds,
		version:  version,
		interval: interval,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Name returns the task name
func (s *StatsService) Name() string {
	return TaskUpdateStats
}

// Interval returns the refresh interval
func (s *StatsService) Interval() time.Duration {
	return s.interval
}

// Stats returns the shared stats holder
func (s *StatsService) Stats() *model.Stats {
	return s.stats
}

// Run samples the process and stores CPU usage over the elapsed interval.
// Only the scheduler calls Run, so the previous sample needs no locking.
func (s *StatsService) Run(ctx context.Context) error {
	cpuSeconds, rss, err := s.sampler.Sample()
	if err != nil {
		return err
	}

	now := s.now()
	cpuPercent := 0.0
	if !s.lastAt.IsZero() {
		if elapsed := now.Sub(s.lastAt).Seconds(); elapsed > 0 {
			cpuPercent = (cpuSeconds - s.lastCPU) / elapsed * 100
		}
	}
	s.lastCPU, s.lastAt = cpuSeconds, now

	s.stats.SetProcessUsage(cpuPercent, rss)
	s.metrics.UpdateProcessUsage(s.stats.CPUUsage(), rss)
	s.metrics.UpdateShardsConnected(s.stats.ConnectedShards())
	return nil
}

// Snapshot collects current stats including the tracked system count
func (s *StatsService) Snapshot(ctx context.Context) (*StatsSnapshot, error) {
	systems, err := s.tenants.CountFronterSystems(ctx)
	if err != nil {
		return nil, err
	}

	return &StatsSnapshot{
		Version:         s.version,
		Started:         s.stats.Started(),
		Uptime:          util.FormatSignificantDuration(s.now().Sub(s.stats.Started())),
		Guilds:          s.guilds(),
		TotalShards:     s.stats.TotalShards(),
		ConnectedShards: s.stats.ConnectedShards(),
		Shards:          s.stats.Shards(),
		CPUPercent:      s.stats.CPUUsage(),
		MemoryBytes:     s.stats.MemUsage(),
		FronterSystems:  systems,
	}, nil
}
