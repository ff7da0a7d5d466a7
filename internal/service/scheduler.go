package service

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/model"
)

// SchedulerConfig holds periodic scan configuration.
type SchedulerConfig struct {
	Interval    time.Duration
	Sources     []string // discovery sources; empty runs all
	Targets     []string // domains or IPs rescanned every interval
	ScanType    string
	Concurrency int
}

// Discoverer runs an exposure discovery. *ExposureService satisfies it.
type Discoverer interface {
	Discover(ctx context.Context, sources []string) (*model.ScanRecord, error)
}

// TargetRunner scans a single target. *ScanService satisfies it.
type TargetRunner interface {
	Scan(ctx context.Context, req model.ScanRequest) (*model.ScanResponse, error)
}

// Scheduler periodically runs exposure discovery and rescans watched targets.
type Scheduler struct {
	discoverer Discoverer
	targets    TargetRunner
	cfg        SchedulerConfig
	logger     *zap.Logger
}

// NewScheduler creates a Scheduler. Either runner may be nil to skip it.
func NewScheduler(d Discoverer, t TargetRunner, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	return &Scheduler{discoverer: d, targets: t, cfg: cfg, logger: logger}
}

// Start runs the scan loop until quit is signalled.
func (s *Scheduler) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Interval-time.Second)
			s.RunOnce(ctx)
			cancel()
		case <-quit:
			return
		}
	}
}

// RunOnce performs one discovery run and rescans every watched target with
// bounded concurrency.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.discoverer != nil {
		rec, err := s.discoverer.Discover(ctx, s.cfg.Sources)
		if err != nil {
			s.logger.Error("scheduler: discovery", zap.Error(err))
		} else {
			s.logger.Info("scheduler: discovery complete",
				zap.String("scan_id", rec.ID.String()),
				zap.Int("exposures", rec.ExposureCount),
			)
		}
	}

	if s.targets == nil || len(s.cfg.Targets) == 0 {
		return
	}

	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, t := range s.cfg.Targets {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if _, err := s.targets.Scan(ctx, model.ScanRequest{Target: target, ScanType: s.cfg.ScanType}); err != nil {
				s.logger.Warn("scheduler: rescan", zap.String("target", target), zap.Error(err))
			}
		}(t)
	}

	wg.Wait()
}
