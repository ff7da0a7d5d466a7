package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/chain"
	"github.com/exposechain/exposechain/internal/discovery"
	"github.com/exposechain/exposechain/internal/events"
	"github.com/exposechain/exposechain/internal/model"
	"github.com/exposechain/exposechain/internal/risk"
	"github.com/exposechain/exposechain/internal/store"
)

// ChainResult is the response for a chain build.
type ChainResult struct {
	Chains [][]chain.Node `json:"chains"`
	Stats  chain.Stats    `json:"stats"`
	Graph  chain.Graph    `json:"graph"`
}

// BuildChains maps records into a fresh graph and returns every chain, or only
// those rooted at domain when it is set.
func BuildChains(records []chain.Record, domain string) *ChainResult {
	m := chain.NewMapper()
	for _, r := range records {
		m.BuildFromExposure(r)
	}
	var chains [][]chain.Node
	if domain != "" {
		chains = m.ChainsForDomain(domain)
	} else {
		chains = m.FullChains()
	}
	if chains == nil {
		chains = [][]chain.Node{}
	}
	return &ChainResult{Chains: chains, Stats: m.Stats(), Graph: m.Snapshot()}
}

// ExposureRecordFunc is an optional callback invoked for every scored exposure.
type ExposureRecordFunc func(severity risk.Severity)

// ExposureService discovers exposures, scores them and maps their chains.
type ExposureService struct {
	registry   *discovery.Registry
	scorer     *risk.Scorer
	store      store.Store
	events     events.Dispatcher
	onExposure ExposureRecordFunc
	onScan     ScanRecordFunc
	logger     *zap.Logger
	now        func() time.Time
}

// NewExposureService creates an ExposureService. dispatcher may be nil.
func NewExposureService(reg *discovery.Registry, st store.Store, dispatcher events.Dispatcher, logger *zap.Logger) *ExposureService {
	if dispatcher == nil {
		dispatcher = events.Noop{}
	}
	return &ExposureService{
		registry: reg,
		scorer:   risk.NewScorer(),
		store:    st,
		events:   dispatcher,
		logger:   logger,
		now:      time.Now,
	}
}

// SetExposureRecord configures the per-exposure callback.
func (s *ExposureService) SetExposureRecord(fn ExposureRecordFunc) {
	s.onExposure = fn
}

// SetScanRecord configures the scan completion callback.
func (s *ExposureService) SetScanRecord(fn ScanRecordFunc) {
	s.onScan = fn
}

// Sources lists the configured discovery sources.
func (s *ExposureService) Sources() []string {
	return s.registry.Names()
}

// Discover runs the named sources (all when empty), scores every exposure
// and persists the run. A source that fails part-way keeps what it found
// and the error is recorded on the scan.
func (s *ExposureService) Discover(ctx context.Context, sources []string) (*model.ScanRecord, error) {
	if len(sources) == 0 {
		sources = s.registry.Names()
	}
	known := make(map[string]bool)
	for _, n := range s.registry.Names() {
		known[n] = true
	}
	for _, n := range sources {
		if !known[n] {
			return nil, fmt.Errorf("%w: %w: %q", ErrInvalidRequest, discovery.ErrUnknownSource, n)
		}
	}

	rec := &model.ScanRecord{
		Kind:      model.ScanKindExposure,
		Sources:   sources,
		Status:    model.ScanStatusRunning,
		StartedAt: s.now().UTC(),
	}
	if err := s.store.CreateScan(ctx, rec); err != nil {
		return nil, fmt.Errorf("create scan: %w", err)
	}

	exposures, discErr := s.registry.Discover(ctx, sources)
	if discErr != nil && len(exposures) == 0 {
		return s.fail(ctx, rec, fmt.Errorf("discover: %w", discErr))
	}

	scores := make([]float64, 0, len(exposures))
	for _, e := range exposures {
		e.ApplyRisk(s.scorer.Score(e.RiskInput()))
		scores = append(scores, e.RiskScore)
		if s.onExposure != nil {
			s.onExposure(e.Severity)
		}
	}
	if err := s.store.AddExposures(ctx, rec.ID, exposures); err != nil {
		return s.fail(ctx, rec, fmt.Errorf("save exposures: %w", err))
	}

	summary := risk.Summarize(scores)
	rec.ExposureCount = len(exposures)
	rec.RiskSummary = &summary
	if discErr != nil {
		rec.Error = discErr.Error()
		s.logger.Warn("service: discovery incomplete", zap.Error(discErr))
	}
	rec.Complete(s.now())
	if err := s.store.UpdateScan(ctx, rec); err != nil {
		return s.fail(ctx, rec, fmt.Errorf("save scan: %w", err))
	}
	s.record(rec)

	for _, e := range exposures {
		if e.Severity != risk.SeverityCritical {
			continue
		}
		s.events.Dispatch(ctx, events.EventExposureCritical, map[string]string{
			"scan_id":      rec.ID.String(),
			"exposure_id":  e.ID.String(),
			"target":       exposureName(e),
			"namespace":    e.Namespace,
			"risk_score":   strconv.FormatFloat(e.RiskScore, 'f', 2, 64),
			"service_type": e.ServiceType,
		})
	}
	s.events.Dispatch(ctx, events.EventDiscoveryComplete, map[string]string{
		"scan_id":        rec.ID.String(),
		"exposure_count": strconv.Itoa(summary.TotalExposures),
		"critical":       strconv.Itoa(summary.Critical),
		"high":           strconv.Itoa(summary.High),
	})

	s.logger.Info("service: exposures discovered",
		zap.String("scan_id", rec.ID.String()),
		zap.Int("exposures", summary.TotalExposures),
		zap.Int("critical", summary.Critical),
	)
	return rec, nil
}

func exposureName(e *model.Exposure) string {
	switch {
	case e.Domain != "":
		return e.Domain
	case e.IPAddress != "":
		return e.IPAddress
	default:
		return e.Namespace + "/" + e.ServiceName
	}
}

// fail marks rec failed, stores it and returns it with cause.
func (s *ExposureService) fail(ctx context.Context, rec *model.ScanRecord, cause error) (*model.ScanRecord, error) {
	rec.Fail(s.now(), cause)
	if err := s.store.UpdateScan(ctx, rec); err != nil {
		s.logger.Warn("service: mark scan failed", zap.Error(err))
	}
	s.record(rec)
	s.events.Dispatch(ctx, events.EventScanFailed, map[string]string{
		"scan_id": rec.ID.String(),
		"error":   cause.Error(),
	})
	return rec, cause
}

func (s *ExposureService) record(rec *model.ScanRecord) {
	if s.onScan != nil {
		s.onScan(rec.Kind, rec.Status)
	}
}

// Score assesses a single exposure without persisting it.
func (s *ExposureService) Score(e risk.Exposure) risk.Result {
	return s.scorer.Score(e)
}

// Exposures returns the exposures discovered by a scan.
func (s *ExposureService) Exposures(ctx context.Context, scanID uuid.UUID) ([]*model.Exposure, error) {
	return s.store.ListExposures(ctx, scanID)
}

// ChainsForScan rebuilds the chain graph from a scan's stored exposures.
func (s *ExposureService) ChainsForScan(ctx context.Context, scanID uuid.UUID, domain string) (*ChainResult, error) {
	exposures, err := s.store.ListExposures(ctx, scanID)
	if err != nil {
		return nil, err
	}
	records := make([]chain.Record, len(exposures))
	for i, e := range exposures {
		records[i] = e.ChainRecord()
	}
	return BuildChains(records, domain), nil
}

// RiskSummary aggregates the exposures of the latest completed discovery run.
func (s *ExposureService) RiskSummary(ctx context.Context) (risk.Summary, error) {
	exposures, err := s.store.LatestExposures(ctx)
	if err != nil {
		return risk.Summary{}, fmt.Errorf("latest exposures: %w", err)
	}
	scores := make([]float64, len(exposures))
	for i, e := range exposures {
		scores[i] = e.RiskScore
	}
	return risk.Summarize(scores), nil
}

// IsNotFound reports whether err means the requested scan does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
