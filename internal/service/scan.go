// Package service wires the collectors, reducers, store and event dispatcher
// into the operations exposed by the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/events"
	"github.com/exposechain/exposechain/internal/model"
	"github.com/exposechain/exposechain/internal/scan"
	"github.com/exposechain/exposechain/internal/scanner"
	"github.com/exposechain/exposechain/internal/store"
	"github.com/exposechain/exposechain/internal/threat"
)

// ErrInvalidRequest wraps validation failures so handlers can map them to 400.
var ErrInvalidRequest = errors.New("invalid request")

// TargetScanner is satisfied by *scanner.Scanner.
type TargetScanner interface {
	Scan(ctx context.Context, target string, kind scanner.Kind) (*scan.Bundle, error)
}

// ThreatRecordFunc is an optional callback invoked for every threat report.
type ThreatRecordFunc func(category threat.Category)

// ScanService runs single-target scans and keeps their history.
type ScanService struct {
	scanner  TargetScanner
	analyzer threat.Analyzer
	store    store.Store
	events   events.Dispatcher
	onThreat ThreatRecordFunc
	onScan   ScanRecordFunc
	logger   *zap.Logger
	now      func() time.Time
}

// ScanRecordFunc is an optional callback invoked when a scan finishes.
type ScanRecordFunc func(kind model.ScanKind, status model.ScanStatus)

// NewScanService creates a ScanService. dispatcher may be nil.
func NewScanService(sc TargetScanner, analyzer threat.Analyzer, st store.Store, dispatcher events.Dispatcher, logger *zap.Logger) *ScanService {
	if dispatcher == nil {
		dispatcher = events.Noop{}
	}
	return &ScanService{
		scanner:  sc,
		analyzer: analyzer,
		store:    st,
		events:   dispatcher,
		logger:   logger,
		now:      time.Now,
	}
}

// SetThreatRecord configures the threat report callback.
func (s *ScanService) SetThreatRecord(fn ThreatRecordFunc) {
	s.onThreat = fn
}

// SetScanRecord configures the scan completion callback.
func (s *ScanService) SetScanRecord(fn ScanRecordFunc) {
	s.onScan = fn
}

// Scan validates the request, runs the collectors, analyses domain bundles
// and persists the result.
func (s *ScanService) Scan(ctx context.Context, req model.ScanRequest) (*model.ScanResponse, error) {
	kind, err := scanner.ParseKind(req.ScanType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	target, tt, err := scan.ParseTarget(req.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	rec := &model.ScanRecord{
		Kind:       model.ScanKindTarget,
		Target:     target,
		TargetType: tt,
		ScanType:   string(kind),
		Status:     model.ScanStatusRunning,
		StartedAt:  s.now().UTC(),
	}
	if err := s.store.CreateScan(ctx, rec); err != nil {
		return nil, fmt.Errorf("create scan: %w", err)
	}

	bundle, err := s.scanner.Scan(ctx, target, kind)
	if err != nil {
		s.fail(ctx, rec, err)
		return nil, fmt.Errorf("scan %s: %w", target, err)
	}

	var report *threat.Report
	if tt == scan.TargetDomain && s.analyzer != nil {
		report = s.analyzer.Analyze(bundle)
		if s.onThreat != nil {
			s.onThreat(report.ThreatCategory)
		}
	}

	rec.Bundle = bundle
	rec.ThreatReport = report
	rec.Complete(s.now())
	if err := s.store.UpdateScan(ctx, rec); err != nil {
		err = fmt.Errorf("save scan: %w", err)
		s.fail(ctx, rec, err)
		return nil, err
	}
	s.record(rec)

	payload := map[string]string{
		"scan_id":     rec.ID.String(),
		"target":      target,
		"target_type": string(tt),
		"scan_type":   string(kind),
	}
	if report != nil {
		payload["threat_category"] = string(report.ThreatCategory)
		payload["threat_level"] = string(report.ThreatLevel)
		payload["risk_score"] = strconv.Itoa(report.OverallRiskScore)
	}
	s.events.Dispatch(ctx, events.EventScanCompleted, payload)
	if report != nil && report.ThreatCategory != threat.CategoryLegitimate {
		s.events.Dispatch(ctx, events.EventThreatDetected, payload)
	}

	s.logger.Info("service: target scanned",
		zap.String("scan_id", rec.ID.String()),
		zap.String("target", target),
	)

	return &model.ScanResponse{
		Success:      true,
		ScanID:       rec.ID,
		Target:       target,
		TargetType:   tt,
		Message:      scanner.Message(bundle),
		Data:         bundle,
		ThreatReport: report,
	}, nil
}

func (s *ScanService) fail(ctx context.Context, rec *model.ScanRecord, cause error) {
	rec.Fail(s.now(), cause)
	if err := s.store.UpdateScan(ctx, rec); err != nil {
		s.logger.Warn("service: mark scan failed", zap.Error(err))
	}
	s.record(rec)
	s.events.Dispatch(ctx, events.EventScanFailed, map[string]string{
		"scan_id": rec.ID.String(),
		"target":  rec.Target,
		"error":   cause.Error(),
	})
}

func (s *ScanService) record(rec *model.ScanRecord) {
	if s.onScan != nil {
		s.onScan(rec.Kind, rec.Status)
	}
}

// GetScan returns a stored scan.
func (s *ScanService) GetScan(ctx context.Context, id uuid.UUID) (*model.ScanRecord, error) {
	return s.store.GetScan(ctx, id)
}

// ListScans returns stored scans newest first.
func (s *ScanService) ListScans(ctx context.Context, f model.ScanFilter) ([]*model.ScanRecord, error) {
	return s.store.ListScans(ctx, f)
}
