// Package model holds the persisted records and API payloads.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/exposechain/exposechain/internal/risk"
	"github.com/exposechain/exposechain/internal/scan"
	"github.com/exposechain/exposechain/internal/threat"
)

// ScanKind distinguishes what a scan record covers.
type ScanKind string

const (
	// ScanKindTarget is a single domain or IP scan.
	ScanKindTarget ScanKind = "target"
	// ScanKindExposure is an exposure discovery run.
	ScanKindExposure ScanKind = "exposure"
)

// ScanStatus is the lifecycle state of a scan.
type ScanStatus string

const (
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// ScanRecord is one persisted scan.
type ScanRecord struct {
	ID          uuid.UUID       `json:"id"                     db:"id"`
	Kind        ScanKind        `json:"kind"                   db:"kind"`
	Target      string          `json:"target,omitempty"       db:"target"`
	TargetType  scan.TargetType `json:"target_type,omitempty"  db:"target_type"`
	ScanType    string          `json:"scan_type,omitempty"    db:"scan_type"`
	Sources     []string        `json:"sources,omitempty"      db:"sources"`
	Status      ScanStatus      `json:"status"                 db:"status"`
	Error       string          `json:"error,omitempty"        db:"error"`
	StartedAt   time.Time       `json:"started_at"             db:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`

	Bundle        *scan.Bundle   `json:"data,omitempty"          db:"bundle"`
	ThreatReport  *threat.Report `json:"threat_report,omitempty" db:"threat_report"`
	ExposureCount int            `json:"exposure_count"          db:"exposure_count"`
	RiskSummary   *risk.Summary  `json:"risk_summary,omitempty"  db:"risk_summary"`
}

// Complete marks the scan finished at t.
func (s *ScanRecord) Complete(t time.Time) {
	t = t.UTC()
	s.Status = ScanStatusCompleted
	s.CompletedAt = &t
}

// Fail marks the scan failed at t with err.
func (s *ScanRecord) Fail(t time.Time, err error) {
	t = t.UTC()
	s.Status = ScanStatusFailed
	s.Error = err.Error()
	s.CompletedAt = &t
}

// ScanFilter narrows a scan listing.
type ScanFilter struct {
	Kind   ScanKind
	Target string
	Limit  int
	Offset int
}

// ScanRequest is the payload for scanning a single target.
type ScanRequest struct {
	Target   string `json:"target"    binding:"required"`
	ScanType string `json:"scan_type"`
}

// ScanResponse is returned by a target scan.
type ScanResponse struct {
	Success      bool            `json:"success"`
	ScanID       uuid.UUID       `json:"scan_id"`
	Target       string          `json:"target"`
	TargetType   scan.TargetType `json:"target_type"`
	Message      string          `json:"message"`
	Data         *scan.Bundle    `json:"data"`
	ThreatReport *threat.Report  `json:"threat_report,omitempty"`
}
