// Package store persists scan records and the exposures they discovered.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/exposechain/exposechain/internal/model"
)

// ErrNotFound is returned when a scan does not exist.
var ErrNotFound = errors.New("scan not found")

// DefaultLimit caps list queries that do not set one.
const DefaultLimit = 50

// Store is implemented by MemoryStore and PostgresStore.
type Store interface {
	// CreateScan assigns an ID and inserts s.
	CreateScan(ctx context.Context, s *model.ScanRecord) error

	// UpdateScan replaces a previously created scan.
	UpdateScan(ctx context.Context, s *model.ScanRecord) error

	// GetScan returns the scan with the given ID or ErrNotFound.
	GetScan(ctx context.Context, id uuid.UUID) (*model.ScanRecord, error)

	// ListScans returns scans newest first.
	ListScans(ctx context.Context, f model.ScanFilter) ([]*model.ScanRecord, error)

	// AddExposures assigns IDs and attaches exposures to a scan.
	AddExposures(ctx context.Context, scanID uuid.UUID, exposures []*model.Exposure) error

	// ListExposures returns a scan's exposures in discovery order.
	ListExposures(ctx context.Context, scanID uuid.UUID) ([]*model.Exposure, error)

	// LatestExposures returns the exposures of the most recent completed
	// exposure scan, or an empty list if there is none.
	LatestExposures(ctx context.Context) ([]*model.Exposure, error)
}
