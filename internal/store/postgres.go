package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/model"
	"github.com/exposechain/exposechain/internal/risk"
	"github.com/exposechain/exposechain/internal/scan"
	"github.com/exposechain/exposechain/internal/threat"
)

// PostgresStore persists scans and exposures to PostgreSQL. The schema lives
// in migrations/.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres returns a PostgresStore backed by pool.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

const scanColumns = `id, kind, target, target_type, scan_type, sources, status, error,
	started_at, completed_at, bundle, threat_report, exposure_count, risk_summary`

// CreateScan implements Store.
func (p *PostgresStore) CreateScan(ctx context.Context, s *model.ScanRecord) error {
	s.ID = uuid.New()
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	args, err := scanArgs(s)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO scans (`+scanColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// UpdateScan implements Store.
func (p *PostgresStore) UpdateScan(ctx context.Context, s *model.ScanRecord) error {
	args, err := scanArgs(s)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE scans SET
			kind = $2, target = $3, target_type = $4, scan_type = $5, sources = $6,
			status = $7, error = $8, started_at = $9, completed_at = $10,
			bundle = $11, threat_report = $12, exposure_count = $13, risk_summary = $14
		WHERE id = $1`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update scan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanArgs(s *model.ScanRecord) ([]any, error) {
	bundle, err := marshalNullable(s.Bundle)
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}
	report, err := marshalNullable(s.ThreatReport)
	if err != nil {
		return nil, fmt.Errorf("marshal threat report: %w", err)
	}
	summary, err := marshalNullable(s.RiskSummary)
	if err != nil {
		return nil, fmt.Errorf("marshal risk summary: %w", err)
	}
	sources := s.Sources
	if sources == nil {
		sources = []string{}
	}
	return []any{
		s.ID, s.Kind, s.Target, string(s.TargetType), s.ScanType, sources, s.Status, s.Error,
		s.StartedAt, s.CompletedAt, bundle, report, s.ExposureCount, summary,
	}, nil
}

// marshalNullable encodes v as JSON, mapping a nil pointer to SQL NULL.
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// GetScan implements Store.
func (p *PostgresStore) GetScan(ctx context.Context, id uuid.UUID) (*model.ScanRecord, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = $1`, id)
	s, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// ListScans implements Store.
func (p *PostgresStore) ListScans(ctx context.Context, f model.ScanFilter) ([]*model.ScanRecord, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	rows, err := p.pool.Query(ctx, `
		SELECT `+scanColumns+` FROM scans
		WHERE ($1 = '' OR kind = $1)
		  AND ($2 = '' OR target = $2)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4`,
		string(f.Kind), f.Target, f.Limit, f.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	out := []*model.ScanRecord{}
	for rows.Next() {
		s, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*model.ScanRecord, error) {
	var s model.ScanRecord
	var targetType string
	var bundle, report, summary []byte

	if err := row.Scan(
		&s.ID, &s.Kind, &s.Target, &targetType, &s.ScanType, &s.Sources, &s.Status, &s.Error,
		&s.StartedAt, &s.CompletedAt, &bundle, &report, &s.ExposureCount, &summary,
	); err != nil {
		return nil, err
	}
	s.TargetType = scan.TargetType(targetType)

	if len(bundle) > 0 {
		s.Bundle = &scan.Bundle{}
		if err := json.Unmarshal(bundle, s.Bundle); err != nil {
			return nil, fmt.Errorf("unmarshal bundle: %w", err)
		}
	}
	if len(report) > 0 {
		s.ThreatReport = &threat.Report{}
		if err := json.Unmarshal(report, s.ThreatReport); err != nil {
			return nil, fmt.Errorf("unmarshal threat report: %w", err)
		}
	}
	if len(summary) > 0 {
		s.RiskSummary = &risk.Summary{}
		if err := json.Unmarshal(summary, s.RiskSummary); err != nil {
			return nil, fmt.Errorf("unmarshal risk summary: %w", err)
		}
	}
	return &s, nil
}

// ── Exposures ─────────────────────────────────────────────────────────────────

const exposureColumns = `id, scan_id, source, domain, ip_address, port, protocol, tls_enabled,
	tls_hosts, namespace, service_name, service_type, ingress_name, pod_selector,
	cloud_provider, cloud_resource_id, cloud_resource_type, annotations, environment,
	owner_team, raw_data, risk_score, severity, risk_factors, risk_details, discovered_at`

// AddExposures implements Store. All exposures are inserted in one
// transaction.
func (p *PostgresStore) AddExposures(ctx context.Context, scanID uuid.UUID, exposures []*model.Exposure) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM scans WHERE id = $1)`, scanID).Scan(&exists); err != nil {
		return fmt.Errorf("check scan: %w", err)
	}
	if !exists {
		return fmt.Errorf("add exposures: %w", ErrNotFound)
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for i, e := range exposures {
		e.ID = uuid.New()
		e.ScanID = scanID
		if e.DiscoveredAt.IsZero() {
			// Preserve discovery order under ORDER BY discovered_at.
			e.DiscoveredAt = now.Add(time.Duration(i) * time.Microsecond)
		}
		args, err := exposureArgs(e)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO exposures (`+exposureColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`,
			args...,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert exposures: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit exposures: %w", err)
	}

	p.logger.Debug("store: exposures added", zap.String("scan_id", scanID.String()), zap.Int("count", len(exposures)))
	return nil
}

func exposureArgs(e *model.Exposure) ([]any, error) {
	var blobs [5][]byte
	for i, v := range []any{e.PodSelector, e.Annotations, e.RawData, e.RiskFactors, e.RiskDetails} {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal exposure field: %w", err)
		}
		blobs[i] = b
	}
	hosts := e.TLSHosts
	if hosts == nil {
		hosts = []string{}
	}
	return []any{
		e.ID, e.ScanID, e.Source, e.Domain, e.IPAddress, e.Port, e.Protocol, e.TLSEnabled,
		hosts, e.Namespace, e.ServiceName, e.ServiceType, e.IngressName, blobs[0],
		e.CloudProvider, e.CloudResourceID, e.CloudResourceType, blobs[1], e.Environment,
		e.OwnerTeam, blobs[2], e.RiskScore, string(e.Severity), blobs[3], blobs[4], e.DiscoveredAt,
	}, nil
}

// ListExposures implements Store.
func (p *PostgresStore) ListExposures(ctx context.Context, scanID uuid.UUID) ([]*model.Exposure, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM scans WHERE id = $1)`, scanID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check scan: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return p.queryExposures(ctx, `
		SELECT `+exposureColumns+` FROM exposures
		WHERE scan_id = $1
		ORDER BY discovered_at, id`, scanID)
}

// LatestExposures implements Store.
func (p *PostgresStore) LatestExposures(ctx context.Context) ([]*model.Exposure, error) {
	return p.queryExposures(ctx, `
		SELECT `+exposureColumns+` FROM exposures
		WHERE scan_id = (
			SELECT id FROM scans
			WHERE kind = $1 AND status = $2
			ORDER BY started_at DESC
			LIMIT 1
		)
		ORDER BY discovered_at, id`,
		string(model.ScanKindExposure), string(model.ScanStatusCompleted))
}

func (p *PostgresStore) queryExposures(ctx context.Context, query string, args ...any) ([]*model.Exposure, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exposures: %w", err)
	}
	defer rows.Close()

	out := []*model.Exposure{}
	for rows.Next() {
		e, err := scanExposure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExposure(rows pgx.Rows) (*model.Exposure, error) {
	var e model.Exposure
	var severity string
	var selector, annotations, raw, factors, details []byte

	if err := rows.Scan(
		&e.ID, &e.ScanID, &e.Source, &e.Domain, &e.IPAddress, &e.Port, &e.Protocol, &e.TLSEnabled,
		&e.TLSHosts, &e.Namespace, &e.ServiceName, &e.ServiceType, &e.IngressName, &selector,
		&e.CloudProvider, &e.CloudResourceID, &e.CloudResourceType, &annotations, &e.Environment,
		&e.OwnerTeam, &raw, &e.RiskScore, &severity, &factors, &details, &e.DiscoveredAt,
	); err != nil {
		return nil, fmt.Errorf("scan exposure: %w", err)
	}
	e.Severity = risk.Severity(severity)

	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{selector, &e.PodSelector},
		{annotations, &e.Annotations},
		{raw, &e.RawData},
		{factors, &e.RiskFactors},
		{details, &e.RiskDetails},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("unmarshal exposure field: %w", err)
		}
	}
	return &e, nil
}
