package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/exposechain/exposechain/internal/model"
	"github.com/exposechain/exposechain/internal/store"
)

var ctx = context.Background()

var _ store.Store = (*store.MemoryStore)(nil)
var _ store.Store = (*store.PostgresStore)(nil)

func TestCreateAndGetScan(t *testing.T) {
	s := store.NewMemory()

	rec := &model.ScanRecord{Kind: model.ScanKindTarget, Target: "example.com", Status: model.ScanStatusRunning}
	if err := s.CreateScan(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if rec.ID == uuid.Nil {
		t.Fatal("expected an ID to be assigned")
	}
	if rec.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}

	got, err := s.GetScan(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Target != "example.com" {
		t.Errorf("target: got %q", got.Target)
	}

	// Mutating the returned copy must not affect the store.
	got.Target = "changed.example"
	again, _ := s.GetScan(ctx, rec.ID)
	if again.Target != "example.com" {
		t.Errorf("store was mutated through a returned record")
	}
}

func TestGetScan_notFound(t *testing.T) {
	s := store.NewMemory()
	if _, err := s.GetScan(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateScan(t *testing.T) {
	s := store.NewMemory()
	rec := &model.ScanRecord{Kind: model.ScanKindTarget, Status: model.ScanStatusRunning}
	if err := s.CreateScan(ctx, rec); err != nil {
		t.Fatal(err)
	}

	rec.Complete(time.Now())
	if err := s.UpdateScan(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetScan(ctx, rec.ID)
	if got.Status != model.ScanStatusCompleted || got.CompletedAt == nil {
		t.Errorf("expected completed scan, got %+v", got)
	}

	if err := s.UpdateScan(ctx, &model.ScanRecord{ID: uuid.New()}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown scan, got %v", err)
	}
}

func TestListScans_filterAndOrder(t *testing.T) {
	s := store.NewMemory()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, kind := range []model.ScanKind{model.ScanKindTarget, model.ScanKindExposure, model.ScanKindTarget} {
		rec := &model.ScanRecord{Kind: kind, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := s.CreateScan(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListScans(ctx, model.ScanFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 scans, got %d", len(all))
	}
	if !all[0].StartedAt.After(all[1].StartedAt) {
		t.Error("expected newest first")
	}

	targets, _ := s.ListScans(ctx, model.ScanFilter{Kind: model.ScanKindTarget})
	if len(targets) != 2 {
		t.Errorf("expected 2 target scans, got %d", len(targets))
	}

	paged, _ := s.ListScans(ctx, model.ScanFilter{Limit: 1, Offset: 1})
	if len(paged) != 1 || !paged[0].StartedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("unexpected page: %+v", paged)
	}

	beyond, _ := s.ListScans(ctx, model.ScanFilter{Offset: 10})
	if len(beyond) != 0 {
		t.Errorf("expected empty page, got %d", len(beyond))
	}
}

func TestExposures(t *testing.T) {
	s := store.NewMemory()

	if err := s.AddExposures(ctx, uuid.New(), []*model.Exposure{{}}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown scan, got %v", err)
	}

	rec := &model.ScanRecord{Kind: model.ScanKindExposure}
	if err := s.CreateScan(ctx, rec); err != nil {
		t.Fatal(err)
	}
	exps := []*model.Exposure{{ServiceName: "api"}, {ServiceName: "web"}}
	if err := s.AddExposures(ctx, rec.ID, exps); err != nil {
		t.Fatal(err)
	}
	if exps[0].ID == uuid.Nil || exps[0].ScanID != rec.ID {
		t.Error("expected IDs to be assigned on the caller's exposures")
	}

	got, err := s.ListExposures(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ServiceName != "api" || got[1].ServiceName != "web" {
		t.Errorf("unexpected exposures: %+v", got)
	}
}

func TestLatestExposures(t *testing.T) {
	s := store.NewMemory()

	none, err := s.LatestExposures(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("expected no exposures, got %d", len(none))
	}

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	older := &model.ScanRecord{Kind: model.ScanKindExposure, Status: model.ScanStatusCompleted, StartedAt: base}
	newer := &model.ScanRecord{Kind: model.ScanKindExposure, Status: model.ScanStatusCompleted, StartedAt: base.Add(time.Hour)}
	failed := &model.ScanRecord{Kind: model.ScanKindExposure, Status: model.ScanStatusFailed, StartedAt: base.Add(2 * time.Hour)}
	for _, r := range []*model.ScanRecord{older, newer, failed} {
		if err := s.CreateScan(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.AddExposures(ctx, older.ID, []*model.Exposure{{ServiceName: "old"}})
	_ = s.AddExposures(ctx, newer.ID, []*model.Exposure{{ServiceName: "new-a"}, {ServiceName: "new-b"}})
	_ = s.AddExposures(ctx, failed.ID, []*model.Exposure{{ServiceName: "broken"}})

	got, err := s.LatestExposures(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ServiceName != "new-a" {
		t.Errorf("expected exposures of the newest completed scan, got %+v", got)
	}
}
