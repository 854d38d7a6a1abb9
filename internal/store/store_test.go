package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotormetrics/prophet/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSummary(id, vehicle string) *model.LogSummary {
	sum := &model.LogSummary{
		Identifier:       id,
		VehicleID:        vehicle,
		DurationTrackedS: 600,
		VibrationBinS:    [model.NumVibrationBins]float64{500, 60, 30, 10},
		PeakAccelCount:   2,
		ClipCount:        1,
		ClipDurationS:    0.5,
		ProcessedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	for i := range sum.Motors {
		sum.Motors[i] = model.MotorSaturation{Above080S: 30, Above090S: 12, Above100S: 3}
	}
	return sum
}

func TestAppendAndReadBack(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	want := sampleSummary("ulogs/EL-040/f1.ulg", "EL-040")
	if err := s.Append(ctx, want); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.Summaries(ctx)
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	row := got[0]
	if row.Identifier != want.Identifier || row.VehicleID != want.VehicleID {
		t.Errorf("identity roundtrip mismatch: %+v", row)
	}
	if math.Abs(row.DurationTrackedS-want.DurationTrackedS) > 1e-9 {
		t.Errorf("DurationTrackedS = %v, want %v", row.DurationTrackedS, want.DurationTrackedS)
	}
	if row.Motors[2].Above090S != 12 {
		t.Errorf("Motors[2].Above090S = %v, want 12", row.Motors[2].Above090S)
	}
	if row.PeakAccelCount != 2 || row.ClipCount != 1 {
		t.Errorf("counts roundtrip mismatch: %+v", row)
	}
}

func TestAppendDuplicateRejected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, sampleSummary("a.ulg", "EL-040")); err != nil {
		t.Fatalf("first append: %v", err)
	}
	err := s.Append(ctx, sampleSummary("a.ulg", "EL-040"))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("second append err = %v, want ErrDuplicate", err)
	}
	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1 (duplicate must not add a row)", n)
	}
}

func TestIdentifiers(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a.ulg", "b.ulg", "c.ulg"} {
		if err := s.Append(ctx, sampleSummary(id, "EL-040")); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := s.Identifiers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Fatalf("got %d identifiers, want 3", len(ids))
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range []string{"a.ulg", "b.ulg", "c.ulg"} {
		if !seen[id] {
			t.Errorf("identifier %q missing", id)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, sampleSummary("a.ulg", "EL-040")); err != nil {
		t.Fatal(err)
	}
	if err := s.Truncate(ctx); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("Count after truncate = %d, want 0", n)
	}
	// The store stays usable after truncation.
	if err := s.Append(ctx, sampleSummary("a.ulg", "EL-040")); err != nil {
		t.Errorf("append after truncate: %v", err)
	}
}

func TestOpenOnDisk_Persists(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "prophet.duckdb")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, sampleSummary("a.ulg", "EL-040")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	ids, err := s2.Identifiers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "a.ulg" {
		t.Errorf("reopened identifiers = %v, want [a.ulg]", ids)
	}
}
