package aggregate

import (
	"math"
	"testing"

	"github.com/rotormetrics/prophet/internal/model"
)

func summary(id, vehicleID string, duration float64) model.LogSummary {
	return model.LogSummary{
		Identifier:       id,
		VehicleID:        vehicleID,
		DurationTrackedS: duration,
		VibrationBinS:    [model.NumVibrationBins]float64{duration, 0, 0, 0},
	}
}

func TestByVehicle_CalmFleetScenario(t *testing.T) {
	t.Parallel()
	// Three calm logs for EL-040: all time below 30 m/s², no saturation.
	summaries := []model.LogSummary{
		summary("f1.ulg", "EL-040", 600),
		summary("f2.ulg", "EL-040", 300),
		summary("f3.ulg", "EL-040", 100),
	}
	aggs := ByVehicle(summaries)
	if len(aggs) != 1 {
		t.Fatalf("got %d aggregates, want 1", len(aggs))
	}
	a := aggs[0]
	if a.VehicleID != "EL-040" || a.LogCount != 3 {
		t.Errorf("identity = %s/%d, want EL-040/3", a.VehicleID, a.LogCount)
	}
	if math.Abs(a.DurationTrackedS-1000) > 1e-9 {
		t.Errorf("DurationTrackedS = %v, want 1000", a.DurationTrackedS)
	}
	if math.Abs(a.VibrationShare(0)-1.0) > 1e-9 {
		t.Errorf("low-bin share = %v, want 1.0", a.VibrationShare(0))
	}
	if a.PeakAccelCount != 0 || a.ClipCount != 0 {
		t.Errorf("calm fleet should have zero events: %+v", a)
	}
	for i := range a.Motors {
		if a.Motors[i] != (model.MotorSaturation{}) {
			t.Errorf("motor %d should have zero saturation", i)
		}
	}
}

func TestByVehicle_SpellingVariantsCollapse(t *testing.T) {
	t.Parallel()
	summaries := []model.LogSummary{
		summary("a.ulg", "EL-052", 100),
		summary("b.ulg", "EL052", 200),
		summary("c.ulg", "el_052", 300),
	}
	aggs := ByVehicle(summaries)
	if len(aggs) != 1 {
		t.Fatalf("got %d aggregates, want exactly 1 for EL-052 variants", len(aggs))
	}
	if aggs[0].VehicleID != "EL-052" {
		t.Errorf("canonical ID = %q, want EL-052", aggs[0].VehicleID)
	}
	if aggs[0].LogCount != 3 {
		t.Errorf("LogCount = %d, want 3", aggs[0].LogCount)
	}
	if math.Abs(aggs[0].DurationTrackedS-600) > 1e-9 {
		t.Errorf("DurationTrackedS = %v, want 600", aggs[0].DurationTrackedS)
	}
}

func TestByVehicle_LogCountInvariant(t *testing.T) {
	t.Parallel()
	summaries := []model.LogSummary{
		summary("a.ulg", "EL-040", 1),
		summary("b.ulg", "EL-052", 1),
		summary("c.ulg", "el052", 1),
		summary("d.ulg", "EL-107", 1),
		summary("e.ulg", "", 1),
	}
	aggs := ByVehicle(summaries)
	var total int64
	for _, a := range aggs {
		total += a.LogCount
	}
	if total != int64(len(summaries)) {
		t.Errorf("sum of LogCount = %d, want %d", total, len(summaries))
	}
}

func TestByVehicle_SortOrder(t *testing.T) {
	t.Parallel()
	summaries := []model.LogSummary{
		summary("a.ulg", "EL-107", 1),
		summary("b.ulg", "EL-9", 1),
		summary("c.ulg", "EL-040", 1),
		summary("d.ulg", "", 1),
	}
	aggs := ByVehicle(summaries)
	want := []string{"EL-9", "EL-040", "EL-107", UnknownVehicle}
	if len(aggs) != len(want) {
		t.Fatalf("got %d aggregates, want %d", len(aggs), len(want))
	}
	for i, w := range want {
		if aggs[i].VehicleID != w {
			t.Errorf("position %d = %q, want %q", i, aggs[i].VehicleID, w)
		}
	}
}

func TestByVehicle_Empty(t *testing.T) {
	t.Parallel()
	if aggs := ByVehicle(nil); len(aggs) != 0 {
		t.Errorf("ByVehicle(nil) = %v, want empty", aggs)
	}
}

func TestByVehicle_SumsMotorAndFatigueFields(t *testing.T) {
	t.Parallel()
	s1 := summary("a.ulg", "EL-040", 100)
	s1.Motors[1] = model.MotorSaturation{Above080S: 10, Above090S: 5, Above100S: 1}
	s1.PeakAccelCount = 2
	s1.ClipCount = 1
	s1.ClipDurationS = 0.25
	s2 := summary("b.ulg", "EL-040", 100)
	s2.Motors[1] = model.MotorSaturation{Above080S: 20, Above090S: 10, Above100S: 2}
	s2.PeakAccelCount = 3
	s2.ClipCount = 2
	s2.ClipDurationS = 0.75

	aggs := ByVehicle([]model.LogSummary{s1, s2})
	if len(aggs) != 1 {
		t.Fatalf("got %d aggregates, want 1", len(aggs))
	}
	a := aggs[0]
	if a.Motors[1].Above080S != 30 || a.Motors[1].Above090S != 15 || a.Motors[1].Above100S != 3 {
		t.Errorf("motor sums wrong: %+v", a.Motors[1])
	}
	if a.PeakAccelCount != 5 || a.ClipCount != 3 {
		t.Errorf("event sums wrong: %+v", a)
	}
	if math.Abs(a.ClipDurationS-1.0) > 1e-9 {
		t.Errorf("ClipDurationS = %v, want 1.0", a.ClipDurationS)
	}
}
