package risk

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotormetrics/prophet/internal/model"
	"github.com/rotormetrics/prophet/internal/vehicle"
)

func calmAggregate(id string, hours float64) model.VehicleAggregate {
	secs := hours * 3600
	return model.VehicleAggregate{
		VehicleID:        id,
		LogCount:         1,
		DurationTrackedS: secs,
		VibrationBinS:    [model.NumVibrationBins]float64{secs, 0, 0, 0},
	}
}

func TestRank_CalmVehicleScoresZero(t *testing.T) {
	t.Parallel()
	recs := Rank([]model.VehicleAggregate{calmAggregate("EL-040", 10)}, nil)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	r := recs[0]
	if r.CompositeScore != 0 || r.FatigueScore != 0 || r.MotorScore != 0 || r.VibrationScore != 0 {
		t.Errorf("calm vehicle should score zero: %+v", r)
	}
	if r.Rank != 1 {
		t.Errorf("Rank = %d, want 1", r.Rank)
	}
	if math.Abs(r.FlightTimeMin-600) > 1e-9 {
		t.Errorf("FlightTimeMin = %v, want 600", r.FlightTimeMin)
	}
}

func TestRank_ComponentWeights(t *testing.T) {
	t.Parallel()
	// All flight time above 70 m/s², full motor saturation, and event
	// rates at their ceilings. Motor and fatigue components max out;
	// vibration reaches 10/13 of its ceiling (the 50-70 bin term cannot
	// contribute when all time is above 70).
	secs := 3600.0
	agg := model.VehicleAggregate{
		VehicleID:        "EL-107",
		LogCount:         1,
		DurationTrackedS: secs,
		VibrationBinS:    [model.NumVibrationBins]float64{0, 0, 0, secs},
		PeakAccelCount:   1000,
		ClipCount:        10000,
	}
	for i := range agg.Motors {
		agg.Motors[i] = model.MotorSaturation{Above080S: secs, Above090S: secs, Above100S: secs}
	}

	recs := Rank([]model.VehicleAggregate{agg}, nil)
	r := recs[0]
	wantVib := 20.0 * 10.0 / 13.0
	if math.Abs(r.VibrationScore-wantVib) > 1e-9 {
		t.Errorf("VibrationScore = %v, want %v", r.VibrationScore, wantVib)
	}
	if math.Abs(r.MotorScore-20.0) > 1e-9 {
		t.Errorf("MotorScore = %v, want 20 (weight 0.2)", r.MotorScore)
	}
	if math.Abs(r.FatigueScore-60.0) > 1e-9 {
		t.Errorf("FatigueScore = %v, want 60 (weight 0.6)", r.FatigueScore)
	}
	if math.Abs(r.CompositeScore-(80.0+wantVib)) > 1e-9 {
		t.Errorf("CompositeScore = %v, want %v", r.CompositeScore, 80.0+wantVib)
	}
}

func TestRank_RateNormalization_NotVolumePenalized(t *testing.T) {
	t.Parallel()
	// Same event density over 1h vs 10h must score identically.
	short := calmAggregate("EL-040", 1)
	short.PeakAccelCount = 10
	long := calmAggregate("EL-052", 10)
	long.PeakAccelCount = 100

	recs := Rank([]model.VehicleAggregate{short, long}, nil)
	if math.Abs(recs[0].CompositeScore-recs[1].CompositeScore) > 1e-9 {
		t.Errorf("equal event rates must score equally: %v vs %v",
			recs[0].CompositeScore, recs[1].CompositeScore)
	}
}

func TestRank_OrderingAndTieBreak(t *testing.T) {
	t.Parallel()
	hot := calmAggregate("EL-107", 1)
	hot.PeakAccelCount = 500
	tieB := calmAggregate("EL-052", 1)
	tieA := calmAggregate("EL-040", 1)

	recs := Rank([]model.VehicleAggregate{tieB, hot, tieA}, nil)
	wantOrder := []string{"EL-107", "EL-040", "EL-052"}
	for i, want := range wantOrder {
		if recs[i].VehicleID != want {
			t.Errorf("position %d = %q, want %q", i, recs[i].VehicleID, want)
		}
		if recs[i].Rank != i+1 {
			t.Errorf("rank at %d = %d, want %d", i, recs[i].Rank, i+1)
		}
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].CompositeScore > recs[i-1].CompositeScore {
			t.Error("composite score must be non-increasing with rank")
		}
	}
}

func TestRank_DeadVehiclesFlaggedNotDropped(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "dead.yml")
	if err := os.WriteFile(path, []byte("EL-052: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	dead, err := vehicle.LoadDeadList(path)
	if err != nil {
		t.Fatal(err)
	}

	hotDead := calmAggregate("EL-052", 1)
	hotDead.PeakAccelCount = 500
	live := calmAggregate("EL-040", 1)

	recs := Rank([]model.VehicleAggregate{hotDead, live}, dead)
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2 (dead vehicle must not be dropped)", len(recs))
	}
	if recs[0].VehicleID != "EL-040" || recs[0].Rank != 1 {
		t.Errorf("live vehicle must rank first: %+v", recs[0])
	}
	if !recs[1].Dead || recs[1].Rank != 0 {
		t.Errorf("dead vehicle must be flagged with rank 0: %+v", recs[1])
	}
	if recs[1].CompositeScore == 0 {
		t.Error("dead vehicle keeps its score")
	}
}

func TestRank_ZeroDurationVehicle(t *testing.T) {
	t.Parallel()
	agg := model.VehicleAggregate{VehicleID: "EL-031", LogCount: 2}
	recs := Rank([]model.VehicleAggregate{agg}, nil)
	r := recs[0]
	if r.CompositeScore != 0 {
		t.Errorf("zero-duration vehicle should score 0, got %v", r.CompositeScore)
	}
	if r.LogCount != 2 {
		t.Errorf("LogCount = %d, want 2", r.LogCount)
	}
}
