package model

import "time"

const (
	// NumMotors is the number of motor output channels tracked per log.
	NumMotors = 4

	// NumVibrationBins is the number of acceleration-magnitude bins.
	NumVibrationBins = 4
)

// VibrationBinEdges holds the lower edges of the vibration bins in m/s².
// Bin i covers [edge[i], edge[i+1]); the last bin is open-ended.
var VibrationBinEdges = [NumVibrationBins]float64{0, 30, 50, 70}

// LogRef references one remote flight log, not its contents.
// It is created at listing time and never mutated.
type LogRef struct {
	Identifier string // unique object key in the log source
	VehicleID  string // canonical vehicle ID inferred from the key
	SizeHint   int64  // object size in bytes, 0 when unknown
}

// Sample is one decoded datapoint from a subscribed topic. Values holds the
// numeric fields requested by the consumer, keyed by field name.
type Sample struct {
	Topic    string
	Instance uint8
	TimeUS   uint64
	Values   map[string]float64
}

// MotorSaturation holds cumulative time (seconds) one motor channel spent at
// or above each output threshold. The thresholds nest: time at >=1.0 is also
// counted in >=0.9 and >=0.8.
type MotorSaturation struct {
	Above080S float64
	Above090S float64
	Above100S float64
}

// LogSummary is the per-log extracted-metric record. Exactly one row exists
// per identifier; it is immutable once written.
type LogSummary struct {
	Identifier       string
	VehicleID        string
	DurationTrackedS float64
	VibrationBinS    [NumVibrationBins]float64 // [0,30) [30,50) [50,70) [70,inf)
	Motors           [NumMotors]MotorSaturation
	PeakAccelCount   int64
	ClipCount        int64
	ClipDurationS    float64
	ProcessedAt      time.Time
}

// VibrationShare returns the fraction of tracked time spent in bin i,
// or 0 when no time was tracked.
func (s *LogSummary) VibrationShare(i int) float64 {
	if s.DurationTrackedS <= 0 {
		return 0
	}
	return s.VibrationBinS[i] / s.DurationTrackedS
}

// VehicleAggregate is the per-vehicle rollup of all its summary rows.
// It is recomputed wholesale from the summary store each run.
type VehicleAggregate struct {
	VehicleID        string
	LogCount         int64
	DurationTrackedS float64
	VibrationBinS    [NumVibrationBins]float64
	Motors           [NumMotors]MotorSaturation
	PeakAccelCount   int64
	ClipCount        int64
	ClipDurationS    float64
}

// VibrationShare returns the fraction of tracked time spent in bin i.
func (a *VehicleAggregate) VibrationShare(i int) float64 {
	if a.DurationTrackedS <= 0 {
		return 0
	}
	return a.VibrationBinS[i] / a.DurationTrackedS
}

// MotorTotals sums saturation durations across all motor channels.
func (a *VehicleAggregate) MotorTotals() MotorSaturation {
	var t MotorSaturation
	for i := range a.Motors {
		t.Above080S += a.Motors[i].Above080S
		t.Above090S += a.Motors[i].Above090S
		t.Above100S += a.Motors[i].Above100S
	}
	return t
}

// RiskRecord is the ranked risk assessment for one vehicle. Scores are on a
// 0-100 scale; Rank starts at 1 for the highest composite score. Dead
// vehicles carry Rank 0 and sort after live ones.
type RiskRecord struct {
	VehicleID         string
	FatigueScore      float64
	MotorScore        float64
	VibrationScore    float64
	CompositeScore    float64
	Rank              int
	Dead              bool
	PeakEventsPerHour float64
	ClipEventsPerHour float64
	FlightTimeMin     float64
	LogCount          int64
}

// RunStats reports the outcome of one pipeline run.
type RunStats struct {
	Processed   int
	SkippedDone int
	Failed      int
	FailedIDs   []string
}
