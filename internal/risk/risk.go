// Package risk turns per-vehicle aggregates into a ranked composite risk
// score. Components are duration-normalized rates and shares, so a vehicle
// is never penalized just for flying more.
package risk

import (
	"sort"

	"github.com/rotormetrics/prophet/internal/model"
	"github.com/rotormetrics/prophet/internal/vehicle"
)

// Component weights on the 0-100 composite scale.
const (
	weightFatigue   = 60.0
	weightMotor     = 20.0
	weightVibration = 20.0
)

// Normalization ceilings. Raw component values are divided by these and
// clamped to [0,1] before weighting.
const (
	// maxVibrationRaw is the raw vibration ceiling: 100% of time above
	// 70 m/s² contributes 10, 100% in 50-70 contributes 3.
	maxVibrationRaw = 13.0
	// maxMotorRaw is the raw motor-stress ceiling: 100% saturation
	// contributes 15, 100% at >=0.9 contributes 5.
	maxMotorRaw = 20.0
	// maxPeakRate caps peak-acceleration events per flight hour.
	maxPeakRate = 1000.0
	// maxClipRate caps clip events per flight hour.
	maxClipRate = 10000.0
)

// Rank scores every aggregate and orders the result: live vehicles by
// composite score descending (ties by vehicle ID ascending) with ranks
// starting at 1, then dead vehicles in the same order with rank 0. Dead
// vehicles are flagged, never dropped.
func Rank(aggs []model.VehicleAggregate, dead *vehicle.DeadList) []model.RiskRecord {
	records := make([]model.RiskRecord, 0, len(aggs))
	for i := range aggs {
		rec := score(&aggs[i])
		rec.Dead = dead.IsDead(rec.VehicleID)
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := &records[i], &records[j]
		if a.Dead != b.Dead {
			return !a.Dead
		}
		if a.CompositeScore != b.CompositeScore {
			return a.CompositeScore > b.CompositeScore
		}
		return a.VehicleID < b.VehicleID
	})

	rank := 0
	for i := range records {
		if records[i].Dead {
			continue
		}
		rank++
		records[i].Rank = rank
	}
	return records
}

func score(a *model.VehicleAggregate) model.RiskRecord {
	rec := model.RiskRecord{
		VehicleID:     a.VehicleID,
		FlightTimeMin: a.DurationTrackedS / 60.0,
		LogCount:      a.LogCount,
	}
	tot := a.DurationTrackedS
	if tot <= 0 {
		return rec
	}

	rawVibration := a.VibrationShare(3)*10.0 + a.VibrationShare(2)*3.0

	motors := a.MotorTotals()
	rawMotor := (motors.Above100S/tot)*15.0 + (motors.Above090S/tot)*5.0

	rec.PeakEventsPerHour = float64(a.PeakAccelCount) / tot * 3600.0
	rec.ClipEventsPerHour = float64(a.ClipCount) / tot * 3600.0
	fatigue := 0.3*clamp01(rec.PeakEventsPerHour/maxPeakRate) +
		0.7*clamp01(rec.ClipEventsPerHour/maxClipRate)

	rec.VibrationScore = clamp01(rawVibration/maxVibrationRaw) * weightVibration
	rec.MotorScore = clamp01(rawMotor/maxMotorRaw) * weightMotor
	rec.FatigueScore = fatigue * weightFatigue
	rec.CompositeScore = rec.FatigueScore + rec.MotorScore + rec.VibrationScore
	return rec
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
