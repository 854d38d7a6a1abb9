// Package aggregate folds per-log summaries into per-vehicle rollups. The
// fold is pure: it takes the full summary set and returns a fresh slice,
// with no shared accumulator state between runs.
package aggregate

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotormetrics/prophet/internal/model"
	"github.com/rotormetrics/prophet/internal/vehicle"
)

// UnknownVehicle groups summaries whose identifier carries no recognizable
// vehicle token.
const UnknownVehicle = "UNKNOWN"

// ByVehicle groups summaries by canonical vehicle ID and sums every numeric
// field. The result is ordered by the numeric component of the ID, then
// lexically, so reports are stable run to run.
func ByVehicle(summaries []model.LogSummary) []model.VehicleAggregate {
	byID := make(map[string]*model.VehicleAggregate)
	for i := range summaries {
		s := &summaries[i]
		id := vehicle.Canonicalize(s.VehicleID)
		if id == "" {
			id = UnknownVehicle
		}
		agg, ok := byID[id]
		if !ok {
			agg = &model.VehicleAggregate{VehicleID: id}
			byID[id] = agg
		}
		agg.LogCount++
		agg.DurationTrackedS += s.DurationTrackedS
		for b := 0; b < model.NumVibrationBins; b++ {
			agg.VibrationBinS[b] += s.VibrationBinS[b]
		}
		for m := 0; m < model.NumMotors; m++ {
			agg.Motors[m].Above080S += s.Motors[m].Above080S
			agg.Motors[m].Above090S += s.Motors[m].Above090S
			agg.Motors[m].Above100S += s.Motors[m].Above100S
		}
		agg.PeakAccelCount += s.PeakAccelCount
		agg.ClipCount += s.ClipCount
		agg.ClipDurationS += s.ClipDurationS
	}

	out := make([]model.VehicleAggregate, 0, len(byID))
	for _, agg := range byID {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		ni, oki := vehicleNumber(out[i].VehicleID)
		nj, okj := vehicleNumber(out[j].VehicleID)
		switch {
		case oki && !okj:
			return true
		case !oki && okj:
			return false
		case oki && okj && ni != nj:
			return ni < nj
		}
		return strings.ToLower(out[i].VehicleID) < strings.ToLower(out[j].VehicleID)
	})
	return out
}

var digits = regexp.MustCompile(`\d+`)

// vehicleNumber extracts the numeric component of a vehicle ID for the
// report sort order (EL-9 before EL-40).
func vehicleNumber(id string) (int, bool) {
	m := digits.FindString(id)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}
