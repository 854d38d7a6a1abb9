// Package report renders the run artifacts: a fleet Markdown report and
// the per-log and per-vehicle CSV exports. All three are rebuilt wholesale
// from the summary store each run.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotormetrics/prophet/internal/model"
)

// Artifact file names under the output directory.
const (
	MarkdownName     = "report.md"
	SummariesName    = "summaries.csv"
	ByVehicleName    = "aggregated_by_vehicle.csv"
	motorThresholdsN = 3
)

var thresholdLabels = [motorThresholdsN]string{"0.8", "0.9", "1.0"}

var binLabels = [model.NumVibrationBins]string{
	"< 30 m/s²", "30–50 m/s²", "50–70 m/s²", "> 70 m/s²",
}

// WriteAll renders every artifact into dir, creating it if needed.
func WriteAll(dir string, sums []model.LogSummary, aggs []model.VehicleAggregate, recs []model.RiskRecord, stats model.RunStats) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: create output dir: %w", err)
	}
	files := []struct {
		name   string
		render func(io.Writer) error
	}{
		{MarkdownName, func(w io.Writer) error { return WriteMarkdown(w, aggs, recs, stats) }},
		{SummariesName, func(w io.Writer) error { return WriteSummariesCSV(w, sums) }},
		{ByVehicleName, func(w io.Writer) error { return WriteByVehicleCSV(w, aggs) }},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		out, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("report: create %s: %w", f.name, err)
		}
		if err := f.render(out); err != nil {
			out.Close()
			return fmt.Errorf("report: write %s: %w", f.name, err)
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("report: close %s: %w", f.name, err)
		}
		log.Printf("report: wrote %s", path)
	}
	return nil
}

// WriteMarkdown renders the fleet report: run totals, the risk ranking,
// and a per-vehicle breakdown of motor stress, vibration bins, and
// fatigue counters.
func WriteMarkdown(w io.Writer, aggs []model.VehicleAggregate, recs []model.RiskRecord, stats model.RunStats) error {
	bw := &errWriter{w: w}
	bw.printf("# Fleet Telemetry Report\n\n")
	bw.printf("Generated %s.\n\n", time.Now().UTC().Format("2006-01-02 15:04 UTC"))

	if len(aggs) == 0 {
		bw.printf("_No data available._\n")
		return bw.err
	}

	var totalLogs int64
	for i := range aggs {
		totalLogs += aggs[i].LogCount
	}
	bw.printf("- Total vehicles: %d\n", len(aggs))
	bw.printf("- Total logs processed: %d\n", totalLogs)
	bw.printf("- This run: %d processed, %d already summarized, %d failed\n\n",
		stats.Processed, stats.SkippedDone, stats.Failed)
	if len(stats.FailedIDs) > 0 {
		bw.printf("Failed logs:\n\n")
		for _, id := range stats.FailedIDs {
			bw.printf("- `%s`\n", id)
		}
		bw.printf("\n")
	}

	writeRanking(bw, recs)
	writeVehicles(bw, aggs)
	return bw.err
}

func writeRanking(bw *errWriter, recs []model.RiskRecord) {
	if len(recs) == 0 {
		return
	}
	bw.printf("## Vehicle Risk Rankings\n\n")
	bw.printf("Vehicles ranked by composite risk score (fatigue + motor stress + vibration).\n\n")
	bw.printf("| Rank | Vehicle | Risk Score | Fatigue | Motor | Vib | Peak/h | Clip/h | Flight Time (min) | Logs |\n")
	bw.printf("| --- | --- | ---: | ---: | ---: | ---: | ---: | ---: | ---: | ---: |\n")
	for _, r := range recs {
		rank := "—"
		name := r.VehicleID
		if r.Dead {
			name += " (dead)"
		} else {
			rank = strconv.Itoa(r.Rank)
		}
		bw.printf("| %s | %s | %.2f | %.2f | %.2f | %.2f | %.1f | %.1f | %.1f | %d |\n",
			rank, name, r.CompositeScore, r.FatigueScore, r.MotorScore, r.VibrationScore,
			r.PeakEventsPerHour, r.ClipEventsPerHour, r.FlightTimeMin, r.LogCount)
	}
	bw.printf("\n")
}

func writeVehicles(bw *errWriter, aggs []model.VehicleAggregate) {
	bw.printf("## Vehicles\n\n")
	for i := range aggs {
		a := &aggs[i]
		bw.printf("### Vehicle %s\n\n", a.VehicleID)
		bw.printf("- Logs processed: %d\n\n", a.LogCount)

		bw.printf("| Motor | >= 0.8 of max output (min) | >= 0.9 of max output (min) | >= 1.0 of max output (min) |\n")
		bw.printf("| --- | ---: | ---: | ---: |\n")
		for m := 0; m < model.NumMotors; m++ {
			sat := a.Motors[m]
			bw.printf("| Motor %d | %.1f | %.1f | %.1f |\n",
				m, sat.Above080S/60, sat.Above090S/60, sat.Above100S/60)
		}
		totals := a.MotorTotals()
		bw.printf("\n| Threshold | Total time (min) |\n| --- | ---: |\n")
		for t, v := range [motorThresholdsN]float64{totals.Above080S, totals.Above090S, totals.Above100S} {
			bw.printf("| >= %s | %.1f |\n", thresholdLabels[t], v/60)
		}
		bw.printf("\n")

		if a.DurationTrackedS > 0 {
			bw.printf("| Accel bin | Time (min) | Share |\n| --- | ---: | ---: |\n")
			for b := 0; b < model.NumVibrationBins; b++ {
				bw.printf("| %s | %.1f | %.1f%% |\n",
					binLabels[b], a.VibrationBinS[b]/60, a.VibrationShare(b)*100)
			}
			bw.printf("| Total tracked | %.1f | 100.0%% |\n\n", a.DurationTrackedS/60)
		} else {
			bw.printf("_No accelerometer data available._\n\n")
		}

		bw.printf("| Fatigue Metric | Value |\n| --- | ---: |\n")
		bw.printf("| Peak accel events (>100 m/s²) | %d count |\n", a.PeakAccelCount)
		bw.printf("| Accel clipping time | %.2f s |\n", a.ClipDurationS)
		bw.printf("| Accel clipping events | %d count |\n\n", a.ClipCount)
	}
}

var summaryHeader = []string{
	"file", "vehicle_id", "accel_total_time_s",
	"accel_time_lt_30_s", "accel_time_30_50_s", "accel_time_50_70_s", "accel_time_gt_70_s",
	"accel_pct_lt_30", "accel_pct_30_50", "accel_pct_50_70", "accel_pct_gt_70",
	"motor0_time_above_0_8_s", "motor0_time_above_0_9_s", "motor0_time_above_1_0_s",
	"motor1_time_above_0_8_s", "motor1_time_above_0_9_s", "motor1_time_above_1_0_s",
	"motor2_time_above_0_8_s", "motor2_time_above_0_9_s", "motor2_time_above_1_0_s",
	"motor3_time_above_0_8_s", "motor3_time_above_0_9_s", "motor3_time_above_1_0_s",
	"peak_accel_events", "accel_clipping_events", "accel_clipping_time_s",
	"processed_at",
}

// WriteSummariesCSV exports one row per processed log.
func WriteSummariesCSV(w io.Writer, sums []model.LogSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return err
	}
	for i := range sums {
		s := &sums[i]
		rec := []string{s.Identifier, s.VehicleID, ftoa(s.DurationTrackedS)}
		for b := 0; b < model.NumVibrationBins; b++ {
			rec = append(rec, ftoa(s.VibrationBinS[b]))
		}
		for b := 0; b < model.NumVibrationBins; b++ {
			rec = append(rec, ftoa(s.VibrationShare(b)))
		}
		for m := 0; m < model.NumMotors; m++ {
			sat := s.Motors[m]
			rec = append(rec, ftoa(sat.Above080S), ftoa(sat.Above090S), ftoa(sat.Above100S))
		}
		rec = append(rec,
			strconv.FormatInt(s.PeakAccelCount, 10),
			strconv.FormatInt(s.ClipCount, 10),
			ftoa(s.ClipDurationS),
			s.ProcessedAt.UTC().Format(time.RFC3339),
		)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var byVehicleHeader = []string{
	"vehicle_id", "num_logs", "accel_total_time_s",
	"accel_time_lt_30_s", "accel_time_30_50_s", "accel_time_50_70_s", "accel_time_gt_70_s",
	"accel_pct_lt_30", "accel_pct_30_50", "accel_pct_50_70", "accel_pct_gt_70",
	"motor0_time_above_0_8_s", "motor0_time_above_0_9_s", "motor0_time_above_1_0_s",
	"motor1_time_above_0_8_s", "motor1_time_above_0_9_s", "motor1_time_above_1_0_s",
	"motor2_time_above_0_8_s", "motor2_time_above_0_9_s", "motor2_time_above_1_0_s",
	"motor3_time_above_0_8_s", "motor3_time_above_0_9_s", "motor3_time_above_1_0_s",
	"peak_accel_events", "accel_clipping_events", "accel_clipping_time_s",
}

// WriteByVehicleCSV exports one row per vehicle in aggregate order.
func WriteByVehicleCSV(w io.Writer, aggs []model.VehicleAggregate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(byVehicleHeader); err != nil {
		return err
	}
	for i := range aggs {
		a := &aggs[i]
		rec := []string{a.VehicleID, strconv.FormatInt(a.LogCount, 10), ftoa(a.DurationTrackedS)}
		for b := 0; b < model.NumVibrationBins; b++ {
			rec = append(rec, ftoa(a.VibrationBinS[b]))
		}
		for b := 0; b < model.NumVibrationBins; b++ {
			rec = append(rec, ftoa(a.VibrationShare(b)))
		}
		for m := 0; m < model.NumMotors; m++ {
			sat := a.Motors[m]
			rec = append(rec, ftoa(sat.Above080S), ftoa(sat.Above090S), ftoa(sat.Above100S))
		}
		rec = append(rec,
			strconv.FormatInt(a.PeakAccelCount, 10),
			strconv.FormatInt(a.ClipCount, 10),
			ftoa(a.ClipDurationS),
		)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// errWriter folds fprintf error handling into one check at the end.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
