// Package extract computes per-log safety metrics from a decoded sample
// stream. All accumulators are constant-size: the extractor keeps only the
// previous sample per instance, never a window of history, so memory use is
// independent of log length.
package extract

import (
	"errors"
	"fmt"
	"math"

	"github.com/rotormetrics/prophet/internal/model"
)

// ErrDataQuality marks a log whose computed metrics are negative or
// non-finite (out-of-order timestamps, garbage samples). Such logs are
// skipped, not retried.
var ErrDataQuality = errors.New("data quality check failed")

const (
	accelTopic = "sensor_accel"

	// peakAccelThreshold marks transient spikes, in m/s².
	peakAccelThreshold = 100.0

	// clipThreshold is the per-axis magnitude above which a ±16g
	// accelerometer is considered clipped, in m/s².
	clipThreshold = 150.0

	// saturationTol is the absolute tolerance when testing against the
	// 1.0 output threshold.
	saturationTol = 1e-4

	numClipCounters = 3
)

// motorTopics are the dataset names that commonly carry motor output data,
// in priority order. The instance with the most samples wins; ties fall
// back to this ordering.
var motorTopics = []string{
	"actuator_outputs",
	"actuator_motors",
	"fmu_outputs",
	"actuator_controls_0",
}

// motorFieldPrefixes are the per-channel field spellings seen across
// firmware versions ("output[0]" vs "control[0]").
var motorFieldPrefixes = []string{"output", "control"}

// motorThresholds are the nested output thresholds, ascending.
var motorThresholds = [3]float64{0.8, 0.9, 1.0}

// Metrics is the extracted result for one log, identity-free.
type Metrics struct {
	DurationTrackedS float64
	VibrationBinS    [model.NumVibrationBins]float64
	Motors           [model.NumMotors]model.MotorSaturation
	PeakAccelCount   int64
	ClipCount        int64
	ClipDurationS    float64
}

// Extractor folds a sample stream into Metrics. It is not safe for
// concurrent use; each log gets its own extractor.
type Extractor struct {
	accel  map[uint8]*accelAccum
	motors map[motorKey]*motorAccum
}

type motorKey struct {
	topic    string
	instance uint8
}

// New returns an empty extractor.
func New() *Extractor {
	return &Extractor{
		accel:  make(map[uint8]*accelAccum),
		motors: make(map[motorKey]*motorAccum),
	}
}

// Topics returns the decoder subscriptions the extractor needs.
func (e *Extractor) Topics() []string {
	return append([]string{accelTopic}, motorTopics...)
}

// Observe consumes one decoded sample. It implements model.SampleHandler.
func (e *Extractor) Observe(s model.Sample) error {
	if s.Topic == accelTopic {
		acc, ok := e.accel[s.Instance]
		if !ok {
			acc = &accelAccum{}
			e.accel[s.Instance] = acc
		}
		acc.observe(s)
		return nil
	}
	key := motorKey{topic: s.Topic, instance: s.Instance}
	acc, ok := e.motors[key]
	if !ok {
		acc = &motorAccum{}
		e.motors[key] = acc
	}
	acc.observe(s)
	return nil
}

// Finalize selects the busiest instance per concern and validates the
// result. A log with no trackable samples yields zero metrics, not an
// error.
func (e *Extractor) Finalize() (Metrics, error) {
	var m Metrics

	if acc := e.busiestAccel(); acc != nil {
		m.DurationTrackedS = acc.total
		m.VibrationBinS = acc.bins
		m.PeakAccelCount = acc.peakCount
		m.ClipCount = acc.clipCount
		m.ClipDurationS = acc.clipDur
	}
	if acc := e.busiestMotor(); acc != nil {
		m.Motors = acc.durations()
	}

	if err := validate(&m); err != nil {
		return Metrics{}, err
	}
	return m, nil
}

// busiestAccel returns the accel instance with the most samples, ties
// broken by lowest instance number so identical input always selects the
// same instance.
func (e *Extractor) busiestAccel() *accelAccum {
	var best *accelAccum
	var bestInst uint8
	for inst, acc := range e.accel {
		switch {
		case best == nil, acc.samples > best.samples:
			best, bestInst = acc, inst
		case acc.samples == best.samples && inst < bestInst:
			best, bestInst = acc, inst
		}
	}
	return best
}

// busiestMotor returns the actuator dataset with the most samples, ties
// broken by candidate-topic priority, then lowest instance number.
func (e *Extractor) busiestMotor() *motorAccum {
	var best *motorAccum
	var bestKey motorKey
	for key, acc := range e.motors {
		switch {
		case best == nil, acc.samples > best.samples:
			best, bestKey = acc, key
		case acc.samples == best.samples && motorKeyLess(key, bestKey):
			best, bestKey = acc, key
		}
	}
	return best
}

func motorKeyLess(a, b motorKey) bool {
	pa, pb := topicPriority(a.topic), topicPriority(b.topic)
	if pa != pb {
		return pa < pb
	}
	return a.instance < b.instance
}

// topicPriority is a topic's index in motorTopics; unknown topics sort last.
func topicPriority(topic string) int {
	for i, t := range motorTopics {
		if t == topic {
			return i
		}
	}
	return len(motorTopics)
}

func validate(m *Metrics) error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s = %v", ErrDataQuality, name, v)
		}
		return nil
	}
	if err := check("duration_tracked_s", m.DurationTrackedS); err != nil {
		return err
	}
	for i, d := range m.VibrationBinS {
		if err := check(fmt.Sprintf("vibration_bin_%d", i), d); err != nil {
			return err
		}
	}
	for i := range m.Motors {
		if err := check(fmt.Sprintf("motor%d_above_0_8", i), m.Motors[i].Above080S); err != nil {
			return err
		}
		if err := check(fmt.Sprintf("motor%d_above_0_9", i), m.Motors[i].Above090S); err != nil {
			return err
		}
		if err := check(fmt.Sprintf("motor%d_above_1_0", i), m.Motors[i].Above100S); err != nil {
			return err
		}
	}
	return check("clip_duration_s", m.ClipDurationS)
}

// accelAccum tracks vibration bins, peak events, and clipping for one
// sensor_accel instance. Durations are attributed to the preceding sample:
// the interval [t_i, t_i+1) carries sample i's state, and the final sample
// contributes zero time.
type accelAccum struct {
	samples int64

	haveLast     bool
	lastTimeUS   uint64
	lastMag      float64
	lastClipping bool

	haveCounters bool
	lastCounters [numClipCounters]float64

	bins      [model.NumVibrationBins]float64
	total     float64
	peakCount int64
	clipCount int64
	clipDur   float64
}

func (a *accelAccum) observe(s model.Sample) {
	x, okX := s.Values["x"]
	y, okY := s.Values["y"]
	z, okZ := s.Values["z"]
	if !okX || !okY || !okZ {
		return
	}
	if !isFinite(x) || !isFinite(y) || !isFinite(z) {
		return
	}
	a.samples++

	mag := math.Sqrt(x*x + y*y + z*z)

	clipping := math.Abs(x) > clipThreshold ||
		math.Abs(y) > clipThreshold ||
		math.Abs(z) > clipThreshold

	// An incrementing clip counter is the sensor's own saturation flag.
	var counters [numClipCounters]float64
	haveCounters := false
	for i := 0; i < numClipCounters; i++ {
		if v, ok := s.Values[fmt.Sprintf("clip_counter[%d]", i)]; ok {
			counters[i] = v
			haveCounters = true
		}
	}
	if haveCounters && a.haveCounters {
		for i := 0; i < numClipCounters; i++ {
			if counters[i] > a.lastCounters[i] {
				clipping = true
				break
			}
		}
	}

	if a.haveLast && s.TimeUS > a.lastTimeUS {
		dt := float64(s.TimeUS-a.lastTimeUS) / 1e6
		a.bins[binIndex(a.lastMag)] += dt
		a.total += dt
		if a.lastClipping {
			a.clipDur += dt
		}
	}

	if mag > peakAccelThreshold {
		a.peakCount++
	}
	// Clip events are edge-triggered: count the transition into the
	// clipping state, accrue duration while it holds.
	if clipping && !a.lastClipping {
		a.clipCount++
	}

	a.haveLast = true
	a.lastTimeUS = s.TimeUS
	a.lastMag = mag
	a.lastClipping = clipping
	a.lastCounters = counters
	a.haveCounters = haveCounters
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func binIndex(mag float64) int {
	switch {
	case mag < 30:
		return 0
	case mag < 50:
		return 1
	case mag < 70:
		return 2
	default:
		return 3
	}
}

// motorAccum tracks time above each output threshold for one actuator
// dataset instance.
type motorAccum struct {
	samples    int64
	haveLast   bool
	lastTimeUS uint64
	lastVals   [model.NumMotors]float64
	lastValid  [model.NumMotors]bool
	dur        [model.NumMotors][3]float64
}

func (a *motorAccum) observe(s model.Sample) {
	a.samples++

	if a.haveLast && s.TimeUS > a.lastTimeUS {
		dt := float64(s.TimeUS-a.lastTimeUS) / 1e6
		for motor := 0; motor < model.NumMotors; motor++ {
			if !a.lastValid[motor] {
				continue
			}
			v := a.lastVals[motor]
			for ti, thr := range motorThresholds {
				if aboveThreshold(v, thr) {
					a.dur[motor][ti] += dt
				}
			}
		}
	}

	for motor := 0; motor < model.NumMotors; motor++ {
		a.lastValid[motor] = false
		for _, prefix := range motorFieldPrefixes {
			v, ok := s.Values[fmt.Sprintf("%s[%d]", prefix, motor)]
			if ok && isFinite(v) {
				a.lastVals[motor] = v
				a.lastValid[motor] = true
				break
			}
		}
	}
	a.haveLast = true
	a.lastTimeUS = s.TimeUS
}

func aboveThreshold(v, thr float64) bool {
	if thr == 1.0 {
		return v >= 1.0-saturationTol
	}
	return v >= thr
}

func (a *motorAccum) durations() [model.NumMotors]model.MotorSaturation {
	var out [model.NumMotors]model.MotorSaturation
	for i := 0; i < model.NumMotors; i++ {
		out[i] = model.MotorSaturation{
			Above080S: a.dur[i][0],
			Above090S: a.dur[i][1],
			Above100S: a.dur[i][2],
		}
	}
	return out
}
