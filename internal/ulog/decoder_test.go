package ulog

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rotormetrics/prophet/internal/model"
	"github.com/rotormetrics/prophet/internal/ulog/ulogtest"
)

const accelFormat = "sensor_accel:uint64_t timestamp;float x;float y;float z;"

func decodeAll(t *testing.T, raw []byte, topics ...string) []model.Sample {
	t.Helper()
	var out []model.Sample
	err := New().Decode(context.Background(), bytes.NewReader(raw), topics, func(s model.Sample) error {
		// The values map is reused by the decoder; copy before retaining.
		vals := make(map[string]float64, len(s.Values))
		for k, v := range s.Values {
			vals[k] = v
		}
		s.Values = vals
		out = append(out, s)
		return nil
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return out
}

func TestDecode_AccelSamples(t *testing.T) {
	t.Parallel()
	raw := ulogtest.New().
		Format(accelFormat).
		Subscribe(0, 7, "sensor_accel").
		Data(7, uint64(1_000_000), float32(1), float32(2), float32(3)).
		Data(7, uint64(1_250_000), float32(4), float32(5), float32(6)).
		Bytes()

	samples := decodeAll(t, raw, "sensor_accel")
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	s := samples[0]
	if s.Topic != "sensor_accel" || s.Instance != 0 {
		t.Errorf("sample identity = %q/%d, want sensor_accel/0", s.Topic, s.Instance)
	}
	if s.TimeUS != 1_000_000 {
		t.Errorf("TimeUS = %d, want 1000000", s.TimeUS)
	}
	if s.Values["x"] != 1 || s.Values["y"] != 2 || s.Values["z"] != 3 {
		t.Errorf("values = %v, want x=1 y=2 z=3", s.Values)
	}
}

func TestDecode_ArrayFields(t *testing.T) {
	t.Parallel()
	raw := ulogtest.New().
		Format("actuator_motors:uint64_t timestamp;float[4] control;").
		Subscribe(0, 3, "actuator_motors").
		Data(3, uint64(500_000), float32(0.1), float32(0.2), float32(0.95), float32(1.0)).
		Bytes()

	samples := decodeAll(t, raw, "actuator_motors")
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	v := samples[0].Values
	if v["control[2]"] != float64(float32(0.95)) {
		t.Errorf("control[2] = %v, want 0.95", v["control[2]"])
	}
	if v["control[3]"] != 1.0 {
		t.Errorf("control[3] = %v, want 1.0", v["control[3]"])
	}
}

func TestDecode_UnsubscribedTopicSkipped(t *testing.T) {
	t.Parallel()
	raw := ulogtest.New().
		Format(accelFormat).
		Format("vehicle_status:uint64_t timestamp;uint8_t arming_state;").
		Subscribe(0, 1, "sensor_accel").
		Subscribe(0, 2, "vehicle_status").
		Data(2, uint64(100), uint8(2)).
		Data(1, uint64(200), float32(0), float32(0), float32(9.8)).
		Bytes()

	samples := decodeAll(t, raw, "sensor_accel")
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1 (vehicle_status must be skipped)", len(samples))
	}
}

func TestDecode_MultiInstance(t *testing.T) {
	t.Parallel()
	raw := ulogtest.New().
		Format(accelFormat).
		Subscribe(0, 1, "sensor_accel").
		Subscribe(1, 2, "sensor_accel").
		Data(1, uint64(100), float32(1), float32(0), float32(0)).
		Data(2, uint64(100), float32(2), float32(0), float32(0)).
		Data(2, uint64(200), float32(3), float32(0), float32(0)).
		Bytes()

	samples := decodeAll(t, raw, "sensor_accel")
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	if samples[1].Instance != 1 || samples[2].Instance != 1 {
		t.Error("instance 1 samples should carry Instance=1")
	}
}

func TestDecode_BadMagic(t *testing.T) {
	t.Parallel()
	raw := ulogtest.New().Bytes()
	raw[0] = 'X'
	err := New().Decode(context.Background(), bytes.NewReader(raw), nil, nil)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
}

func TestDecode_TruncatedTailEndsCleanly(t *testing.T) {
	t.Parallel()
	raw := ulogtest.New().
		Format(accelFormat).
		Subscribe(0, 1, "sensor_accel").
		Data(1, uint64(100), float32(1), float32(2), float32(3)).
		Bytes()
	// Chop the final data message in half, as a power loss would.
	raw = raw[:len(raw)-7]

	err := New().Decode(context.Background(), bytes.NewReader(raw), []string{"sensor_accel"}, func(model.Sample) error {
		return nil
	})
	if err != nil {
		t.Errorf("truncated tail should end cleanly, got %v", err)
	}
}

func TestDecode_NestedTypeFieldsBeforeNestedStillDecode(t *testing.T) {
	t.Parallel()
	raw := ulogtest.New().
		Format("esc_report:uint64_t timestamp;float rpm;").
		Format("esc_status:uint64_t timestamp;esc_report[4] esc;").
		Subscribe(0, 9, "esc_status").
		Data(9, uint64(42), float32(1), float32(2), float32(3)).
		Bytes()

	samples := decodeAll(t, raw, "esc_status")
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	if samples[0].TimeUS != 42 {
		t.Errorf("TimeUS = %d, want 42 (field before nested type)", samples[0].TimeUS)
	}
	if _, ok := samples[0].Values["esc"]; ok {
		t.Error("nested field must not be emitted")
	}
}

func TestParseFormat_Malformed(t *testing.T) {
	t.Parallel()
	for _, def := range []string{"", "noColon", "name:float[ x;", "name:float;", "name:float control[4];"} {
		if _, err := parseFormat(def); !errors.Is(err, ErrCorrupt) {
			t.Errorf("parseFormat(%q) err = %v, want ErrCorrupt", def, err)
		}
	}
}

func TestDecode_PaddingSkipped(t *testing.T) {
	t.Parallel()
	raw := ulogtest.New().
		Format("sensor_accel:uint64_t timestamp;float x;uint8_t[4] _padding0;float y;").
		Subscribe(0, 1, "sensor_accel").
		Data(1, uint64(10), float32(1), [4]byte{}, float32(2)).
		Bytes()

	samples := decodeAll(t, raw, "sensor_accel")
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	if samples[0].Values["y"] != 2 {
		t.Errorf("y = %v, want 2 (offset must account for padding)", samples[0].Values["y"])
	}
}
