// Package ulog implements a streaming decoder for the PX4 ULog binary
// format. It reads the message stream incrementally, never holding more
// than one message in memory, and emits numeric samples for subscribed
// topics only. Nested message types and non-numeric fields are skipped.
package ulog

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotormetrics/prophet/internal/model"
)

// ErrCorrupt wraps structural damage in a log stream: bad magic, an
// unsupported version, or an unparseable format definition.
var ErrCorrupt = errors.New("corrupt ulog")

var magic = []byte{0x55, 0x4C, 0x6F, 0x67, 0x01, 0x12, 0x35}

const (
	headerSize = 16

	msgFormat    = 'F'
	msgAddLogged = 'A'
	msgData      = 'D'

	// ctxCheckStride is how many messages pass between context checks.
	ctxCheckStride = 1024
)

// Decoder is a stateless model.Decoder for ULog streams.
type Decoder struct{}

// New returns a ULog decoder.
func New() *Decoder { return &Decoder{} }

type fieldKind uint8

const (
	kindInt8 fieldKind = iota
	kindUint8
	kindInt16
	kindUint16
	kindInt32
	kindUint32
	kindInt64
	kindUint64
	kindFloat
	kindDouble
	kindBool
	kindChar
)

var typeTable = map[string]struct {
	kind fieldKind
	size int
}{
	"int8_t":   {kindInt8, 1},
	"uint8_t":  {kindUint8, 1},
	"int16_t":  {kindInt16, 2},
	"uint16_t": {kindUint16, 2},
	"int32_t":  {kindInt32, 4},
	"uint32_t": {kindUint32, 4},
	"int64_t":  {kindInt64, 8},
	"uint64_t": {kindUint64, 8},
	"float":    {kindFloat, 4},
	"double":   {kindDouble, 8},
	"bool":     {kindBool, 1},
	"char":     {kindChar, 1},
}

// field is one numeric slot in a data message layout.
type field struct {
	name   string
	offset int
	kind   fieldKind
	size   int
}

// format is the decoded layout of one message type. Fields that cannot be
// represented as numbers (nested types, padding) advance the offset but are
// not emitted.
type format struct {
	name   string
	fields []field
	nested bool // contains a nested type; field offsets past it are unknown
}

// subscription binds a logged message ID to a format and a reusable value
// map handed to the sample handler.
type subscription struct {
	topic    string
	instance uint8
	fmt      *format
	values   map[string]float64
}

// Decode reads the stream and calls emit for every data message belonging
// to one of the requested topics. The Values map passed to emit is reused
// between samples and must not be retained.
//
// A truncated tail (the common shape of a crash-ended flight log) ends the
// decode cleanly; a bad header or malformed definition returns ErrCorrupt.
func (d *Decoder) Decode(ctx context.Context, r io.Reader, topics []string, emit model.SampleHandler) error {
	br := bufio.NewReaderSize(r, 64*1024)

	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return fmt.Errorf("%w: short header: %v", ErrCorrupt, err)
	}
	for i, b := range magic {
		if hdr[i] != b {
			return fmt.Errorf("%w: bad magic", ErrCorrupt)
		}
	}

	want := make(map[string]bool, len(topics))
	for _, t := range topics {
		want[t] = true
	}

	formats := make(map[string]*format)
	subs := make(map[uint16]*subscription)

	head := make([]byte, 3)
	payload := make([]byte, 0, 4096)
	var count int

	for {
		count++
		if count%ctxCheckStride == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if _, err := io.ReadFull(br, head); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}
		size := int(binary.LittleEndian.Uint16(head[0:2]))
		typ := head[2]

		if cap(payload) < size {
			payload = make([]byte, size)
		}
		payload = payload[:size]
		if _, err := io.ReadFull(br, payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil // truncated tail
			}
			return err
		}

		switch typ {
		case msgFormat:
			f, err := parseFormat(string(payload))
			if err != nil {
				return err
			}
			formats[f.name] = f
		case msgAddLogged:
			if size < 3 {
				return fmt.Errorf("%w: short add-logged message", ErrCorrupt)
			}
			name := string(payload[3:])
			if !want[name] {
				continue
			}
			f, ok := formats[name]
			if !ok {
				return fmt.Errorf("%w: subscription to undefined format %q", ErrCorrupt, name)
			}
			msgID := binary.LittleEndian.Uint16(payload[1:3])
			subs[msgID] = &subscription{
				topic:    name,
				instance: payload[0],
				fmt:      f,
				values:   make(map[string]float64, len(f.fields)),
			}
		case msgData:
			if size < 2 {
				return fmt.Errorf("%w: short data message", ErrCorrupt)
			}
			sub, ok := subs[binary.LittleEndian.Uint16(payload[0:2])]
			if !ok {
				continue
			}
			sample, ok := sub.decode(payload[2:])
			if !ok {
				continue
			}
			if err := emit(sample); err != nil {
				return err
			}
		default:
			// Info, parameters, logged strings, sync, dropouts: skipped.
		}
	}
}

// decode fills the subscription's reusable value map from one data payload.
// Trailing fields beyond the payload (trimmed padding) are dropped.
func (s *subscription) decode(data []byte) (model.Sample, bool) {
	clear(s.values)
	var timeUS uint64
	for i := range s.fmt.fields {
		f := &s.fmt.fields[i]
		if f.offset+f.size > len(data) {
			break
		}
		v := readValue(data[f.offset:], f.kind)
		if f.name == "timestamp" {
			timeUS = uint64(v)
		}
		s.values[f.name] = v
	}
	if len(s.values) == 0 {
		return model.Sample{}, false
	}
	return model.Sample{
		Topic:    s.topic,
		Instance: s.instance,
		TimeUS:   timeUS,
		Values:   s.values,
	}, true
}

func readValue(b []byte, kind fieldKind) float64 {
	switch kind {
	case kindInt8:
		return float64(int8(b[0]))
	case kindUint8, kindChar:
		return float64(b[0])
	case kindBool:
		if b[0] != 0 {
			return 1
		}
		return 0
	case kindInt16:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case kindUint16:
		return float64(binary.LittleEndian.Uint16(b))
	case kindInt32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case kindUint32:
		return float64(binary.LittleEndian.Uint32(b))
	case kindInt64:
		return float64(int64(binary.LittleEndian.Uint64(b)))
	case kindUint64:
		return float64(binary.LittleEndian.Uint64(b))
	case kindFloat:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case kindDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

// parseFormat decodes a format definition of the shape
// "name:type field;type[n] field;...". Offsets stop advancing at the first
// nested (non-basic) type since its size is unknown without recursion;
// fields before it remain decodable.
func parseFormat(def string) (*format, error) {
	name, rest, ok := strings.Cut(def, ":")
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: malformed format %q", ErrCorrupt, def)
	}
	f := &format{name: name}
	offset := 0
	for _, part := range strings.Split(rest, ";") {
		if part == "" {
			continue
		}
		typName, fieldName, ok := strings.Cut(part, " ")
		if !ok || fieldName == "" {
			return nil, fmt.Errorf("%w: malformed field %q in %q", ErrCorrupt, part, name)
		}
		// The array suffix belongs on the type ("float[4] control"); a
		// bracketed field name would silently shift every later offset.
		if strings.ContainsAny(fieldName, "[]") {
			return nil, fmt.Errorf("%w: malformed field name %q in %q", ErrCorrupt, fieldName, name)
		}

		count := 1
		if i := strings.IndexByte(typName, '['); i >= 0 {
			if !strings.HasSuffix(typName, "]") {
				return nil, fmt.Errorf("%w: malformed array type %q in %q", ErrCorrupt, typName, name)
			}
			n, err := strconv.Atoi(typName[i+1 : len(typName)-1])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("%w: malformed array length in %q", ErrCorrupt, typName)
			}
			count = n
			typName = typName[:i]
		}

		ti, basic := typeTable[typName]
		if !basic {
			// Nested message type: cannot size it, stop laying out here.
			f.nested = true
			break
		}

		padding := strings.HasPrefix(fieldName, "_padding")
		if count == 1 {
			if !padding {
				f.fields = append(f.fields, field{name: fieldName, offset: offset, kind: ti.kind, size: ti.size})
			}
			offset += ti.size
			continue
		}
		for j := 0; j < count; j++ {
			if !padding && typName != "char" {
				f.fields = append(f.fields, field{
					name:   fieldName + "[" + strconv.Itoa(j) + "]",
					offset: offset,
					kind:   ti.kind,
					size:   ti.size,
				})
			}
			offset += ti.size
		}
	}
	return f, nil
}
