// Package ulogtest builds synthetic ULog byte streams for tests.
package ulogtest

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Builder assembles a ULog stream message by message.
type Builder struct {
	buf bytes.Buffer
}

// New returns a builder with a valid file header already written.
func New() *Builder {
	b := &Builder{}
	b.buf.Write([]byte{0x55, 0x4C, 0x6F, 0x67, 0x01, 0x12, 0x35, 0x01})
	var ts [8]byte
	b.buf.Write(ts[:]) // file start timestamp
	return b
}

func (b *Builder) message(typ byte, payload []byte) {
	var head [3]byte
	binary.LittleEndian.PutUint16(head[0:2], uint16(len(payload)))
	head[2] = typ
	b.buf.Write(head[:])
	b.buf.Write(payload)
}

// Format appends a format definition, e.g.
// "sensor_accel:uint64_t timestamp;float x;float y;float z;".
func (b *Builder) Format(def string) *Builder {
	b.message('F', []byte(def))
	return b
}

// Subscribe appends an add-logged-message entry binding msgID to a format.
func (b *Builder) Subscribe(multiID uint8, msgID uint16, name string) *Builder {
	payload := make([]byte, 3+len(name))
	payload[0] = multiID
	binary.LittleEndian.PutUint16(payload[1:3], msgID)
	copy(payload[3:], name)
	b.message('A', payload)
	return b
}

// Data appends a data message. Values are encoded little-endian in order
// and must match the subscribed format's field layout.
func (b *Builder) Data(msgID uint16, values ...any) *Builder {
	var payload bytes.Buffer
	var id [2]byte
	binary.LittleEndian.PutUint16(id[:], msgID)
	payload.Write(id[:])
	for _, v := range values {
		if err := binary.Write(&payload, binary.LittleEndian, v); err != nil {
			panic(fmt.Sprintf("ulogtest: encoding %T: %v", v, err))
		}
	}
	b.message('D', payload.Bytes())
	return b
}

// Raw appends an arbitrary message, for exercising skipped message types.
func (b *Builder) Raw(typ byte, payload []byte) *Builder {
	b.message(typ, payload)
	return b
}

// Bytes returns the assembled stream.
func (b *Builder) Bytes() []byte {
	return bytes.Clone(b.buf.Bytes())
}
