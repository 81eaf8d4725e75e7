package protocol

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Fixed widths of text fields, NUL terminator included.
const (
	CharacterNameWidth  = 64
	EventNameWidth      = 256
	ExpeditionNameWidth = 128
	NoticeArgWidth      = 256
)

// writer appends little-endian fixed-layout fields.
type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) i64(v int64)  { w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v)) }

func (w *writer) f32(v float32) {
	w.u32(math.Float32bits(v))
}

func (w *writer) boolean(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

// text writes s into a width-byte field. Longer values are silently cut to
// width-1 bytes so the field always ends with a NUL.
func (w *writer) text(s string, width int) {
	if len(s) > width-1 {
		s = s[:width-1]
	}
	w.buf = append(w.buf, s...)
	for i := len(s); i < width; i++ {
		w.buf = append(w.buf, 0)
	}
}

// reader consumes fields written by writer. The first short read latches
// err and every later read returns zero values.
type reader struct {
	data []byte
	off  int
	err  bool
}

func (r *reader) take(n int) []byte {
	if r.err || r.off+n > len(r.data) {
		r.err = true
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) i64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (r *reader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *reader) boolean() bool {
	return r.u8() != 0
}

func (r *reader) text(width int) string {
	b := r.take(width)
	if b == nil {
		return ""
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// FixedText returns s as it reads back from a width-byte field.
func FixedText(s string, width int) string {
	if len(s) > width-1 {
		return s[:width-1]
	}
	return s
}
