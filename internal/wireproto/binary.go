package wireproto

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Writer accumulates a binary packet body. NewWriter writes the leading
// PacketType byte; callers only write the fields that follow it.
type Writer struct {
	buf []byte
}

// NewWriter starts a binary packet body with its PacketType ordinal already
// written as the first byte.
func NewWriter(t PacketType) *Writer {
	w := &Writer{buf: make([]byte, 0, 64)}
	w.buf = append(w.buf, byte(t))
	return w
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) PutUint8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) PutBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) PutUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutInt32(v int32) { w.PutUint32(uint32(v)) }

func (w *Writer) PutFloat32(v float32) { w.PutUint32(math.Float32bits(v)) }

func (w *Writer) PutFloat64(v float64) { w.PutUint64(math.Float64bits(v)) }

// PutString writes a uint16-length-prefixed UTF-8 string.
func (w *Writer) PutString(s string) {
	w.PutUint16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// PutGUID writes the 16 raw bytes of a uuid.UUID.
func (w *Writer) PutGUID(id uuid.UUID) {
	w.buf = append(w.buf, id[:]...)
}

// PutBytes appends a uint16-length-prefixed raw byte slice.
func (w *Writer) PutBytes(b []byte) {
	w.PutUint16(uint16(len(b)))
	w.buf = append(w.buf, b...)
}

// Reader consumes a binary packet body sequentially, field by field.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps a binary frame whose first byte (the PacketType ordinal)
// has already been stripped by the caller.
func NewReader(body []byte) *Reader {
	return &Reader{buf: body}
}

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("wireproto: short read: need %d bytes at offset %d, have %d", n, r.pos, len(r.buf))
	}
	return nil
}

func (r *Reader) Uint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.Uint8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (r *Reader) Uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) Uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) Uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) Float64() (float64, error) {
	v, err := r.Uint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *Reader) String() (string, error) {
	n, err := r.Uint16()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *Reader) GUID() (uuid.UUID, error) {
	if err := r.need(16); err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	copy(id[:], r.buf[r.pos:r.pos+16])
	r.pos += 16
	return id, nil
}

func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return b, nil
}

// Remaining returns the unconsumed tail of the body, useful for payloads
// whose length isn't self-describing (e.g. a raw trailing blob).
func (r *Reader) Remaining() []byte {
	return r.buf[r.pos:]
}

// Len reports how many bytes are left unconsumed.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// ReadPacketType peeks the leading ordinal byte of a binary frame without
// consuming it, returning false if the frame is empty.
func ReadPacketType(frame []byte) (PacketType, bool) {
	if len(frame) == 0 {
		return 0, false
	}
	return PacketType(frame[0]), true
}
