package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Mode selects how key blob length fields are validated on decode.
type Mode int

const (
	// Lenient skips key blob length fields, accepting files written by
	// older clients that did not fill them in.
	Lenient Mode = iota
	// Strict requires every key blob length field to equal the blob size
	// and rejects trailing bytes after an account.
	Strict
)

const (
	lengthSize = 8

	presenceAbsent  byte = 0
	presencePresent byte = 1
)

// reader walks a buffer, checking every read against the remaining length.
type reader struct {
	buf  []byte
	off  int
	mode Mode
}

func newReader(buf []byte, mode Mode) *reader {
	return &reader{buf: buf, mode: mode}
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

// take returns the next n bytes without copying.
func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || n > r.remaining() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrEndOfStream, n, r.off, r.remaining())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.take(lengthSize)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) presence() (bool, error) {
	b, err := r.take(1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case presenceAbsent:
		return false, nil
	case presencePresent:
		return true, nil
	default:
		return false, fmt.Errorf("%w: presence byte %d at offset %d", ErrMalformedData, b[0], r.off-1)
	}
}

func (r *reader) string() (string, error) {
	n, err := r.u64()
	if err != nil {
		return "", err
	}
	if n > uint64(r.remaining()) {
		return "", fmt.Errorf("%w: string length %d overruns buffer at offset %d", ErrMalformedData, n, r.off)
	}
	b, _ := r.take(int(n))
	return string(b), nil
}

func (r *reader) optionalString() (*string, error) {
	present, err := r.presence()
	if err != nil || !present {
		return nil, err
	}
	s, err := r.string()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// blob reads a length-prefixed fixed-size field and returns a copy of it.
func (r *reader) blob(name string, size int) ([]byte, error) {
	n, err := r.u64()
	if err != nil {
		return nil, err
	}
	if n > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %s length field is negative", ErrMalformedData, name)
	}
	if r.mode == Strict && n != uint64(size) {
		return nil, fmt.Errorf("%w: %s length field is %d, want %d", ErrMalformedData, name, n, size)
	}
	if r.remaining() < size {
		return nil, fmt.Errorf("%w: %s needs %d bytes, have %d", ErrMalformedData, name, size, r.remaining())
	}
	b, _ := r.take(size)
	out := make([]byte, size)
	copy(out, b)
	return out, nil
}

// writer accumulates an encoding.
type writer struct {
	buf []byte
}

func (w *writer) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *writer) string(s string) {
	w.u64(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) optionalString(s *string) {
	if s == nil {
		w.buf = append(w.buf, presenceAbsent)
		return
	}
	w.buf = append(w.buf, presencePresent)
	w.string(*s)
}

func (w *writer) blob(b []byte) {
	w.u64(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) presence(present bool) {
	if present {
		w.buf = append(w.buf, presencePresent)
		return
	}
	w.buf = append(w.buf, presenceAbsent)
}
