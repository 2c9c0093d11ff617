package storage

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// marshaler and unmarshaler match the MUS serializers for a single type.
type marshaler[T any] interface {
	Marshal(v T, bs []byte) (n int)
	Size(v T) (size int)
}

type unmarshaler[T any] interface {
	Unmarshal(bs []byte) (v T, n int, err error)
}

// writer runs an encoding twice: once to size the buffer and once to fill it.
type writer struct {
	bs     []byte
	n      int
	sizing bool
}

func put[T any](w *writer, s marshaler[T], v T) {
	if w.sizing {
		w.n += s.Size(v)
		return
	}
	w.n += s.Marshal(v, w.bs[w.n:])
}

func (w *writer) uint64(v uint64)   { put[uint64](w, varint.Uint64, v) }
func (w *writer) int64(v int64)     { put[int64](w, varint.Int64, v) }
func (w *writer) int(v int)         { put[int](w, varint.Int, v) }
func (w *writer) float32(v float32) { put[float32](w, varint.Float32, v) }
func (w *writer) float64(v float64) { put[float64](w, varint.Float64, v) }
func (w *writer) string(v string)   { put[string](w, ord.String, v) }
func (w *writer) bool(v bool)       { put[bool](w, ord.Bool, v) }

func (w *writer) time(t time.Time) {
	w.bool(!t.IsZero())
	if !t.IsZero() {
		w.int64(t.UnixMicro())
	}
}

func (w *writer) strings(vs []string) {
	w.int(len(vs))
	for _, v := range vs {
		w.string(v)
	}
}

func (w *writer) vector(vs []float32) {
	w.int(len(vs))
	for _, v := range vs {
		w.float32(v)
	}
}

// encode sizes and fills a buffer using fn.
func encode(fn func(w *writer)) []byte {
	sizer := &writer{sizing: true}
	fn(sizer)
	w := &writer{bs: make([]byte, sizer.n)}
	fn(w)
	return w.bs[:w.n]
}

// reader decodes sequentially and remembers the first error.
type reader struct {
	bs  []byte
	n   int
	err error
}

func get[T any](r *reader, s unmarshaler[T]) T {
	var zero T
	if r.err != nil {
		return zero
	}
	if r.n >= len(r.bs) {
		r.err = ErrTruncatedData
		return zero
	}
	v, n, err := s.Unmarshal(r.bs[r.n:])
	r.n += n
	if err != nil {
		r.err = err
		return zero
	}
	return v
}

func (r *reader) uint64() uint64   { return get[uint64](r, varint.Uint64) }
func (r *reader) int64() int64     { return get[int64](r, varint.Int64) }
func (r *reader) int() int         { return get[int](r, varint.Int) }
func (r *reader) float32() float32 { return get[float32](r, varint.Float32) }
func (r *reader) float64() float64 { return get[float64](r, varint.Float64) }
func (r *reader) string() string   { return get[string](r, ord.String) }
func (r *reader) bool() bool       { return get[bool](r, ord.Bool) }

func (r *reader) time() time.Time {
	if !r.bool() {
		return time.Time{}
	}
	us := r.int64()
	if r.err != nil {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}

// length reads a slice length and rejects values that cannot fit in the remaining input.
func (r *reader) length() int {
	n := r.int()
	if r.err == nil && (n < 0 || n > len(r.bs)-r.n) {
		r.err = ErrTruncatedData
		return 0
	}
	return n
}

func (r *reader) strings() []string {
	n := r.length()
	if n == 0 {
		return nil
	}
	vs := make([]string, n)
	for i := range vs {
		vs[i] = r.string()
	}
	return vs
}

func (r *reader) vector() []float32 {
	n := r.length()
	if n == 0 {
		return nil
	}
	vs := make([]float32, n)
	for i := range vs {
		vs[i] = r.float32()
	}
	return vs
}
