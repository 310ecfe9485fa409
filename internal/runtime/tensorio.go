package runtime

// Typed read/write helpers for signature tensors. Writes validate element
// count and type against the tensor's declared contract; reads return fresh
// copies so callers may hold results across later invocations.

// SetFloat32s copies vals into the tensor buffer.
func (t *Tensor) SetFloat32s(vals []float32) error {
	if t.dtype != Float32 {
		return &TypeError{Tensor: t.name, Want: t.dtype, Got: Float32}
	}
	if len(vals) != len(t.f32) {
		return &ShapeError{Tensor: t.name, Want: len(t.f32), Got: len(vals)}
	}
	copy(t.f32, vals)
	return nil
}

// SetInt32s copies vals into the tensor buffer.
func (t *Tensor) SetInt32s(vals []int32) error {
	if t.dtype != Int32 {
		return &TypeError{Tensor: t.name, Want: t.dtype, Got: Int32}
	}
	if len(vals) != len(t.i32) {
		return &ShapeError{Tensor: t.name, Want: len(t.i32), Got: len(vals)}
	}
	copy(t.i32, vals)
	return nil
}

// SetInt64s copies vals into the tensor buffer.
func (t *Tensor) SetInt64s(vals []int64) error {
	if t.dtype != Int64 {
		return &TypeError{Tensor: t.name, Want: t.dtype, Got: Int64}
	}
	if len(vals) != len(t.i64) {
		return &ShapeError{Tensor: t.name, Want: len(t.i64), Got: len(vals)}
	}
	copy(t.i64, vals)
	return nil
}

// Float32s returns a copy of the buffer contents.
func (t *Tensor) Float32s() ([]float32, error) {
	if t.dtype != Float32 {
		return nil, &TypeError{Tensor: t.name, Want: t.dtype, Got: Float32}
	}
	out := make([]float32, len(t.f32))
	copy(out, t.f32)
	return out, nil
}

// Int32s returns a copy of the buffer contents.
func (t *Tensor) Int32s() ([]int32, error) {
	if t.dtype != Int32 {
		return nil, &TypeError{Tensor: t.name, Want: t.dtype, Got: Int32}
	}
	out := make([]int32, len(t.i32))
	copy(out, t.i32)
	return out, nil
}

// Int64s returns a copy of the buffer contents.
func (t *Tensor) Int64s() ([]int64, error) {
	if t.dtype != Int64 {
		return nil, &TypeError{Tensor: t.name, Want: t.dtype, Got: Int64}
	}
	out := make([]int64, len(t.i64))
	copy(out, t.i64)
	return out, nil
}

// RawFloat32s exposes the underlying buffer without copying. For engine
// implementations filling outputs; drivers should use Float32s.
func (t *Tensor) RawFloat32s() []float32 { return t.f32 }

// RawInt32s exposes the underlying buffer without copying.
func (t *Tensor) RawInt32s() []int32 { return t.i32 }

// RawInt64s exposes the underlying buffer without copying.
func (t *Tensor) RawInt64s() []int64 { return t.i64 }

// Copy copies src's contents into dst. Both tensors must agree on dtype and
// element count; names may differ (cache threading copies outputs of one
// step into the inputs of the next).
func Copy(dst, src *Tensor) error {
	if dst.dtype != src.dtype {
		return &TypeError{Tensor: dst.name, Want: dst.dtype, Got: src.dtype}
	}
	if dst.NumElements() != src.NumElements() {
		return &ShapeError{Tensor: dst.name, Want: dst.NumElements(), Got: src.NumElements()}
	}
	switch dst.dtype {
	case Float32:
		copy(dst.f32, src.f32)
	case Int32:
		copy(dst.i32, src.i32)
	case Int64:
		copy(dst.i64, src.i64)
	}
	return nil
}
