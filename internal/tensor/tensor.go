// Package tensor holds the minimal dense float32 tensor used to pass latents,
// masks and conditioning between the engine and model runtimes. Heavy math lives
// in the runtimes; this type only supports the elementwise work the samplers do.
package tensor

import (
	"fmt"
	"math/rand/v2"
)

// Tensor is a row-major dense tensor.
type Tensor struct {
	Shape []int
	Data  []float32
}

// New allocates a zeroed tensor with the given shape.
func New(shape ...int) *Tensor {
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, numel(shape))}
}

// FromData wraps data with the given shape. It panics if the sizes disagree.
func FromData(data []float32, shape ...int) *Tensor {
	if len(data) != numel(shape) {
		panic(fmt.Sprintf("tensor: %d values do not fit shape %v", len(data), shape))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}
}

// Randn fills a new tensor with standard normal samples drawn from rng.
func Randn(rng *rand.Rand, shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64())
	}
	return t
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Len returns the number of elements.
func (t *Tensor) Len() int { return len(t.Data) }

// Dim returns the size of axis i.
func (t *Tensor) Dim(i int) int { return t.Shape[i] }

// SameShape reports whether t and o have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: append([]int(nil), t.Shape...), Data: append([]float32(nil), t.Data...)}
}

func (t *Tensor) mustMatch(o *Tensor) {
	if !t.SameShape(o) {
		panic(fmt.Sprintf("tensor: shape mismatch %v vs %v", t.Shape, o.Shape))
	}
}

// Add returns t + o.
func (t *Tensor) Add(o *Tensor) *Tensor {
	t.mustMatch(o)
	out := t.Clone()
	for i, v := range o.Data {
		out.Data[i] += v
	}
	return out
}

// Sub returns t - o.
func (t *Tensor) Sub(o *Tensor) *Tensor {
	t.mustMatch(o)
	out := t.Clone()
	for i, v := range o.Data {
		out.Data[i] -= v
	}
	return out
}

// Scale returns t * s.
func (t *Tensor) Scale(s float64) *Tensor {
	out := t.Clone()
	for i := range out.Data {
		out.Data[i] = float32(float64(out.Data[i]) * s)
	}
	return out
}

// AddScaled returns t + o*s.
func (t *Tensor) AddScaled(o *Tensor, s float64) *Tensor {
	t.mustMatch(o)
	out := t.Clone()
	for i, v := range o.Data {
		out.Data[i] = float32(float64(out.Data[i]) + float64(v)*s)
	}
	return out
}

// Blend returns mask*t + (1-mask)*o elementwise.
func (t *Tensor) Blend(o, mask *Tensor) *Tensor {
	t.mustMatch(o)
	t.mustMatch(mask)
	out := t.Clone()
	for i := range out.Data {
		m := mask.Data[i]
		out.Data[i] = m*t.Data[i] + (1-m)*o.Data[i]
	}
	return out
}

// Repeat stacks n copies of a tensor whose leading axis is 1 along that axis.
func (t *Tensor) Repeat(n int) *Tensor {
	if len(t.Shape) == 0 || t.Shape[0] != 1 {
		panic(fmt.Sprintf("tensor: repeat needs leading axis 1, got %v", t.Shape))
	}
	shape := append([]int(nil), t.Shape...)
	shape[0] = n
	out := &Tensor{Shape: shape, Data: make([]float32, 0, len(t.Data)*n)}
	for i := 0; i < n; i++ {
		out.Data = append(out.Data, t.Data...)
	}
	return out
}

// Batch returns a copy of item i along the leading axis, keeping a leading axis of 1.
func (t *Tensor) Batch(i int) *Tensor {
	stride := len(t.Data) / t.Shape[0]
	shape := append([]int(nil), t.Shape...)
	shape[0] = 1
	return &Tensor{Shape: shape, Data: append([]float32(nil), t.Data[i*stride:(i+1)*stride]...)}
}

// PadAxis1 extends a [b, n, d] tensor to [b, length, d] by repeating each
// item's final row. It returns t unchanged when it is already long enough.
func (t *Tensor) PadAxis1(length int) *Tensor {
	if len(t.Shape) != 3 {
		panic(fmt.Sprintf("tensor: pad needs rank 3, got %v", t.Shape))
	}
	b, n, d := t.Shape[0], t.Shape[1], t.Shape[2]
	if n >= length {
		return t
	}
	out := New(b, length, d)
	for bi := 0; bi < b; bi++ {
		src := t.Data[bi*n*d : (bi+1)*n*d]
		dst := out.Data[bi*length*d : (bi+1)*length*d]
		copy(dst, src)
		if n == 0 {
			continue
		}
		last := src[(n-1)*d:]
		for r := n; r < length; r++ {
			copy(dst[r*d:(r+1)*d], last)
		}
	}
	return out
}
