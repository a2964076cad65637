package policy

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Adam is a first-order optimizer over a fixed set of parameter blobs. The
// moment buffers are laid out to match the blob order handed to Step, which
// must be stable across calls (Model.ParamData provides that order).
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64

	t int
	m [][]float64
	v [][]float64
}

// NewAdam builds an optimizer for the given parameter blobs with the usual
// default betas.
func NewAdam(lr float64, params [][]float64) *Adam {
	a := &Adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}
	a.m = make([][]float64, len(params))
	a.v = make([][]float64, len(params))
	for i, p := range params {
		a.m[i] = make([]float64, len(p))
		a.v[i] = make([]float64, len(p))
	}
	return a
}

// Step applies one bias-corrected Adam update in place.
func (a *Adam) Step(params, grads [][]float64) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, p := range params {
		g := grads[i]
		m := a.m[i]
		v := a.v[i]
		for j := range p {
			m[j] = a.beta1*m[j] + (1-a.beta1)*g[j]
			v[j] = a.beta2*v[j] + (1-a.beta2)*g[j]*g[j]
			mHat := m[j] / c1
			vHat := v[j] / c2
			p[j] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}

// ClipGradNorm rescales the gradient blobs in place so that their combined
// L2 norm does not exceed maxNorm. Guards against gradient explosion.
func ClipGradNorm(grads [][]float64, maxNorm float64) float64 {
	var sq float64
	for _, g := range grads {
		sq += floats.Dot(g, g)
	}
	norm := math.Sqrt(sq)
	if norm > maxNorm && norm > 0 {
		scale := maxNorm / norm
		for _, g := range grads {
			floats.Scale(scale, g)
		}
	}
	return norm
}
