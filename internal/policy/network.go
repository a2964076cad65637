// Package policy implements the actor-critic function approximator: two
// independent feed-forward networks over the shared observation layout,
// with explicit analytic gradients and an Adam optimizer. No parameters
// are shared between the heads.
package policy

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// layer is a dense affine transform. W is out×in, B is length out.
type layer struct {
	W *mat.Dense
	B *mat.VecDense
}

// Network is a multi-layer perceptron with ReLU activations between layers
// and a linear output layer.
type Network struct {
	layers []layer
	sizes  []int
}

// NewNetwork builds an MLP with the given layer sizes (input first, output
// last), He-initialized from the supplied source.
func NewNetwork(sizes []int, rng *rand.Rand) *Network {
	n := &Network{sizes: append([]int(nil), sizes...)}
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		w := mat.NewDense(out, in, nil)
		scale := math.Sqrt(2.0 / float64(in))
		for i := 0; i < out; i++ {
			for j := 0; j < in; j++ {
				w.Set(i, j, rng.NormFloat64()*scale)
			}
		}
		n.layers = append(n.layers, layer{
			W: w,
			B: mat.NewVecDense(out, nil),
		})
	}
	return n
}

// Cache holds the per-layer input activations of one forward pass, needed
// to backpropagate through it.
type Cache struct {
	acts []*mat.Dense
}

// Forward runs a batch (rows are samples) through the network, returning
// the linear outputs and the activation cache.
func (n *Network) Forward(x *mat.Dense) (*mat.Dense, *Cache) {
	cache := &Cache{acts: make([]*mat.Dense, 0, len(n.layers))}
	a := x
	for l, lay := range n.layers {
		cache.acts = append(cache.acts, a)
		rows, _ := a.Dims()
		out := lay.W.RawMatrix().Rows
		z := mat.NewDense(rows, out, nil)
		z.Mul(a, lay.W.T())
		for i := 0; i < rows; i++ {
			row := z.RawRowView(i)
			for j := 0; j < out; j++ {
				row[j] += lay.B.AtVec(j)
				if l < len(n.layers)-1 && row[j] < 0 {
					row[j] = 0 // ReLU on hidden layers
				}
			}
		}
		a = z
	}
	return a, cache
}

// Gradients mirrors the network's parameter layout.
type Gradients struct {
	layers []layer
}

// Backward computes parameter gradients given the cache of a forward pass
// and the loss gradient with respect to the network outputs.
func (n *Network) Backward(cache *Cache, dOut *mat.Dense) *Gradients {
	grads := &Gradients{layers: make([]layer, len(n.layers))}
	d := dOut
	for l := len(n.layers) - 1; l >= 0; l-- {
		act := cache.acts[l]
		rows, _ := d.Dims()
		out, in := n.layers[l].W.Dims()

		gw := mat.NewDense(out, in, nil)
		gw.Mul(d.T(), act)
		gb := mat.NewVecDense(out, nil)
		for i := 0; i < rows; i++ {
			row := d.RawRowView(i)
			for j := 0; j < out; j++ {
				gb.SetVec(j, gb.AtVec(j)+row[j])
			}
		}
		grads.layers[l] = layer{W: gw, B: gb}

		if l > 0 {
			prev := mat.NewDense(rows, in, nil)
			prev.Mul(d, n.layers[l].W)
			// ReLU gate: activations that were clamped to zero pass no
			// gradient.
			for i := 0; i < rows; i++ {
				actRow := act.RawRowView(i)
				prevRow := prev.RawRowView(i)
				for j := 0; j < in; j++ {
					if actRow[j] <= 0 {
						prevRow[j] = 0
					}
				}
			}
			d = prev
		}
	}
	return grads
}

// paramData returns the raw backing slices of every parameter, in a stable
// order. Mutating them mutates the network.
func (n *Network) paramData() [][]float64 {
	out := make([][]float64, 0, 2*len(n.layers))
	for _, lay := range n.layers {
		out = append(out, lay.W.RawMatrix().Data, lay.B.RawVector().Data)
	}
	return out
}

// Append concatenates the gradient blobs of two networks in the same order
// Model.ParamData lays out the parameters.
func (g *Gradients) Append(other *Gradients) [][]float64 {
	return append(g.data(), other.data()...)
}

// data returns the gradient blobs in the same order as Network.paramData.
func (g *Gradients) data() [][]float64 {
	out := make([][]float64, 0, 2*len(g.layers))
	for _, lay := range g.layers {
		out = append(out, lay.W.RawMatrix().Data, lay.B.RawVector().Data)
	}
	return out
}
