package surface

import (
	"context"
	gomath "math"

	"gonum.org/v1/gonum/floats"
)

// solveIndicator solves the discrete Poisson equation lap(x) = div with zero
// Dirichlet boundary by conjugate gradients. It returns the solution and the
// number of iterations run.
func solveIndicator(ctx context.Context, g *grid, div []float64, maxIter int, tol float64) ([]float64, int, error) {
	// -h² lap(x) = -h² div keeps the operator positive definite.
	b := make([]float64, len(div))
	floats.ScaleTo(b, -g.cell*g.cell, div)

	x := make([]float64, len(b))
	r := append([]float64(nil), b...)
	p := append([]float64(nil), r...)
	ap := make([]float64, len(b))

	rs := floats.Dot(r, r)
	bnorm := gomath.Sqrt(rs)
	if bnorm == 0 {
		return x, 0, nil
	}

	it := 0
	for ; it < maxIter; it++ {
		if err := ctx.Err(); err != nil {
			return nil, it, err
		}

		g.laplacian(p, ap)
		pap := floats.Dot(p, ap)
		if pap <= 0 {
			break
		}
		alpha := rs / pap
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)

		rsNew := floats.Dot(r, r)
		if gomath.Sqrt(rsNew) <= tol*bnorm {
			it++
			break
		}
		floats.Scale(rsNew/rs, p)
		floats.Add(p, r)
		rs = rsNew
	}
	return x, it, nil
}
