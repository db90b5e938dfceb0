package spline

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/prf-explorer/internal/prf"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MinGridNodes is the smallest supported node count per axis.
const MinGridNodes = 4

// GridSpline is a uniform bicubic B-spline with NX by NY nodes spanning
// the domain. Its coefficients are fitted by least squares plus a
// penalty on the second differences of neighbouring coefficients.
type GridSpline struct {
	domain prf.Domain
	nx, ny int
	hx, hy float64
	coef   []float64 // (ny+2) rows of (nx+2) coefficients

	lambda   float64
	residual float64
}

// Domain implements Spline.
func (g *GridSpline) Domain() prf.Domain { return g.domain }

// Lambda returns the roughness weight the coefficients were solved with.
func (g *GridSpline) Lambda() float64 { return g.lambda }

// Residual returns the residual sum of squares of the fit, weighted by
// 1/Err^2 when the fit was weighted.
func (g *GridSpline) Residual() float64 { return g.residual }

// Nodes implements NodeSpline.
func (g *GridSpline) Nodes() (xs, ys []float64) {
	xs = floats.Span(make([]float64, g.nx), g.domain.XMin, g.domain.XMax)
	ys = floats.Span(make([]float64, g.ny), g.domain.YMin, g.domain.YMax)
	return xs, ys
}

// Eval implements Spline. Points outside the domain are extrapolated from
// the nearest boundary cell.
func (g *GridSpline) Eval(x, y float64) float64 {
	kx, bx := basis(x, g.domain.XMin, g.hx, g.nx)
	ky, by := basis(y, g.domain.YMin, g.hy, g.ny)
	stride := g.nx + 2
	f := 0.0
	for b := 0; b < 4; b++ {
		row := (ky+b)*stride + kx
		for a := 0; a < 4; a++ {
			f += bx[a] * by[b] * g.coef[row+a]
		}
	}
	return f
}

// basis returns the first of the four coefficients touching v and the
// uniform cubic B-spline weights for them.
func basis(v, lo, h float64, nodes int) (int, [4]float64) {
	u := (v - lo) / h
	k := int(math.Floor(u))
	if k < 0 {
		k = 0
	} else if k > nodes-2 {
		k = nodes - 2
	}
	t := u - float64(k)
	t2, t3 := t*t, t*t*t
	omt := 1 - t
	return k, [4]float64{
		omt * omt * omt / 6,
		(3*t3 - 6*t2 + 4) / 6,
		(-3*t3 + 3*t2 + 3*t + 1) / 6,
		t3 / 6,
	}
}

func (m GridMethod) validate() error {
	if m.NX < MinGridNodes || m.NY < MinGridNodes {
		return fmt.Errorf("%w: grid resolution %dx%d below %d nodes per axis",
			prf.ErrConfiguration, m.NX, m.NY, MinGridNodes)
	}
	if math.IsNaN(m.Penalty) || math.IsInf(m.Penalty, 0) || m.Penalty < 0 {
		return fmt.Errorf("%w: grid penalty must be non-negative, got %g", prf.ErrConfiguration, m.Penalty)
	}
	return nil
}

func (m GridMethod) fit(samples []prf.Sample, domain prf.Domain) (Spline, error) {
	sys, err := newGridSystem(samples, domain, m.NX, m.NY, false)
	if err != nil {
		return nil, err
	}
	// Penalty per coefficient scales with the sample density.
	lambda := m.Penalty * sys.density()
	coef, residual, err := sys.solve(lambda)
	if err != nil {
		return nil, fmt.Errorf("%w: %d samples do not determine a %dx%d grid with penalty %g",
			err, len(samples), m.NX, m.NY, m.Penalty)
	}
	return sys.spline(coef, lambda, residual), nil
}

// gridSystem holds the penalized least-squares normal equations of a
// uniform bicubic grid:
//
//	(B^T W B + lambda*D) c = B^T W v
//
// where D penalizes second differences of neighbouring coefficients.
type gridSystem struct {
	domain  prf.Domain
	nx, ny  int
	hx, hy  float64
	size    int
	normal  []float64 // B^T W B
	penalty []float64 // D
	rhs     []float64 // B^T W v
	vwv     float64   // v^T W v
	weight  float64   // sum of W
}

// newGridSystem accumulates the normal equations. Weighted systems use
// 1/Err^2 per sample; unweighted ones give every sample weight 1.
func newGridSystem(samples []prf.Sample, domain prf.Domain, nx, ny int, weighted bool) (*gridSystem, error) {
	sys := &gridSystem{
		domain: domain,
		nx:     nx,
		ny:     ny,
		hx:     (domain.XMax - domain.XMin) / float64(nx-1),
		hy:     (domain.YMax - domain.YMin) / float64(ny-1),
	}
	mx := nx + 2
	sys.size = mx * (ny + 2)
	size := sys.size
	sys.normal = make([]float64, size*size)
	sys.rhs = make([]float64, size)

	var idx [16]int
	var w [16]float64
	for i, s := range samples {
		sw := 1.0
		if weighted {
			if !(s.Err > 0) || math.IsInf(s.Err, 0) {
				return nil, fmt.Errorf("%w: sample %d has non-positive error %g", prf.ErrNumericDegeneracy, i, s.Err)
			}
			sw = 1 / (s.Err * s.Err)
		}
		sys.weight += sw
		sys.vwv += sw * s.Value * s.Value

		kx, bx := basis(s.XOff, domain.XMin, sys.hx, nx)
		ky, by := basis(s.YOff, domain.YMin, sys.hy, ny)
		for b := 0; b < 4; b++ {
			for a := 0; a < 4; a++ {
				idx[b*4+a] = (ky+b)*mx + kx + a
				w[b*4+a] = bx[a] * by[b]
			}
		}
		for k := 0; k < 16; k++ {
			wk := sw * w[k]
			sys.rhs[idx[k]] += wk * s.Value
			row := idx[k] * size
			for j := 0; j < 16; j++ {
				sys.normal[row+idx[j]] += wk * w[j]
			}
		}
	}
	sys.penalty = differencePenalty(mx, ny+2)
	return sys, nil
}

// differencePenalty returns the second-difference roughness matrix of an
// mx by my coefficient grid. Planes are its null space.
func differencePenalty(mx, my int) []float64 {
	size := mx * my
	d := make([]float64, size*size)
	add := func(weight float64, terms ...[2]int) {
		for _, ti := range terms {
			row := ti[0] * size
			for _, tj := range terms {
				d[row+tj[0]] += weight * float64(ti[1]*tj[1])
			}
		}
	}
	at := func(jx, jy int) int { return jy*mx + jx }
	for jy := 0; jy < my; jy++ {
		for jx := 0; jx+2 < mx; jx++ {
			add(1, [2]int{at(jx, jy), 1}, [2]int{at(jx+1, jy), -2}, [2]int{at(jx+2, jy), 1})
		}
	}
	for jx := 0; jx < mx; jx++ {
		for jy := 0; jy+2 < my; jy++ {
			add(1, [2]int{at(jx, jy), 1}, [2]int{at(jx, jy+1), -2}, [2]int{at(jx, jy+2), 1})
		}
	}
	for jy := 0; jy+1 < my; jy++ {
		for jx := 0; jx+1 < mx; jx++ {
			add(2, [2]int{at(jx, jy), 1}, [2]int{at(jx+1, jy), -1},
				[2]int{at(jx, jy+1), -1}, [2]int{at(jx+1, jy+1), 1})
		}
	}
	return d
}

// density is the total sample weight per coefficient.
func (sys *gridSystem) density() float64 {
	return sys.weight / float64(sys.size)
}

// solve returns the coefficients for lambda and the weighted residual sum
// of squares, computed from the normal equations without revisiting the
// samples.
func (sys *gridSystem) solve(lambda float64) ([]float64, float64, error) {
	size := sys.size
	a := make([]float64, size*size)
	copy(a, sys.normal)
	if lambda > 0 {
		floats.AddScaled(a, lambda, sys.penalty)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(size, a)); !ok {
		return nil, 0, fmt.Errorf("%w: grid system is not positive definite", prf.ErrNumericDegeneracy)
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, mat.NewVecDense(size, sys.rhs)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, 0, fmt.Errorf("%w: grid system: %v", prf.ErrNumericDegeneracy, err)
		}
		prf.Tracef("grid system ill-conditioned (lambda %g): %v", lambda, err)
	}

	coef := make([]float64, size)
	for i := range coef {
		c := x.AtVec(i)
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, 0, fmt.Errorf("%w: non-finite grid coefficient", prf.ErrNumericDegeneracy)
		}
		coef[i] = c
	}

	// r = v'Wv - 2 c'B'Wv + c'B'WB c
	nc := mat.NewVecDense(size, nil)
	nc.MulVec(mat.NewSymDense(size, sys.normal), mat.NewVecDense(size, coef))
	residual := sys.vwv - 2*floats.Dot(coef, sys.rhs) + floats.Dot(coef, nc.RawVector().Data)
	return coef, math.Max(residual, 0), nil
}

func (sys *gridSystem) spline(coef []float64, lambda, residual float64) *GridSpline {
	return &GridSpline{
		domain:   sys.domain,
		nx:       sys.nx,
		ny:       sys.ny,
		hx:       sys.hx,
		hy:       sys.hy,
		coef:     coef,
		lambda:   lambda,
		residual: residual,
	}
}
