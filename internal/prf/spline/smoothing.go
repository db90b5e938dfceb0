package spline

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/prf-explorer/internal/prf"
	"gonum.org/v1/gonum/mat"
)

const (
	// MaxThinPlateSamples bounds the dense thin-plate system. Larger sets
	// are smoothed on a weighted bicubic grid.
	MaxThinPlateSamples = 500

	// DefaultSmoothingNodes is the node count per axis of grid smoothing
	// when the method leaves NX or NY unset.
	DefaultSmoothingNodes = 20

	// smoothingSteps is the number of log-space bisection steps used to
	// match the residual target.
	smoothingSteps = 40

	minLogMu = -10.0
	maxLogMu = 10.0
)

// SmoothingSpline is a weighted thin-plate smoothing spline. It minimizes
// the bending energy of the surface subject to a bound on the weighted
// residual sum of squares, with weights 1/Err.
type SmoothingSpline struct {
	domain   prf.Domain
	cx, cy   float64 // coordinate centre
	scale    float64 // coordinate scale
	px, py   []float64
	coef     []float64
	affine   [3]float64
	lambda   float64
	residual float64
}

// Domain implements Spline.
func (s *SmoothingSpline) Domain() prf.Domain { return s.domain }

// Lambda returns the roughness weight chosen by the fit.
func (s *SmoothingSpline) Lambda() float64 { return s.lambda }

// Residual returns the weighted residual sum of squares of the fit.
func (s *SmoothingSpline) Residual() float64 { return s.residual }

// Eval implements Spline.
func (s *SmoothingSpline) Eval(x, y float64) float64 {
	u := (x - s.cx) / s.scale
	v := (y - s.cy) / s.scale
	f := s.affine[0] + s.affine[1]*u + s.affine[2]*v
	for i := range s.coef {
		du, dv := u-s.px[i], v-s.py[i]
		f += s.coef[i] * tpsKernel(du*du+dv*dv)
	}
	return f
}

// tpsKernel is r^2 log r expressed in terms of r^2.
func tpsKernel(r2 float64) float64 {
	if r2 == 0 {
		return 0
	}
	return 0.5 * r2 * math.Log(r2)
}

type smoothingSystem struct {
	n      int
	px, py []float64
	values []float64
	err2   []float64 // squared sample errors (1/w^2)
	kernel []float64 // n*n
}

func (m SmoothingMethod) validate() error {
	if math.IsNaN(m.Factor) || math.IsInf(m.Factor, 0) || m.Factor < 0 {
		return fmt.Errorf("%w: smoothing factor must be non-negative, got %g", prf.ErrConfiguration, m.Factor)
	}
	if nx, ny := m.nodes(); nx < MinGridNodes || ny < MinGridNodes {
		return fmt.Errorf("%w: smoothing grid %dx%d below %d nodes per axis",
			prf.ErrConfiguration, nx, ny, MinGridNodes)
	}
	return nil
}

func (m SmoothingMethod) nodes() (nx, ny int) {
	nx, ny = m.NX, m.NY
	if nx == 0 {
		nx = DefaultSmoothingNodes
	}
	if ny == 0 {
		ny = DefaultSmoothingNodes
	}
	return nx, ny
}

func (m SmoothingMethod) fit(samples []prf.Sample, domain prf.Domain) (Spline, error) {
	n := len(samples)
	if n < 3 {
		return nil, fmt.Errorf("%w: %d samples, need at least 3", prf.ErrNumericDegeneracy, n)
	}
	if n > MaxThinPlateSamples {
		return m.fitGrid(samples, domain)
	}

	s := &SmoothingSpline{
		domain: domain,
		cx:     (domain.XMin + domain.XMax) / 2,
		cy:     (domain.YMin + domain.YMax) / 2,
		scale:  math.Max(domain.XMax-domain.XMin, domain.YMax-domain.YMin) / 2,
		px:     make([]float64, n),
		py:     make([]float64, n),
	}

	sys := &smoothingSystem{
		n:      n,
		px:     s.px,
		py:     s.py,
		values: make([]float64, n),
		err2:   make([]float64, n),
		kernel: make([]float64, n*n),
	}
	meanW2 := 0.0
	for i, smp := range samples {
		if !(smp.Err > 0) || math.IsInf(smp.Err, 0) {
			return nil, fmt.Errorf("%w: sample %d has non-positive error %g", prf.ErrNumericDegeneracy, i, smp.Err)
		}
		s.px[i] = (smp.XOff - s.cx) / s.scale
		s.py[i] = (smp.YOff - s.cy) / s.scale
		sys.values[i] = smp.Value
		sys.err2[i] = smp.Err * smp.Err
		meanW2 += 1 / sys.err2[i]
	}
	meanW2 /= float64(n)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			du, dv := s.px[i]-s.px[j], s.py[i]-s.py[j]
			k := tpsKernel(du*du + dv*dv)
			sys.kernel[i*n+j] = k
			sys.kernel[j*n+i] = k
		}
	}

	target := m.Factor * float64(n)
	var best smoothingSolution
	var err error
	if target > 0 {
		best, err = sys.match(target, meanW2)
	} else {
		best, err = sys.solve(0)
	}
	if err != nil {
		return nil, err
	}

	s.coef = best.coef
	s.affine = best.affine
	s.lambda = best.lambda
	s.residual = best.residual
	return s, nil
}

type smoothingSolution struct {
	lambda   float64
	coef     []float64
	affine   [3]float64
	residual float64
}

// match finds the roughness weight whose weighted residual is closest to
// target from below, searching lambda = mu*meanW2 with mu spanning
// [1e-10, 1e10] on a log scale.
func (sys *smoothingSystem) match(target, meanW2 float64) (smoothingSolution, error) {
	hi, err := sys.solve(math.Pow(10, maxLogMu) * meanW2)
	if err != nil {
		return smoothingSolution{}, err
	}
	if hi.residual <= target {
		return hi, nil
	}
	lo, err := sys.solve(math.Pow(10, minLogMu) * meanW2)
	if err != nil {
		return smoothingSolution{}, err
	}
	if lo.residual >= target {
		return lo, nil
	}

	loMu, hiMu := minLogMu, maxLogMu
	for step := 0; step < smoothingSteps; step++ {
		mid := (loMu + hiMu) / 2
		sol, err := sys.solve(math.Pow(10, mid) * meanW2)
		if err != nil {
			return smoothingSolution{}, err
		}
		if sol.residual <= target {
			lo, loMu = sol, mid
		} else {
			hiMu = mid
		}
	}
	return lo, nil
}

// solve builds and solves the bordered thin-plate system
//
//	[K + lambda*E  P] [c]   [v]
//	[P^T           0] [a] = [0]
//
// where E holds the squared sample errors and P = [1 x y].
func (sys *smoothingSystem) solve(lambda float64) (smoothingSolution, error) {
	n := sys.n
	size := n + 3
	a := mat.NewDense(size, size, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, sys.kernel[i*n+j])
		}
		a.Set(i, i, a.At(i, i)+lambda*sys.err2[i])
		a.Set(i, n, 1)
		a.Set(i, n+1, sys.px[i])
		a.Set(i, n+2, sys.py[i])
		a.Set(n, i, 1)
		a.Set(n+1, i, sys.px[i])
		a.Set(n+2, i, sys.py[i])
	}
	rhs := mat.NewVecDense(size, nil)
	for i, v := range sys.values {
		rhs.SetVec(i, v)
	}

	var lu mat.LU
	lu.Factorize(a)
	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return smoothingSolution{}, fmt.Errorf("%w: singular smoothing system: %v", prf.ErrNumericDegeneracy, err)
		}
		prf.Tracef("smoothing system ill-conditioned (lambda %g): %v", lambda, err)
	}

	sol := smoothingSolution{lambda: lambda, coef: make([]float64, n)}
	for i := 0; i < n; i++ {
		c := x.AtVec(i)
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return smoothingSolution{}, fmt.Errorf("%w: non-finite smoothing coefficient", prf.ErrNumericDegeneracy)
		}
		sol.coef[i] = c
		// residual_i = lambda * err_i^2 * c_i, weighted by 1/err_i
		r := lambda * sys.err2[i] * c
		sol.residual += r * r / sys.err2[i]
	}
	sol.affine = [3]float64{x.AtVec(n), x.AtVec(n + 1), x.AtVec(n + 2)}
	return sol, nil
}

// fitGrid matches the residual target on a weighted bicubic grid, with
// lambda = 10^mu times the sample weight per coefficient. A mu whose
// system cannot be solved is treated as too rough.
func (m SmoothingMethod) fitGrid(samples []prf.Sample, domain prf.Domain) (Spline, error) {
	nx, ny := m.nodes()
	sys, err := newGridSystem(samples, domain, nx, ny, true)
	if err != nil {
		return nil, err
	}
	base := sys.density()
	try := func(mu float64) (*GridSpline, error) {
		lambda := math.Pow(10, mu) * base
		coef, residual, err := sys.solve(lambda)
		if err != nil {
			return nil, err
		}
		return sys.spline(coef, lambda, residual), nil
	}

	target := m.Factor * float64(len(samples))
	hi, err := try(maxLogMu)
	if err != nil {
		return nil, err
	}
	if hi.residual <= target {
		return hi, nil
	}

	var under, over *GridSpline
	loMu, hiMu := minLogMu, maxLogMu
	if lo, err := try(minLogMu); err == nil {
		if lo.residual >= target {
			return lo, nil
		}
		under = lo
	} else {
		prf.Tracef("grid smoothing at lambda floor: %v", err)
	}
	for step := 0; step < smoothingSteps; step++ {
		mid := (loMu + hiMu) / 2
		sol, err := try(mid)
		switch {
		case err != nil:
			loMu = mid
		case sol.residual <= target:
			under, loMu = sol, mid
		default:
			over, hiMu = sol, mid
		}
	}
	switch {
	case under != nil:
		return under, nil
	case over != nil:
		return over, nil
	}
	return hi, nil
}
