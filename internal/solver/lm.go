package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var errNoConvergence = errors.New("levenberg-marquardt: no acceptable step")

// residualFunc writes the residual vector for params into out.
type residualFunc func(params, out []float64) error

// jacobianFunc fills jac (m x n) at params; r holds the residuals at params.
type jacobianFunc func(params, r []float64, jac *mat.Dense) error

// lmSettings bounds a Levenberg–Marquardt run.
type lmSettings struct {
	MaxIterations int
	// FunctionTolerance stops when an accepted step reduces the cost by less
	// than this fraction.
	FunctionTolerance float64
	// StepTolerance stops when ||step|| < StepTolerance * (||params|| + StepTolerance).
	StepTolerance  float64
	InitialDamping float64
}

func defaultLMSettings() lmSettings {
	return lmSettings{
		MaxIterations:     100,
		FunctionTolerance: 1e-14,
		StepTolerance:     1e-14,
		InitialDamping:    1e-3,
	}
}

// lmResult summarises a finished run.
type lmResult struct {
	Params     []float64
	Cost       float64 // sum of squared residuals
	Iterations int
}

// levenbergMarquardt minimises ||r(params)||² starting from params0. When jac
// is nil a central-difference Jacobian over every parameter is used.
func levenbergMarquardt(ctx context.Context, m int, params0 []float64, res residualFunc, jac jacobianFunc, s lmSettings) (lmResult, error) {
	n := len(params0)
	if m < n {
		return lmResult{}, fmt.Errorf("levenberg-marquardt: %d residuals for %d parameters", m, n)
	}
	if jac == nil {
		jac = numericJacobian(res, m)
	}

	params := append([]float64(nil), params0...)
	r := make([]float64, m)
	if err := res(params, r); err != nil {
		return lmResult{}, fmt.Errorf("levenberg-marquardt: initial residuals: %w", err)
	}
	cost := floats.Dot(r, r)

	J := mat.NewDense(m, n, nil)
	trial := make([]float64, n)
	trialR := make([]float64, m)
	step := mat.NewVecDense(n, nil)
	mu := s.InitialDamping

	iter := 0
	for ; iter < s.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return lmResult{}, err
		}
		if cost == 0 {
			break
		}
		if err := jac(params, r, J); err != nil {
			return lmResult{}, fmt.Errorf("levenberg-marquardt: jacobian: %w", err)
		}

		var jtj mat.SymDense
		jtj.SymOuterK(1, J.T())
		var g mat.VecDense
		g.MulVec(J.T(), mat.NewVecDense(m, r))

		accepted := false
		converged := false
		for !accepted {
			a := mat.NewSymDense(n, nil)
			a.CopySym(&jtj)
			for j := 0; j < n; j++ {
				d := jtj.At(j, j)
				a.SetSym(j, j, d+mu*math.Max(d, 1e-12))
			}

			var chol mat.Cholesky
			if !chol.Factorize(a) {
				mu *= 10
				if mu > 1e20 {
					return lmResult{}, errNoConvergence
				}
				continue
			}
			if err := chol.SolveVecTo(step, &g); err != nil {
				var cond mat.Condition
				if !errors.As(err, &cond) {
					return lmResult{}, fmt.Errorf("levenberg-marquardt: solve: %w", err)
				}
				// Ill-conditioned but solved; damping grows if the step is poor.
			}
			step.ScaleVec(-1, step)

			stepNorm := mat.Norm(step, 2)
			if stepNorm < s.StepTolerance*(floats.Norm(params, 2)+s.StepTolerance) {
				converged = true
				break
			}

			for j := range trial {
				trial[j] = params[j] + step.AtVec(j)
			}
			trialCost := math.Inf(1)
			if err := res(trial, trialR); err == nil {
				trialCost = floats.Dot(trialR, trialR)
			}

			if trialCost < cost {
				reduction := (cost - trialCost) / cost
				copy(params, trial)
				copy(r, trialR)
				cost = trialCost
				mu = math.Max(mu/10, 1e-15)
				accepted = true
				if reduction < s.FunctionTolerance {
					converged = true
				}
			} else {
				mu *= 10
				if mu > 1e20 {
					// No step improves the cost: we are at a minimum to
					// working precision.
					converged = true
					break
				}
			}
		}
		if converged {
			iter++
			break
		}
	}

	return lmResult{Params: params, Cost: cost, Iterations: iter}, nil
}

// numericJacobian returns a central-difference Jacobian over all parameters.
func numericJacobian(res residualFunc, m int) jacobianFunc {
	plus := make([]float64, m)
	minus := make([]float64, m)
	return func(params, _ []float64, jac *mat.Dense) error {
		p := append([]float64(nil), params...)
		for j := range p {
			h := finiteStep(p[j])
			orig := p[j]
			p[j] = orig + h
			if err := res(p, plus); err != nil {
				return err
			}
			p[j] = orig - h
			if err := res(p, minus); err != nil {
				return err
			}
			p[j] = orig
			for i := 0; i < m; i++ {
				jac.Set(i, j, (plus[i]-minus[i])/(2*h))
			}
		}
		return nil
	}
}

// finiteStep picks a central-difference step relative to the parameter scale.
func finiteStep(v float64) float64 {
	return 1e-6 * math.Max(1, math.Abs(v))
}
