// Package performance derives return metrics and historical value series from
// assembled positions.
package performance

import (
	"math"
	"time"
)

const (
	xirrMaxIterations = 100
	xirrTolerance     = 1e-7
	xirrMinRate       = -0.999
)

// cashFlow is one dated base-currency flow: negative for money in (buys),
// positive for money out (sells, terminal value).
type cashFlow struct {
	date   time.Time
	amount float64
}

// xirr solves for the annualised money-weighted return of irregular cash
// flows, as a decimal (0.10 = 10%). Returns ok=false when the flows are
// underdetermined (fewer than two, or no sign change) or no root is found.
func xirr(flows []cashFlow) (float64, bool) {
	if len(flows) < 2 {
		return 0, false
	}

	var hasNegative, hasPositive bool
	for _, f := range flows {
		if f.amount < 0 {
			hasNegative = true
		}
		if f.amount > 0 {
			hasPositive = true
		}
	}
	if !hasNegative || !hasPositive {
		return 0, false
	}

	t0 := flows[0].date
	for _, f := range flows[1:] {
		if f.date.Before(t0) {
			t0 = f.date
		}
	}

	rate := initialGuess(flows)
	for i := 0; i < xirrMaxIterations; i++ {
		npv, dnpv := npvAndDerivative(flows, t0, rate)
		if math.Abs(npv) < xirrTolerance {
			return rate, true
		}
		if dnpv == 0 || math.IsNaN(dnpv) {
			break
		}
		next := rate - npv/dnpv
		if next <= xirrMinRate {
			next = (rate + xirrMinRate) / 2
		}
		if math.Abs(next-rate) < xirrTolerance {
			return next, true
		}
		rate = next
	}

	return bisectXIRR(flows, t0)
}

// initialGuess seeds Newton's method from the simple (non-annualised) return.
func initialGuess(flows []cashFlow) float64 {
	var in, out float64
	for _, f := range flows {
		if f.amount < 0 {
			in -= f.amount
		} else {
			out += f.amount
		}
	}
	if in == 0 {
		return 0.1
	}
	guess := out/in - 1
	if guess <= xirrMinRate {
		return 0.1
	}
	return guess
}

func npvAndDerivative(flows []cashFlow, t0 time.Time, rate float64) (float64, float64) {
	var npv, dnpv float64
	for _, f := range flows {
		years := f.date.Sub(t0).Hours() / 24 / 365.0
		factor := math.Pow(1+rate, years)
		npv += f.amount / factor
		dnpv -= years * f.amount / (factor * (1 + rate))
	}
	return npv, dnpv
}

// bisectXIRR is the fallback when Newton fails to converge. Slower but robust
// as long as NPV changes sign inside the bracket.
func bisectXIRR(flows []cashFlow, t0 time.Time) (float64, bool) {
	lo, hi := -0.99, 10.0
	npvAt := func(rate float64) float64 {
		npv, _ := npvAndDerivative(flows, t0, rate)
		return npv
	}

	fLo, fHi := npvAt(lo), npvAt(hi)
	if fLo*fHi > 0 {
		return 0, false
	}

	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		fMid := npvAt(mid)
		if math.Abs(fMid) < xirrTolerance || (hi-lo)/2 < xirrTolerance {
			return mid, true
		}
		if fLo*fMid < 0 {
			hi = mid
		} else {
			lo, fLo = mid, fMid
		}
	}
	return (lo + hi) / 2, true
}
