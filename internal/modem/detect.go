package modem

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// tieTolerance is how much a later candidate must beat the incumbent by to
// replace it. Near-ties therefore resolve to the earliest phase.
const tieTolerance = 1e-12

// detector estimates the complex symbol carried by one window of samples.
// ok is false when the window has no energy or is not finite, and the
// fallback phase was used.
type detector func(window []float64) (z complex128, ok bool)

// fallback is the estimate used for degenerate windows: the first nominal phase.
func (t *symbolTable) fallback() complex128 {
	return cmplx.Rect(1, t.alphabet.phases[0])
}

// arcCosine measures the phase of a window against the in-phase reference
// through the normalised dot product. Used for BPSK.
func (t *symbolTable) arcCosine(reference []float64) detector {
	refNorm := floats.Norm(reference, 2)
	return func(window []float64) (complex128, bool) {
		norm := floats.Norm(window, 2)
		if !finitePositive(norm) || !finitePositive(refNorm) {
			return t.fallback(), false
		}
		c := floats.Dot(reference, window) / (norm * refNorm)
		if math.IsNaN(c) {
			return t.fallback(), false
		}
		c = math.Max(-1, math.Min(1, c))
		return cmplx.Rect(1, math.Acos(c)), true
	}
}

// maxCorrelation picks the constellation phase whose carrier has the highest
// Pearson coefficient with the window.
func (t *symbolTable) maxCorrelation() detector {
	return func(window []float64) (complex128, bool) {
		best := -1
		bestR := math.Inf(-1)
		for k, ref := range t.carriers {
			r := stat.Correlation(window, ref, nil)
			if math.IsNaN(r) {
				return t.fallback(), false
			}
			if best < 0 || r > bestR+tieTolerance {
				best, bestR = k, r
			}
		}
		return cmplx.Rect(1, t.alphabet.phases[best]), true
	}
}

func finitePositive(x float64) bool {
	return x > 0 && !math.IsInf(x, 1)
}
