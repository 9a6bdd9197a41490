package qla

import (
	"fmt"
	"math"
)

// LiMa returns the Li & Ma (1983, eq. 17) significance of nOn on-region
// counts against nOff off-region counts for the exposure ratio alpha.
// Undefined results (empty counts, logarithms of zero, a negative
// likelihood ratio) are reported as 0, and so is any deficit
// (nOn < alpha*nOff).
func LiMa(nOn, nOff, alpha float64) float64 {
	if nOn < alpha*nOff {
		return 0
	}

	total := nOn + nOff
	pOn := nOn / total
	pOff := nOff / total

	t1 := nOn * math.Log((1+alpha)/alpha*pOn)
	t2 := nOff * math.Log((1+alpha)*pOff)

	s := math.Sqrt(2 * (t1 + t2))
	if !isFinite(s) {
		return 0
	}

	return s
}

// LiMaSignificance applies LiMa element-wise.
func LiMaSignificance(nOn, nOff []float64, alpha float64) []float64 {
	if len(nOn) != len(nOff) {
		panic(fmt.Sprintf("qla: %d on counts but %d off counts", len(nOn), len(nOff)))
	}

	out := make([]float64, len(nOn))
	for i := range nOn {
		out[i] = LiMa(nOn[i], nOff[i], alpha)
	}

	return out
}
