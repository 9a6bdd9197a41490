package qla

import (
	"fmt"
	"math"
)

// AggregateBins sums live time and event counts of the runs sharing a bin
// index and derives rate, time midpoint and uncertainties. The last bin is
// dropped when its live time is below p.RetentionFraction of the target bin
// width. runs must be start-sorted and bins must be the output of
// AssignBins for the same runs.
func AggregateBins(runs []Run, bins []int, p Params) []Bin {
	if len(runs) != len(bins) {
		panic(fmt.Sprintf("qla: %d runs but %d bin indices", len(runs), len(bins)))
	}

	out := make([]Bin, 0, len(runs))

	for start := 0; start < len(runs); {
		end := start + 1
		for end < len(runs) && bins[end] == bins[start] {
			end++
		}

		out = append(out, aggregate(runs[start:end], p.Alpha))
		start = end
	}

	if n := len(out); n > 0 &&
		out[n-1].OnTimeAfterCuts < p.RetentionFraction*p.Threshold() {
		out = out[:n-1]
	}

	return out
}

// aggregate builds one bin from its member runs, summing in run order.
func aggregate(members []Run, alpha float64) Bin {
	first := &members[0]

	b := Bin{
		Runs:   len(members),
		Source: first.Source,
		Start:  first.Start,
		Stop:   first.Stop,
	}

	for i := range members {
		r := &members[i]

		b.OnTimeAfterCuts += r.OnTimeAfterCuts
		b.ExcessEvents += r.ExcessEvents
		b.SignalEvents += r.SignalEvents
		b.BackgroundEvents += r.BackgroundEvents

		if r.Start.Before(b.Start) {
			b.Start = r.Start
		}

		if r.Stop.After(b.Stop) {
			b.Stop = r.Stop
		}
	}

	b.Rate = b.ExcessEvents / b.OnTimeAfterCuts * secondsPerHour
	b.HalfWidth = b.Stop.Sub(b.Start) / 2
	b.TimeMean = b.Start.Add(b.HalfWidth)

	// sqrt(N_on + alpha^2 * N_off) with N_off = background / alpha.
	b.RateUncertainty = math.Sqrt(b.SignalEvents+alpha*b.BackgroundEvents) /
		(b.OnTimeAfterCuts / secondsPerHour)

	return b
}
