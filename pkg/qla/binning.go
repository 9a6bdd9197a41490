package qla

// AssignBins assigns a bin index to every run of a start-sorted block using
// the online greedy binning: a run opens a new bin when adding its live time
// to the current bin would exceed binWidthMinutes. The check uses the
// prospective sum, so the run that trips the threshold belongs to the new
// bin.
func AssignBins(runs []Run, binWidthMinutes float64) []int {
	threshold := binWidthMinutes * 60
	bins := make([]int, len(runs))

	var (
		bin       int
		onTimeSum float64
	)

	for i := range runs {
		if onTimeSum+runs[i].OnTimeAfterCuts > threshold {
			bin++
			onTimeSum = 0
		}

		bins[i] = bin
		onTimeSum += runs[i].OnTimeAfterCuts
	}

	return bins
}
