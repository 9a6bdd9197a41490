package qla

import "sort"

// SortRuns returns a copy of runs ordered by start time. Runs starting at
// the same instant are ordered by night and run id, and finally by their
// input position.
func SortRuns(runs []Run) []Run {
	sorted := make([]Run, len(runs))
	copy(sorted, runs)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := &sorted[i], &sorted[j]

		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}

		if a.Night != b.Night {
			return a.Night < b.Night
		}

		return a.RunID < b.RunID
	})

	return sorted
}

// GroupObservationBlocks splits runs into observation blocks: maximal
// sequences of consecutive runs (by start time) on the same source.
func GroupObservationBlocks(runs []Run) []Block {
	if len(runs) == 0 {
		return nil
	}

	sorted := SortRuns(runs)

	// nextIsDifferent[i] marks a block boundary after run i. The last run
	// has no successor and never opens a boundary.
	nextIsDifferent := make([]bool, len(sorted))
	for i := 0; i < len(sorted)-1; i++ {
		nextIsDifferent[i] = sorted[i].Source != sorted[i+1].Source
	}

	blocks := make([]Block, 0, 4)
	current := Block{ID: 0}

	for i := range sorted {
		current.Runs = append(current.Runs, sorted[i])

		if nextIsDifferent[i] {
			blocks = append(blocks, current)
			current = Block{ID: current.ID + 1}
		}
	}

	blocks = append(blocks, current)

	return blocks
}
