package qla

import (
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnalyzer(t *testing.T, p Params) *Analyzer {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	a, err := NewAnalyzer(log, p)
	require.NoError(t, err)

	return a
}

// nightRuns is a night with two observation blocks: six Crab runs (one full
// bin, one underfilled trailing bin) followed by five Mrk 501 runs.
func nightRuns() []Run {
	sources := append(repeat("Crab", 6), repeat("Mrk 501", 5)...)

	return makeRuns(300, sources...)
}

func TestAnalyzer_Analyze(t *testing.T) {
	a := newTestAnalyzer(t, DefaultParams())

	result := a.Analyze(nightRuns())
	require.False(t, result.Empty())
	require.Len(t, result.Bins, 2)

	crab, mrk := result.Bins[0], result.Bins[1]

	assert.Equal(t, "Crab", crab.Source)
	assert.Equal(t, 0, crab.Block)
	assert.Equal(t, 4, crab.Runs)
	assert.Equal(t, "Mrk 501", mrk.Source)
	assert.Equal(t, 1, mrk.Block)
	assert.Equal(t, 4, mrk.Runs)
	assert.True(t, crab.Stop.Before(mrk.Start) || crab.Stop.Equal(mrk.Start))

	// N_on = 120, N_off = 80 * 5.
	assert.InDelta(t, 3.7506279428225895, crab.Significance, 1e-9)
	assert.InDelta(t, 3.7506279428225895, mrk.Significance, 1e-9)

	assert.Equal(t, []string{"Crab", "Mrk 501"}, result.Sources())
	assert.Equal(t, DefaultParams(), result.Params)
}

func TestAnalyzer_EmptyInputSkipsSignificance(t *testing.T) {
	a := newTestAnalyzer(t, DefaultParams())
	a.significance = func(_, _ []float64, _ float64) []float64 {
		t.Fatal("significance must not be computed without data")

		return nil
	}

	t.Run("no runs", func(t *testing.T) {
		result := a.Analyze(nil)
		assert.True(t, result.Empty())
		assert.Empty(t, result.Alerts())
	})

	t.Run("every bin discarded", func(t *testing.T) {
		result := a.Analyze(makeRuns(500, "Crab"))
		assert.True(t, result.Empty())
	})
}

func TestAnalyzer_SignificanceCalledOnceOnWholeTable(t *testing.T) {
	a := newTestAnalyzer(t, DefaultParams())

	var calls, rows int

	a.significance = func(nOn, nOff []float64, alpha float64) []float64 {
		calls++
		rows = len(nOn)

		assert.Equal(t, []float64{120, 120}, nOn)
		assert.Equal(t, []float64{400, 400}, nOff)
		assert.Equal(t, DefaultAlpha, alpha)

		return LiMaSignificance(nOn, nOff, alpha)
	}

	a.Analyze(nightRuns())

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, rows)
}

func TestAnalyzer_OffRegionFollowsAlpha(t *testing.T) {
	p := DefaultParams()
	p.Alpha = 0.5

	a := newTestAnalyzer(t, p)
	a.significance = func(nOn, nOff []float64, alpha float64) []float64 {
		assert.Equal(t, []float64{160, 160}, nOff)
		assert.Equal(t, 0.5, alpha)

		return make([]float64, len(nOn))
	}

	a.Analyze(nightRuns())
}

func TestAnalyzer_Idempotent(t *testing.T) {
	a := newTestAnalyzer(t, DefaultParams())
	runs := nightRuns()

	first := a.Analyze(runs)
	second := a.Analyze(runs)
	assert.Equal(t, first, second)

	shuffled := make([]Run, len(runs))
	copy(shuffled, runs)
	rand.New(rand.NewSource(3)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	assert.Equal(t, first, a.Analyze(shuffled))
}

func TestNewAnalyzer_InvalidParams(t *testing.T) {
	p := DefaultParams()
	p.BinWidthMinutes = 0

	_, err := NewAnalyzer(logrus.New(), p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidParams))

	_, err = Analyze(nil, p)
	assert.True(t, errors.Is(err, ErrInvalidParams))
}

func TestResult_Alerts(t *testing.T) {
	result := &Result{
		Params: Params{AlertThreshold: 5},
		Bins: []Bin{
			{Source: "Crab", Significance: 2},
			{Source: "Mrk 421", Significance: 5},
			{Source: "Mrk 421", Significance: 7.5},
		},
	}

	alerts := result.Alerts()
	require.Len(t, alerts, 2)

	assert.Equal(t, 1, alerts[0].Index)
	assert.Equal(t, "Mrk 421", alerts[0].Bin.Source)
	assert.InDelta(t, 2.866515718791939e-07, alerts[0].PValue, 1e-12)
	assert.Equal(t, 2, alerts[1].Index)
	assert.Less(t, alerts[1].PValue, alerts[0].PValue)

	assert.Equal(t, map[string]float64{"Crab": 2, "Mrk 421": 7.5},
		result.MaxSignificanceBySource())
}

func TestAnalyze_Convenience(t *testing.T) {
	result, err := Analyze(nightRuns(), DefaultParams())
	require.NoError(t, err)
	assert.Len(t, result.Bins, 2)
}
