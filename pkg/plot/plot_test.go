package plot

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fact-project/nightsummary/pkg/qla"
	"github.com/fact-project/nightsummary/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/plotutil"
)

var nightStart = time.Date(2024, 3, 14, 20, 0, 0, 0, time.UTC)

func assertSVG(t *testing.T, path string) {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "<svg"), "expected svg output")
}

func TestPalette(t *testing.T) {
	p := NewPalette()

	crab := p.Color("Crab")
	mrk := p.Color("Mrk 501")

	assert.Equal(t, plotutil.Color(0), crab)
	assert.Equal(t, plotutil.Color(1), mrk)
	assert.Equal(t, crab, p.Color("Crab"))
	assert.Equal(t, noSourceColor, p.Color(""))
	assert.Equal(t, []string{"Crab", "Mrk 501"}, p.Sources())
}

func TestRunTimeline(t *testing.T) {
	crab := "Crab"
	runs := []store.RunInfo{
		{RunID: 1, Source: &crab, Start: nightStart, Stop: nightStart.Add(5 * time.Minute)},
		{RunID: 2, Start: nightStart.Add(5 * time.Minute), Stop: nightStart.Add(6 * time.Minute)},
	}

	path := filepath.Join(t.TempDir(), "timeline.svg")
	require.NoError(t, RunTimeline(path, 20240314, runs))
	assertSVG(t, path)

	err := RunTimeline(path, 20240314, nil)
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestOnTimeBars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.svg")
	require.NoError(t, OnTimeBars(path, "On-time by source",
		[]string{"Crab", "Mrk 501"}, []float64{1.5, 0.5}))
	assertSVG(t, path)

	assert.True(t, errors.Is(OnTimeBars(path, "empty", nil, nil), ErrNoData))
	assert.Error(t, OnTimeBars(path, "mismatch", []string{"Crab"}, nil))
}

func TestLightCurve(t *testing.T) {
	bin := func(source string, offset time.Duration, rate float64) qla.Bin {
		start := nightStart.Add(offset)

		return qla.Bin{
			Source:          source,
			Start:           start,
			Stop:            start.Add(20 * time.Minute),
			TimeMean:        start.Add(10 * time.Minute),
			HalfWidth:       10 * time.Minute,
			Rate:            rate,
			RateUncertainty: 30,
		}
	}

	result := &qla.Result{
		Params: qla.DefaultParams(),
		Bins: []qla.Bin{
			bin("Crab", 0, 300),
			bin("Crab", 20*time.Minute, 280),
			bin("Mrk 501", 40*time.Minute, math.Inf(1)),
			bin("Mrk 501", 60*time.Minute, 120),
		},
	}

	path := filepath.Join(t.TempDir(), "lightcurve.svg")
	require.NoError(t, LightCurve(path, 20240314, result))
	assertSVG(t, path)

	t.Run("no data", func(t *testing.T) {
		assert.True(t, errors.Is(LightCurve(path, 20240314, nil), ErrNoData))
		assert.True(t, errors.Is(LightCurve(path, 20240314, &qla.Result{}), ErrNoData))
	})

	t.Run("only non-finite rates", func(t *testing.T) {
		r := &qla.Result{Bins: []qla.Bin{bin("Crab", 0, math.NaN())}}
		assert.True(t, errors.Is(LightCurve(path, 20240314, r), ErrNoData))
	})
}
