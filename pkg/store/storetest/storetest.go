// Package storetest provides a file-backed sqlite store seeded with a
// small observation night for tests.
package storetest

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/fact-project/nightsummary/pkg/config"
	"github.com/fact-project/nightsummary/pkg/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// Night is the night seeded by NightDataset.
const Night int64 = 20240314

// NightStart is the start of the first run of Night.
var NightStart = time.Date(2024, 3, 14, 20, 0, 0, 0, time.UTC)

// Source and run type keys of the dataset.
const (
	CrabKey   int64 = 1
	Mrk501Key int64 = 2
	DataKey   int64 = 1
	DRSKey    int64 = 2
)

// NewStore returns a started sqlite store with the schema created. It is
// stopped when the test ends.
func NewStore(t *testing.T) store.Store {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver:      "sqlite",
		AutoMigrate: true,
		SQLite: config.SQLiteDatabaseConfig{
			Path: filepath.Join(t.TempDir(), "fact.db"),
		},
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	s := store.NewStore(log, cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

// NewSeededStore returns NewStore with NightDataset imported.
func NewSeededStore(t *testing.T) store.Store {
	t.Helper()

	s := NewStore(t)
	require.NoError(t, s.Import(context.Background(), NightDataset()))

	return s
}

// NightDataset describes Night:
//
//   - runs 1-6: Crab, 300 s live time each
//   - runs 7-11: Mrk 501, 300 s live time each
//   - run 12: DRS calibration run without source
//   - run 13: Mrk 501, QLA not finished (NULL counts)
//   - run 14: Mrk 501, still running (no stop time, no QLA)
//   - QLA result for run 99 without run information
//
// Every run lasts five minutes, back to back from NightStart. The QLA of
// the night yields one full Crab bin and one full Mrk 501 bin.
func NightDataset() *store.Dataset {
	d := &store.Dataset{
		Sources: []store.SourceRecord{
			{SourceKey: CrabKey, SourceName: "Crab"},
			{SourceKey: Mrk501Key, SourceName: "Mrk 501"},
		},
		RunTypes: []store.RunTypeRecord{
			{RunTypeKey: DataKey, RunTypeName: "data"},
			{RunTypeKey: DRSKey, RunTypeName: "drs-time"},
		},
	}

	for id := int64(1); id <= 14; id++ {
		start := NightStart.Add(time.Duration(id-1) * 5 * time.Minute)
		stop := start.Add(5 * time.Minute)

		run := store.RunRecord{
			Night:      Night,
			RunID:      id,
			RunTypeKey: ptr(DataKey),
			OnTime:     ptr(300.0),
			RunStart:   &start,
			RunStop:    &stop,
		}

		switch {
		case id <= 6:
			run.SourceKey = ptr(CrabKey)
		case id == 12:
			run.RunTypeKey = ptr(DRSKey)
			run.OnTime = ptr(60.0)
		default:
			run.SourceKey = ptr(Mrk501Key)
		}

		if id == 14 {
			run.RunStop = nil
			run.OnTime = nil
		}

		d.Runs = append(d.Runs, run)

		switch {
		case id <= 11:
			d.Results = append(d.Results, store.QLARecord{
				Night:           Night,
				RunID:           id,
				NumExcEvts:      ptr(25.0),
				NumSigEvts:      ptr(30.0),
				NumBgEvts:       ptr(20.0),
				OnTimeAfterCuts: ptr(300.0),
			})
		case id == 13:
			d.Results = append(d.Results, store.QLARecord{
				Night: Night,
				RunID: id,
			})
		}
	}

	d.Results = append(d.Results, store.QLARecord{
		Night:           Night,
		RunID:           99,
		NumExcEvts:      ptr(1.0),
		NumSigEvts:      ptr(1.0),
		NumBgEvts:       ptr(1.0),
		OnTimeAfterCuts: ptr(300.0),
	})

	return d
}

func ptr[T any](v T) *T {
	return &v
}
