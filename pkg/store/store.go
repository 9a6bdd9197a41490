package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/fact-project/nightsummary/pkg/config"
	"github.com/fact-project/nightsummary/pkg/qla"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrUnsupportedDriver is returned for an unknown database driver.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Store reads runs and QLA results of the observatory database.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// ListRuns returns all runs of a night that have a start and stop
	// time, ordered by start.
	ListRuns(ctx context.Context, night int64) ([]RunInfo, error)

	// ListQLARuns returns the complete QLA results of a night joined with
	// their run information. Rows with any NULL field are dropped.
	ListQLARuns(ctx context.Context, night int64) ([]qla.Run, error)

	// ListNights returns the most recent nights with QLA results, newest
	// first. A limit <= 0 returns all nights.
	ListNights(ctx context.Context, limit int) ([]int64, error)

	// Import upserts the rows of d.
	Import(ctx context.Context, d *Dataset) error
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and, if configured, creates the
// schema.
func (s *store) Start(ctx context.Context) error {
	dialector, err := s.dialector()
	if err != nil {
		return err
	}

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	s.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if s.cfg.AutoMigrate {
		if err := s.db.WithContext(ctx).AutoMigrate(
			&SourceRecord{},
			&RunTypeRecord{},
			&RunRecord{},
			&QLARecord{},
		); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

func (s *store) dialector() (gorm.Dialector, error) {
	switch s.cfg.Driver {
	case "mysql":
		dsn := fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?%s",
			s.cfg.MySQL.User,
			s.cfg.MySQL.Password,
			s.cfg.MySQL.Host,
			s.cfg.MySQL.Port,
			s.cfg.MySQL.Database,
			s.cfg.MySQL.Params,
		)

		return mysql.Open(dsn), nil
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)

		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(s.cfg.SQLite.Path), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, s.cfg.Driver)
	}
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

func (s *store) ListRuns(ctx context.Context, night int64) ([]RunInfo, error) {
	var rows []runInfoRow

	if err := s.db.WithContext(ctx).
		Table("RunInfo").
		Select(
			"RunInfo.fNight AS night, "+
				"RunInfo.fRunID AS run_id, "+
				"Source.fSourceName AS source_name, "+
				"RunType.fRunTypeName AS run_type_name, "+
				"RunInfo.fOnTime AS on_time, "+
				"RunInfo.fRunStart AS run_start, "+
				"RunInfo.fRunStop AS run_stop",
		).
		Joins("LEFT JOIN Source ON RunInfo.fSourceKEY = Source.fSourceKEY").
		Joins("LEFT JOIN RunType ON RunInfo.fRunTypeKEY = RunType.fRunTypeKEY").
		Where("RunInfo.fNight = ?", night).
		Order("RunInfo.fRunStart ASC, RunInfo.fRunID ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing runs of night %d: %w", night, err)
	}

	runs := make([]RunInfo, 0, len(rows))

	for _, row := range rows {
		// Runs without start or stop are still being taken.
		if row.RunStart == nil || row.RunStop == nil {
			continue
		}

		run := RunInfo{
			Night:  row.Night,
			RunID:  row.RunID,
			Source: row.SourceName,
			Start:  row.RunStart.UTC(),
			Stop:   row.RunStop.UTC(),
		}

		if row.RunTypeName != nil {
			run.RunType = *row.RunTypeName
		}

		if row.OnTime != nil {
			run.OnTime = *row.OnTime
		}

		runs = append(runs, run)
	}

	return runs, nil
}

func (s *store) ListQLARuns(ctx context.Context, night int64) ([]qla.Run, error) {
	var rows []qlaRow

	if err := s.db.WithContext(ctx).
		Table("AnalysisResultsRunLP AS QLA").
		Select(
			"QLA.fRunID AS run_id, "+
				"QLA.fNight AS night, "+
				"QLA.fNumExcEvts AS excess_events, "+
				"QLA.fNumSigEvts AS signal_events, "+
				"QLA.fNumBgEvts AS background_events, "+
				"QLA.fOnTimeAfterCuts AS on_time_after_cuts, "+
				"RunInfo.fRunStart AS run_start, "+
				"RunInfo.fRunStop AS run_stop, "+
				"Source.fSourceName AS source_name",
		).
		Joins("LEFT JOIN RunInfo ON QLA.fRunID = RunInfo.fRunID AND QLA.fNight = RunInfo.fNight").
		Joins("LEFT JOIN Source ON RunInfo.fSourceKEY = Source.fSourceKEY").
		Where("QLA.fNight = ?", night).
		Order("QLA.fRunID ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing qla results of night %d: %w", night, err)
	}

	runs := make([]qla.Run, 0, len(rows))

	for _, row := range rows {
		run, ok := row.toRun()
		if !ok {
			continue
		}

		runs = append(runs, run)
	}

	if dropped := len(rows) - len(runs); dropped > 0 {
		s.log.WithFields(logrus.Fields{
			"night":   night,
			"dropped": dropped,
		}).Debug("Dropped unfinished QLA results")
	}

	return runs, nil
}

// toRun converts a complete row. It reports false if any field is NULL.
func (r *qlaRow) toRun() (qla.Run, bool) {
	if r.RunID == nil || r.Night == nil || r.SourceName == nil ||
		r.RunStart == nil || r.RunStop == nil ||
		r.OnTimeAfterCuts == nil || r.ExcessEvents == nil ||
		r.SignalEvents == nil || r.BackgroundEvts == nil {
		return qla.Run{}, false
	}

	return qla.Run{
		RunID:            *r.RunID,
		Night:            *r.Night,
		Source:           *r.SourceName,
		Start:            r.RunStart.UTC(),
		Stop:             r.RunStop.UTC(),
		OnTimeAfterCuts:  *r.OnTimeAfterCuts,
		ExcessEvents:     *r.ExcessEvents,
		SignalEvents:     *r.SignalEvents,
		BackgroundEvents: *r.BackgroundEvts,
	}, true
}

func (s *store) ListNights(ctx context.Context, limit int) ([]int64, error) {
	var nights []int64

	query := s.db.WithContext(ctx).
		Model(&QLARecord{}).
		Distinct("fNight").
		Order("fNight DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Pluck("fNight", &nights).Error; err != nil {
		return nil, fmt.Errorf("listing nights: %w", err)
	}

	return nights, nil
}

func (s *store) Import(ctx context.Context, d *Dataset) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := func(what string, n int, rows any) error {
			if n == 0 {
				return nil
			}

			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).
				Create(rows).Error; err != nil {
				return fmt.Errorf("importing %s: %w", what, err)
			}

			return nil
		}

		if err := upsert("sources", len(d.Sources), &d.Sources); err != nil {
			return err
		}

		if err := upsert("run types", len(d.RunTypes), &d.RunTypes); err != nil {
			return err
		}

		if err := upsert("runs", len(d.Runs), &d.Runs); err != nil {
			return err
		}

		return upsert("qla results", len(d.Results), &d.Results)
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"sources": len(d.Sources),
		"runs":    len(d.Runs),
		"results": len(d.Results),
	}).Info("Imported dataset")

	return nil
}
