package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrExperimentNotFound = errors.New("experiment not found")

type ExperimentType string

const (
	TypeBatch       ExperimentType = "BATCH"
	TypeIncremental ExperimentType = "INCREMENTAL"
)

type ExperimentStatus string

const (
	StatusRunning  ExperimentStatus = "RUNNING"
	StatusFinished ExperimentStatus = "FINISHED"
	StatusFailed   ExperimentStatus = "FAILED"
)

// Experiment is one recorded comparison run and where its results live.
type Experiment struct {
	ID          string
	Name        string
	Type        ExperimentType
	Status      ExperimentStatus
	Datasets    []string
	Classifiers []string
	Metrics     []string
	Path        string
	Error       string
	CreatedAt   time.Time
	FinishedAt  *time.Time
}

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Registry keeps the experiment history in a sqlite database.
type Registry struct {
	db *sql.DB
}

func OpenRegistry(path string) (*Registry, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	r := &Registry{db: db}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return r, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

func (r *Registry) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS experiments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		datasets TEXT NOT NULL,
		classifiers TEXT NOT NULL,
		metrics TEXT NOT NULL,
		path TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_experiments_created_at ON experiments(created_at);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Create records a new running experiment and returns it with its ID and
// creation time set.
func (r *Registry) Create(ctx context.Context, e Experiment) (Experiment, error) {
	e.ID = uuid.NewString()
	e.Status = StatusRunning
	e.CreatedAt = time.Now().UTC()
	e.FinishedAt = nil

	datasets, err := json.Marshal(nonNil(e.Datasets))
	if err != nil {
		return Experiment{}, err
	}
	classifiers, err := json.Marshal(nonNil(e.Classifiers))
	if err != nil {
		return Experiment{}, err
	}
	metrics, err := json.Marshal(nonNil(e.Metrics))
	if err != nil {
		return Experiment{}, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO experiments (id, name, type, status, datasets, classifiers, metrics, path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, string(e.Type), string(e.Status),
		string(datasets), string(classifiers), string(metrics),
		e.Path, e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Experiment{}, fmt.Errorf("failed to insert experiment: %w", err)
	}
	return e, nil
}

// Finish marks an experiment FINISHED, or FAILED with the error text when
// runErr is not nil.
func (r *Registry) Finish(ctx context.Context, id string, runErr error) error {
	status, message := StatusFinished, ""
	if runErr != nil {
		status, message = StatusFailed, runErr.Error()
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE experiments SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), message, time.Now().UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update experiment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrExperimentNotFound, id)
	}
	return nil
}

const selectExperiments = `
	SELECT id, name, type, status, datasets, classifiers, metrics, path, error, created_at, finished_at
	FROM experiments`

func (r *Registry) Get(ctx context.Context, id string) (Experiment, error) {
	row := r.db.QueryRowContext(ctx, selectExperiments+` WHERE id = ?`, id)
	e, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Experiment{}, fmt.Errorf("%w: %s", ErrExperimentNotFound, id)
	}
	return e, err
}

// List returns every experiment, newest first.
func (r *Registry) List(ctx context.Context) ([]Experiment, error) {
	rows, err := r.db.QueryContext(ctx, selectExperiments+` ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, e)
	}
	return experiments, rows.Err()
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM experiments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete experiment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrExperimentNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExperiment(s scanner) (Experiment, error) {
	var (
		e                              Experiment
		kind, status                   string
		datasets, classifiers, metrics string
		createdAt                      string
		finishedAt                     sql.NullString
	)
	if err := s.Scan(&e.ID, &e.Name, &kind, &status, &datasets, &classifiers, &metrics, &e.Path, &e.Error, &createdAt, &finishedAt); err != nil {
		return Experiment{}, err
	}
	e.Type = ExperimentType(kind)
	e.Status = ExperimentStatus(status)

	for _, field := range []struct {
		raw string
		dst *[]string
	}{{datasets, &e.Datasets}, {classifiers, &e.Classifiers}, {metrics, &e.Metrics}} {
		if err := json.Unmarshal([]byte(field.raw), field.dst); err != nil {
			return Experiment{}, fmt.Errorf("experiment %s: %w", e.ID, err)
		}
	}

	var err error
	if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return Experiment{}, fmt.Errorf("experiment %s: %w", e.ID, err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return Experiment{}, fmt.Errorf("experiment %s: %w", e.ID, err)
		}
		e.FinishedAt = &t
	}
	return e, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
