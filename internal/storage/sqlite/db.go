// Package sqlite keeps an append-only history of triage runs.
package sqlite

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"

	"jiratriage/internal/domain"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id            TEXT PRIMARY KEY,
		source        TEXT NOT NULL,
		format        TEXT DEFAULT '',
		provider      TEXT DEFAULT '',
		model         TEXT DEFAULT '',
		tickets       INTEGER NOT NULL DEFAULT 0,
		chunks        INTEGER NOT NULL DEFAULT 0,
		failed_chunks INTEGER NOT NULL DEFAULT 0,
		analyses      INTEGER NOT NULL DEFAULT 0,
		report_path   TEXT DEFAULT '',
		tokens_in     INTEGER NOT NULL DEFAULT 0,
		tokens_out    INTEGER NOT NULL DEFAULT 0,
		started_at    DATETIME NOT NULL,
		finished_at   DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS ticket_analyses (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id          TEXT NOT NULL,
		chunk           INTEGER NOT NULL DEFAULT 0,
		ticket_key      TEXT NOT NULL,
		status          TEXT DEFAULT '',
		category        TEXT DEFAULT '',
		summary         TEXT DEFAULT '',
		reasoning       TEXT DEFAULT '',
		suggested_fix   TEXT DEFAULT '',
		missing_details TEXT DEFAULT '',
		link            TEXT DEFAULT '',
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_ta_run ON ticket_analyses(run_id);
	CREATE INDEX IF NOT EXISTS idx_ta_ticket ON ticket_analyses(ticket_key);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sqlite: create schema")
	}
	return db, nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func InsertRun(db *sql.DB, run domain.RunSummary) error {
	return insertRun(db, run)
}

func insertRun(ex execer, run domain.RunSummary) error {
	_, err := ex.Exec(
		`INSERT INTO runs (id, source, format, provider, model, tickets, chunks, failed_chunks, analyses,
		                   report_path, tokens_in, tokens_out, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Format, run.Provider, run.Model, run.Tickets, run.Chunks, run.FailedChunks,
		run.Analyses, run.ReportPath, run.TokensIn, run.TokensOut, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
	}
	return nil
}

func InsertAnalyses(db *sql.DB, runID string, analyses []domain.Analysis) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	inserted, err := insertAnalyses(tx, runID, analyses)
	if err != nil {
		return inserted, err
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit analyses")
	}
	return inserted, nil
}

// SaveRun writes the run row and its analyses in one transaction, so a run
// is never recorded without its analyses.
func SaveRun(db *sql.DB, run domain.RunSummary, analyses []domain.Analysis) error {
	tx, err := db.Begin()
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	if err := insertRun(tx, run); err != nil {
		return err
	}
	if _, err := insertAnalyses(tx, run.ID, analyses); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrapf(err, "sqlite: commit run %s", run.ID)
	}
	return nil
}

func insertAnalyses(tx *sql.Tx, runID string, analyses []domain.Analysis) (int, error) {
	stmt, err := tx.Prepare(
		`INSERT INTO ticket_analyses (run_id, chunk, ticket_key, status, category, summary, reasoning,
		                              suggested_fix, missing_details, link)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare analysis insert")
	}
	defer stmt.Close()

	inserted := 0
	for _, a := range analyses {
		_, err := stmt.Exec(
			runID, a.Chunk, a.TicketKey, a.Status, a.Category, a.Summary, a.Reasoning,
			a.SuggestedFix, a.MissingDetails, a.Link,
		)
		if err != nil {
			return inserted, eris.Wrapf(err, "sqlite: insert analysis %s", a.TicketKey)
		}
		inserted++
	}
	return inserted, nil
}

// ListRuns returns the most recent runs first.
func ListRuns(db *sql.DB, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(
		`SELECT id, source, format, provider, model, tickets, chunks, failed_chunks, analyses,
		        report_path, tokens_in, tokens_out, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []domain.RunSummary
	for rows.Next() {
		var r domain.RunSummary
		var started, finished time.Time
		if err := rows.Scan(&r.ID, &r.Source, &r.Format, &r.Provider, &r.Model, &r.Tickets, &r.Chunks,
			&r.FailedChunks, &r.Analyses, &r.ReportPath, &r.TokensIn, &r.TokensOut, &started, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.StartedAt = started
		r.FinishedAt = finished
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func GetAnalysesByRun(db *sql.DB, runID string) ([]domain.Analysis, error) {
	rows, err := db.Query(
		`SELECT chunk, ticket_key, status, category, summary, reasoning, suggested_fix, missing_details, link
		 FROM ticket_analyses WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: analyses for run %s", runID)
	}
	defer rows.Close()

	var out []domain.Analysis
	for rows.Next() {
		var a domain.Analysis
		if err := rows.Scan(&a.Chunk, &a.TicketKey, &a.Status, &a.Category, &a.Summary, &a.Reasoning,
			&a.SuggestedFix, &a.MissingDetails, &a.Link); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ResolveRunID expands an ID prefix, as printed by the history list, to the
// full run ID. No match and more than one match are both errors.
func ResolveRunID(db *sql.DB, prefix string) (string, error) {
	if prefix == "" {
		return "", eris.New("sqlite: empty run id")
	}
	rows, err := db.Query(`SELECT id FROM runs WHERE substr(id, 1, ?) = ? LIMIT 2`, len(prefix), prefix)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: resolve run %s", prefix)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", eris.Wrap(err, "sqlite: scan run id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", eris.Wrap(err, "sqlite: resolve run")
	}
	switch len(ids) {
	case 0:
		return "", eris.Errorf("sqlite: no run matches %q", prefix)
	case 1:
		return ids[0], nil
	default:
		return "", eris.Errorf("sqlite: run id %q is ambiguous", prefix)
	}
}
