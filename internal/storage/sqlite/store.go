package sqlite

import (
	"database/sql"

	"jiratriage/internal/domain"
)

// Store records finished runs. It satisfies the triage history interface.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := InitDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SaveRun(run domain.RunSummary, analyses []domain.Analysis) error {
	return SaveRun(s.db, run, analyses)
}

func (s *Store) ListRuns(limit int) ([]domain.RunSummary, error) {
	return ListRuns(s.db, limit)
}

// RunAnalyses returns the analyses of the run whose ID starts with prefix.
func (s *Store) RunAnalyses(prefix string) (string, []domain.Analysis, error) {
	id, err := ResolveRunID(s.db, prefix)
	if err != nil {
		return "", nil, err
	}
	analyses, err := GetAnalysesByRun(s.db, id)
	if err != nil {
		return "", nil, err
	}
	return id, analyses, nil
}
