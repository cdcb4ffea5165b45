package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// GetRun loads one run by id, including its trace steps and assertion
// results. Returns ErrRunNotFound when no row matches.
func (s *Store) GetRun(id string) (Run, error) {
	row := s.db.QueryRow(`
		SELECT id, script_id, entity_id, status, logs, trace_steps,
			assertion_results, passed_count, failed_count, error_message,
			created_at, finished_at
		FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs most recent first. A non-empty scriptID narrows the
// listing to one script; limit <= 0 means no limit.
func (s *Store) ListRuns(scriptID string, limit int) ([]Run, error) {
	query := `
		SELECT id, script_id, entity_id, status, logs, trace_steps,
			assertion_results, passed_count, failed_count, error_message,
			created_at, finished_at
		FROM runs`
	var args []any
	if scriptID != "" {
		query += ` WHERE script_id = ?`
		args = append(args, scriptID)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// GetScript loads one script by id. Returns ErrScriptNotFound when no row
// matches.
func (s *Store) GetScript(id string) (Script, error) {
	var (
		script     Script
		assumpJSON string
		createdAt  string
		updatedAt  string
	)
	err := s.db.QueryRow(`
		SELECT id, name, entity_type, source, assumptions, created_at, updated_at
		FROM scripts WHERE id = ?`, id).Scan(
		&script.ID, &script.Name, &script.EntityType, &script.Source,
		&assumpJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Script{}, ErrScriptNotFound
	}
	if err != nil {
		return Script{}, fmt.Errorf("get script: %w", err)
	}

	if err := json.Unmarshal([]byte(assumpJSON), &script.Assumptions); err != nil {
		return Script{}, fmt.Errorf("get script: decode assumptions: %w", err)
	}
	if script.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return Script{}, fmt.Errorf("get script: parse created_at: %w", err)
	}
	if script.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return Script{}, fmt.Errorf("get script: parse updated_at: %w", err)
	}
	return script, nil
}

// ListScripts returns all scripts, most recently updated first.
func (s *Store) ListScripts() ([]Script, error) {
	rows, err := s.db.Query(`
		SELECT id, name, entity_type, source, assumptions, created_at, updated_at
		FROM scripts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer rows.Close()

	var scripts []Script
	for rows.Next() {
		var (
			script     Script
			assumpJSON string
			createdAt  string
			updatedAt  string
		)
		if err := rows.Scan(&script.ID, &script.Name, &script.EntityType,
			&script.Source, &assumpJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("list scripts: %w", err)
		}
		if err := json.Unmarshal([]byte(assumpJSON), &script.Assumptions); err != nil {
			return nil, fmt.Errorf("list scripts: decode assumptions: %w", err)
		}
		if script.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("list scripts: parse created_at: %w", err)
		}
		if script.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
			return nil, fmt.Errorf("list scripts: parse updated_at: %w", err)
		}
		scripts = append(scripts, script)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	return scripts, nil
}

// GetConfig loads one configuration value. The second return is false when
// the key has never been set.
func (s *Store) GetConfig(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM configs WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config: %w", err)
	}
	return value, true, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run        Run
		status     string
		traceJSON  string
		assertJSON string
		createdAt  string
		finishedAt sql.NullString
	)
	err := sc.Scan(&run.ID, &run.ScriptID, &run.EntityID, &status, &run.Logs,
		&traceJSON, &assertJSON, &run.PassedCount, &run.FailedCount,
		&run.ErrorMessage, &createdAt, &finishedAt)
	if err != nil {
		return Run{}, err
	}

	run.Status = Status(status)
	if err := json.Unmarshal([]byte(traceJSON), &run.TraceSteps); err != nil {
		return Run{}, fmt.Errorf("decode trace steps: %w", err)
	}
	if err := json.Unmarshal([]byte(assertJSON), &run.AssertionResults); err != nil {
		return Run{}, fmt.Errorf("decode assertion results: %w", err)
	}
	if run.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return Run{}, fmt.Errorf("parse created_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(timeFormat, finishedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &t
	}
	return run, nil
}
