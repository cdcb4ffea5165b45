package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CreateRun persists a new run row. The row must be durable before the run
// id is handed back to the caller, so this is a synchronous write.
func (s *Store) CreateRun(run Run) error {
	traceJSON, err := marshalOrEmptyArray(run.TraceSteps)
	if err != nil {
		return fmt.Errorf("marshal trace steps: %w", err)
	}
	assertJSON, err := marshalOrEmptyArray(run.AssertionResults)
	if err != nil {
		return fmt.Errorf("marshal assertion results: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO runs (id, script_id, entity_id, status, logs,
			trace_steps, assertion_results, passed_count, failed_count,
			error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ScriptID, run.EntityID, string(run.Status), run.Logs,
		traceJSON, assertJSON, run.PassedCount, run.FailedCount,
		run.ErrorMessage, run.CreatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun writes a run's terminal outcome. The guard on status makes
// terminal states immutable: once a run is passed, failed, or error, a
// second finish attempt returns ErrRunTerminal.
func (s *Store) FinishRun(id string, out Outcome, finishedAt time.Time) error {
	if !out.Status.Terminal() {
		return fmt.Errorf("finish run %s: status %q is not terminal", id, out.Status)
	}

	traceJSON, err := marshalOrEmptyArray(out.TraceSteps)
	if err != nil {
		return fmt.Errorf("marshal trace steps: %w", err)
	}
	assertJSON, err := marshalOrEmptyArray(out.AssertionResults)
	if err != nil {
		return fmt.Errorf("marshal assertion results: %w", err)
	}

	res, err := s.db.Exec(`
		UPDATE runs
		SET status = ?, logs = ?, trace_steps = ?, assertion_results = ?,
			passed_count = ?, failed_count = ?, error_message = ?,
			finished_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(out.Status), out.Logs, traceJSON, assertJSON,
		out.PassedCount, out.FailedCount, out.ErrorMessage,
		finishedAt.UTC().Format(timeFormat),
		id, string(StatusPending), string(StatusRunning))
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		// Either the run does not exist or it already reached a terminal
		// state. Distinguish with a lookup so callers get the right sentinel.
		var status string
		err := s.db.QueryRow(`SELECT status FROM runs WHERE id = ?`, id).Scan(&status)
		if err == sql.ErrNoRows {
			return ErrRunNotFound
		}
		if err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		return ErrRunTerminal
	}
	return nil
}

// SaveScript inserts or replaces a script by id.
func (s *Store) SaveScript(script Script) error {
	assumpJSON, err := marshalOrEmptyArray(script.Assumptions)
	if err != nil {
		return fmt.Errorf("marshal assumptions: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO scripts (id, name, entity_type, source, assumptions,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			entity_type = excluded.entity_type,
			source = excluded.source,
			assumptions = excluded.assumptions,
			updated_at = excluded.updated_at`,
		script.ID, script.Name, script.EntityType, script.Source, assumpJSON,
		script.CreatedAt.UTC().Format(timeFormat),
		script.UpdatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("save script: %w", err)
	}
	return nil
}

// SetConfig stores a configuration value by key, replacing any existing one.
func (s *Store) SetConfig(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO configs (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	return nil
}

// marshalOrEmptyArray encodes a slice as JSON, mapping nil to "[]" so the
// stored column is always a valid JSON array.
func marshalOrEmptyArray(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	out := string(raw)
	if out == "null" {
		out = "[]"
	}
	return out, nil
}
