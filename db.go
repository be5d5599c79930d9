package main

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// The run-history ledger is a local sqlite file: one row per completed run so
// convergence across repeated runs can be inspected offline.

func InitHistoryDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS run_history (
		id                    INTEGER PRIMARY KEY AUTOINCREMENT,
		command               TEXT NOT NULL,
		started_at            DATETIME NOT NULL,
		finished_at           DATETIME NOT NULL,
		scanned               INTEGER NOT NULL DEFAULT 0,
		eligible              INTEGER NOT NULL DEFAULT 0,
		patched               INTEGER NOT NULL DEFAULT 0,
		unchanged             INTEGER NOT NULL DEFAULT 0,
		failed                INTEGER NOT NULL DEFAULT 0,
		junk_removed          INTEGER NOT NULL DEFAULT 0,
		translations_repaired INTEGER NOT NULL DEFAULT 0,
		llm_failures          INTEGER NOT NULL DEFAULT 0,
		fallback_used         INTEGER NOT NULL DEFAULT 0,
		compliant             INTEGER NOT NULL DEFAULT 0,
		partial               INTEGER NOT NULL DEFAULT 0,
		empty                 INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_run_history_started ON run_history(started_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return db, nil
}

type RunRecord struct {
	ID         int64
	Command    string
	StartedAt  time.Time
	FinishedAt time.Time
	Stats      RunStats
}

func InsertRunHistory(db *sql.DB, rec RunRecord) error {
	_, err := db.Exec(
		`INSERT INTO run_history (command, started_at, finished_at, scanned, eligible, patched, unchanged, failed,
		 junk_removed, translations_repaired, llm_failures, fallback_used, compliant, partial, empty)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Command, rec.StartedAt, rec.FinishedAt,
		rec.Stats.Scanned, rec.Stats.Eligible, rec.Stats.Patched, rec.Stats.Unchanged, rec.Stats.Failed,
		rec.Stats.JunkRemoved, rec.Stats.TranslationsRepaired, rec.Stats.LLMFailures, rec.Stats.FallbackUsed,
		rec.Stats.Compliant, rec.Stats.Partial, rec.Stats.Empty,
	)
	return err
}

func RecentRuns(db *sql.DB, limit int) ([]RunRecord, error) {
	rows, err := db.Query(
		`SELECT id, command, started_at, finished_at, scanned, eligible, patched, unchanged, failed,
		 junk_removed, translations_repaired, llm_failures, fallback_used, compliant, partial, empty
		 FROM run_history ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.ID, &rec.Command, &rec.StartedAt, &rec.FinishedAt,
			&rec.Stats.Scanned, &rec.Stats.Eligible, &rec.Stats.Patched, &rec.Stats.Unchanged, &rec.Stats.Failed,
			&rec.Stats.JunkRemoved, &rec.Stats.TranslationsRepaired, &rec.Stats.LLMFailures, &rec.Stats.FallbackUsed,
			&rec.Stats.Compliant, &rec.Stats.Partial, &rec.Stats.Empty); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
