package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures the schema exists. The pool is capped at one connection so every
// transaction is serialized.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	if err := requireLocalFS(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Tables lists every table BootstrapSQLite creates.
var Tables = []string{
	"persons",
	"applications",
	"assessments",
	"interviews",
	"decisions",
	"audit_logs",
	"processed_submissions",
}

// BootstrapSQLite creates tables and indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS persons (
  id            TEXT PRIMARY KEY,
  email         TEXT NOT NULL UNIQUE,
  first_name    TEXT NOT NULL DEFAULT '',
  last_name     TEXT NOT NULL DEFAULT '',
  phone         TEXT NOT NULL DEFAULT '',
  country       TEXT NOT NULL DEFAULT '',
  city          TEXT NOT NULL DEFAULT '',
  portfolio_url TEXT NOT NULL DEFAULT '',
  gc_completed  INTEGER NOT NULL DEFAULT 0,
  gc_score      REAL,
  gc_passed_at  TEXT,
  created_at    TEXT NOT NULL,
  updated_at    TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS applications (
  id                TEXT PRIMARY KEY,
  person_id         TEXT NOT NULL REFERENCES persons(id),
  position          TEXT NOT NULL,
  current_stage     TEXT NOT NULL,
  status            TEXT NOT NULL,
  education_level   TEXT NOT NULL DEFAULT '',
  has_resume        INTEGER NOT NULL DEFAULT 0,
  has_academic_bg   INTEGER NOT NULL DEFAULT 0,
  has_video_intro   INTEGER NOT NULL DEFAULT 0,
  has_previous_work INTEGER NOT NULL DEFAULT 0,
  has_other_file    INTEGER NOT NULL DEFAULT 0,
  resume_url        TEXT NOT NULL DEFAULT '',
  academic_bg_url   TEXT NOT NULL DEFAULT '',
  video_intro_url   TEXT NOT NULL DEFAULT '',
  previous_work_url TEXT NOT NULL DEFAULT '',
  other_file_url    TEXT NOT NULL DEFAULT '',
  submission_id     TEXT,
  respondent_id     TEXT,
  response_id       TEXT,
  agreement         JSON,
  created_at        TEXT NOT NULL,
  updated_at        TEXT NOT NULL,
  UNIQUE (person_id, position)
);`,
		`CREATE INDEX IF NOT EXISTS applications_respondent_idx ON applications(respondent_id);`,
		`CREATE INDEX IF NOT EXISTS applications_stage_status_idx ON applications(current_stage, status);`,
		`CREATE TABLE IF NOT EXISTS assessments (
  id             TEXT PRIMARY KEY,
  kind           TEXT NOT NULL,
  person_id      TEXT REFERENCES persons(id),
  application_id TEXT REFERENCES applications(id),
  competency     TEXT NOT NULL DEFAULT '',
  score          REAL,
  threshold      REAL,
  passed         INTEGER,
  sub_scores     JSON NOT NULL DEFAULT '{}',
  artifacts      JSON NOT NULL DEFAULT '[]',
  raw_payload    JSON,
  submission_id  TEXT UNIQUE,
  completed_at   TEXT,
  reviewed_by    TEXT NOT NULL DEFAULT '',
  reviewed_at    TEXT,
  created_at     TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS assessments_application_idx ON assessments(application_id);`,
		`CREATE INDEX IF NOT EXISTS assessments_person_idx ON assessments(person_id);`,
		`CREATE TABLE IF NOT EXISTS interviews (
  id                 TEXT PRIMARY KEY,
  application_id     TEXT NOT NULL REFERENCES applications(id),
  interviewer_id     TEXT NOT NULL DEFAULT '',
  scheduling_link    TEXT NOT NULL DEFAULT '',
  scheduled_at       TEXT,
  completed_at       TEXT,
  notes              TEXT NOT NULL DEFAULT '',
  outcome            TEXT NOT NULL,
  invitation_sent_at TEXT,
  created_at         TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS interviews_application_idx ON interviews(application_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS decisions (
  id             TEXT PRIMARY KEY,
  application_id TEXT NOT NULL REFERENCES applications(id),
  kind           TEXT NOT NULL,
  reason         TEXT NOT NULL DEFAULT '',
  notes          TEXT NOT NULL DEFAULT '',
  decided_by     TEXT NOT NULL DEFAULT '',
  decided_at     TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS decisions_application_idx ON decisions(application_id, decided_at);`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
  id             TEXT PRIMARY KEY,
  action         TEXT NOT NULL,
  action_type    TEXT NOT NULL,
  details        JSON NOT NULL DEFAULT '{}',
  actor_id       TEXT,
  person_id      TEXT,
  application_id TEXT,
  created_at     TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS audit_logs_application_idx ON audit_logs(application_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS audit_logs_person_idx ON audit_logs(person_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS processed_submissions (
  submission_id TEXT PRIMARY KEY,
  event_type    TEXT NOT NULL,
  response      JSON NOT NULL,
  created_at    TEXT NOT NULL
);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
