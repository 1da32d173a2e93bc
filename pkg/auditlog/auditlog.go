// Package auditlog persists scan verdicts for traceability without ever
// storing matched content: only the audit token, status, rule-set version,
// matched-rule count, is-code flag, timing, and session/request IDs
// survive, the same redaction discipline pkg/audit enforces on individual
// matches.
// Grounded on titus's pkg/store/sqlite.go connection and schema-creation
// pattern, repurposed away from storing match snippets/groups/findings
// (that table design would violate the "never persist rule-match bodies"
// boundary) into a single append-only verdict log.
package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/l0scanner/l0scanner/pkg/types"
)

// Store is an append-only log of scan verdicts backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or attaches to the SQLite database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("auditlog: opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditlog: enabling WAL mode: %w", err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditlog: creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS scan_log (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	audit_token        TEXT NOT NULL,
	status             TEXT NOT NULL,
	rule_set_version   TEXT NOT NULL,
	matched_rule_count INTEGER NOT NULL,
	is_code            INTEGER NOT NULL,
	processing_time_ms REAL NOT NULL,
	session_id         TEXT,
	request_id         TEXT,
	recorded_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scan_log_audit_token ON scan_log (audit_token);
CREATE INDEX IF NOT EXISTS idx_scan_log_recorded_at ON scan_log (recorded_at);
`
	_, err := db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one scan verdict to the log. sessionID/requestID are
// carried from the originating PreparedInput for correlation and may be
// empty.
func (s *Store) Record(ctx context.Context, res *types.ScanResult, sessionID, requestID string) error {
	isCode := 0
	if res.IsCode {
		isCode = 1
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO scan_log (audit_token, status, rule_set_version, matched_rule_count, is_code, processing_time_ms, session_id, request_id, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.AuditToken, string(res.Status), res.RuleSetVersion, len(res.Matches), isCode,
		res.ProcessingTimeMs, nullable(sessionID), nullable(requestID), res.Timestamp.Format(time.RFC3339Nano))
	return err
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Entry is one row read back from the scan log.
type Entry struct {
	AuditToken       string
	Status           string
	RuleSetVersion   string
	MatchedRuleCount int
	IsCode           bool
	ProcessingTimeMs float64
	SessionID        string
	RequestID        string
	RecordedAt       time.Time
}

// RecentByToken looks up the most recent log entry for an audit token, if
// any, for correlating an audit token back to its recorded verdict.
func (s *Store) RecentByToken(ctx context.Context, auditToken string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT audit_token, status, rule_set_version, matched_rule_count, is_code, processing_time_ms,
       COALESCE(session_id, ''), COALESCE(request_id, ''), recorded_at
FROM scan_log WHERE audit_token = ? ORDER BY id DESC LIMIT 1`, auditToken)

	var e Entry
	var isCode int
	var recordedAt string
	if err := row.Scan(&e.AuditToken, &e.Status, &e.RuleSetVersion, &e.MatchedRuleCount, &isCode,
		&e.ProcessingTimeMs, &e.SessionID, &e.RequestID, &recordedAt); err != nil {
		return nil, err
	}
	e.IsCode = isCode != 0
	parsed, err := time.Parse(time.RFC3339Nano, recordedAt)
	if err != nil {
		return nil, fmt.Errorf("auditlog: parsing recorded_at: %w", err)
	}
	e.RecordedAt = parsed
	return &e, nil
}
