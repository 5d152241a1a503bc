package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bastion/internal/logger"

	_ "modernc.org/sqlite"
)

// Store is the append-only sqlite-backed audit trail. A single connection
// with WAL keeps writers from tripping over the admin API's readers.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("audit store path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_id TEXT NOT NULL UNIQUE,
			ref_entry_id TEXT,
			kind TEXT NOT NULL,
			ts INTEGER NOT NULL,
			day TEXT NOT NULL,
			symbol TEXT NOT NULL,
			snapshot_hash TEXT,
			prompt_version TEXT,
			raw_output TEXT,
			snapshot_json TEXT,
			proposal_json TEXT,
			verdict_json TEXT,
			order_request_json TEXT,
			order_fill_json TEXT,
			note TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_day ON audit_entries(day);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_symbol ON audit_entries(symbol);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_entries(ts);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append inserts one entry. Missing ids and day partitions are filled in.
// The returned entry id lets callers cross-reference fills later.
func (s *Store) Append(e Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return "", fmt.Errorf("audit store closed")
	}

	if e.EntryID == "" {
		e.EntryID = fmt.Sprintf("%s_%s", strings.ToUpper(e.Symbol), uuid.NewString())
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Day == "" {
		e.Day = e.Timestamp.UTC().Format("2006-01-02")
	}
	if e.Kind == "" {
		e.Kind = KindDecision
	}

	_, err := s.db.Exec(`INSERT INTO audit_entries
		(entry_id, ref_entry_id, kind, ts, day, symbol, snapshot_hash, prompt_version,
		 raw_output, snapshot_json, proposal_json, verdict_json, order_request_json,
		 order_fill_json, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EntryID, e.RefEntryID, e.Kind, e.Timestamp.UnixMilli(), e.Day,
		strings.ToUpper(e.Symbol), e.SnapshotHash, e.PromptVersion, e.RawOutput,
		marshalOrEmpty(e.Snapshot), marshalOrEmpty(e.Proposal), marshalOrEmpty(e.Verdict),
		marshalOrEmpty(e.OrderRequest), marshalOrEmpty(e.OrderFill), e.Note,
		time.Now().UnixMilli())
	if err != nil {
		return "", err
	}
	return e.EntryID, nil
}

// AppendFill records a broker execution as a new entry referencing the
// decision entry it fulfills.
func (s *Store) AppendFill(refEntryID, symbol string, fill OrderFill) (string, error) {
	return s.Append(Entry{
		RefEntryID: refEntryID,
		Kind:       KindFill,
		Symbol:     symbol,
		OrderFill:  &fill,
	})
}

// List returns entries matching q, newest first. Rows that fail to decode
// are skipped with a warning rather than failing the whole read.
func (s *Store) List(q Query) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("audit store closed")
	}

	var (
		where []string
		args  []any
	)
	if q.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, strings.ToUpper(q.Symbol))
	}
	if q.Day != "" {
		where = append(where, "day = ?")
		args = append(args, q.Day)
	}
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, q.Kind)
	}
	if !q.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if !q.Until.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, q.Until.UnixMilli())
	}

	query := `SELECT entry_id, ref_entry_id, kind, ts, day, symbol, snapshot_hash,
		prompt_version, raw_output, snapshot_json, proposal_json, verdict_json,
		order_request_json, order_fill_json, note FROM audit_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC"
	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			logger.Warnf("audit: skipping unreadable row: %v", err)
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats aggregates decision entries matching q.
func (s *Store) Stats(q Query) (Statistics, error) {
	q.Kind = KindDecision
	if q.Limit <= 0 {
		q.Limit = 10000
	}
	entries, err := s.List(q)
	if err != nil {
		return Statistics{}, err
	}

	stats := Statistics{RejectReasons: make(map[string]int)}
	confSum := 0
	for _, e := range entries {
		if e.Verdict == nil {
			continue
		}
		stats.Total++
		confSum += e.Verdict.NormalizedConfidence
		if e.Verdict.Allowed {
			stats.Allowed++
		} else {
			stats.Rejected++
		}
		switch e.Verdict.FinalAction {
		case "BUY":
			stats.Buys++
		case "SELL":
			stats.Sells++
		default:
			stats.Holds++
		}
		for _, code := range e.Verdict.ReasonCodes {
			stats.RejectReasons[string(code)]++
		}
	}
	if stats.Total > 0 {
		stats.AvgConfidence = float64(confSum) / float64(stats.Total)
	}
	return stats, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e       Entry
		ts      int64
		snapJ   sql.NullString
		propJ   sql.NullString
		verdJ   sql.NullString
		reqJ    sql.NullString
		fillJ   sql.NullString
		refID   sql.NullString
		rawOut  sql.NullString
		promptV sql.NullString
		hash    sql.NullString
		note    sql.NullString
	)
	if err := rows.Scan(&e.EntryID, &refID, &e.Kind, &ts, &e.Day, &e.Symbol, &hash,
		&promptV, &rawOut, &snapJ, &propJ, &verdJ, &reqJ, &fillJ, &note); err != nil {
		return Entry{}, err
	}
	e.Timestamp = time.UnixMilli(ts).UTC()
	e.RefEntryID = refID.String
	e.SnapshotHash = hash.String
	e.PromptVersion = promptV.String
	e.RawOutput = rawOut.String
	e.Note = note.String

	if err := unmarshalInto(snapJ, &e.Snapshot); err != nil {
		return Entry{}, err
	}
	if err := unmarshalInto(propJ, &e.Proposal); err != nil {
		return Entry{}, err
	}
	if err := unmarshalInto(verdJ, &e.Verdict); err != nil {
		return Entry{}, err
	}
	if err := unmarshalInto(reqJ, &e.OrderRequest); err != nil {
		return Entry{}, err
	}
	if err := unmarshalInto(fillJ, &e.OrderFill); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func marshalOrEmpty(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	s := string(b)
	if s == "null" {
		return ""
	}
	return s
}

func unmarshalInto[T any](col sql.NullString, dst **T) error {
	if !col.Valid || strings.TrimSpace(col.String) == "" {
		return nil
	}
	var v T
	if err := json.Unmarshal([]byte(col.String), &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}
