package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/buildfund/onboard/pkg/api"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	role TEXT NOT NULL,
	current_step TEXT NOT NULL,
	history TEXT NOT NULL DEFAULT '[]',
	collected TEXT NOT NULL DEFAULT '{}',
	is_active INTEGER NOT NULL DEFAULT 1,
	started_at TEXT NOT NULL,
	last_activity TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_owner_active ON sessions(owner, is_active);

CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner TEXT NOT NULL,
	session_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	file_type TEXT NOT NULL DEFAULT '',
	file_size INTEGER NOT NULL DEFAULT 0,
	doc_key TEXT NOT NULL DEFAULT '',
	uploaded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner);
`

// Session is one persisted onboarding conversation.
type Session struct {
	SessionID    string
	Owner        string
	Role         Role
	CurrentStep  string
	History      []api.HistoryEntry
	Collected    map[string]string
	IsActive     bool
	StartedAt    time.Time
	LastActivity time.Time
}

// Document is one stored upload.
type Document struct {
	ID         int64
	Owner      string
	SessionID  string
	FileName   string
	FileType   string
	FileSize   int64
	DocKey     string
	UploadedAt time.Time
}

// Store persists sessions and uploaded document metadata in sqlite.
type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	s := &Store{db: db}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "init schema")
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ActiveSession returns the owner's active session, or nil when none exists.
func (s *Store) ActiveSession(ctx context.Context, owner string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, owner, role, current_step, history, collected, is_active, started_at, last_activity
		 FROM sessions WHERE owner = ? AND is_active = 1 ORDER BY last_activity DESC LIMIT 1`, owner)
	return scanSession(row)
}

// GetSession returns a session by id for the given owner, or nil.
func (s *Store) GetSession(ctx context.Context, owner, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, owner, role, current_step, history, collected, is_active, started_at, last_activity
		 FROM sessions WHERE owner = ? AND session_id = ?`, owner, sessionID)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*Session, error) {
	var (
		sess          Session
		role          string
		historyJSON   string
		collectedJSON string
		active        int
		startedAt     string
		lastActivity  string
	)
	err := row.Scan(&sess.SessionID, &sess.Owner, &role, &sess.CurrentStep,
		&historyJSON, &collectedJSON, &active, &startedAt, &lastActivity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan session")
	}
	sess.Role = Role(role)
	sess.IsActive = active == 1
	if err := json.Unmarshal([]byte(historyJSON), &sess.History); err != nil {
		return nil, errors.Wrap(err, "decode history")
	}
	if err := json.Unmarshal([]byte(collectedJSON), &sess.Collected); err != nil {
		return nil, errors.Wrap(err, "decode collected data")
	}
	if sess.Collected == nil {
		sess.Collected = map[string]string{}
	}
	sess.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	sess.LastActivity, _ = time.Parse(time.RFC3339Nano, lastActivity)
	return &sess, nil
}

// SaveSession inserts or replaces a session row.
func (s *Store) SaveSession(ctx context.Context, sess *Session) error {
	historyJSON, err := json.Marshal(sess.History)
	if err != nil {
		return errors.Wrap(err, "encode history")
	}
	if sess.Collected == nil {
		sess.Collected = map[string]string{}
	}
	collectedJSON, err := json.Marshal(sess.Collected)
	if err != nil {
		return errors.Wrap(err, "encode collected data")
	}
	active := 0
	if sess.IsActive {
		active = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions
		 (session_id, owner, role, current_step, history, collected, is_active, started_at, last_activity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.SessionID, sess.Owner, string(sess.Role), sess.CurrentStep,
		string(historyJSON), string(collectedJSON), active,
		sess.StartedAt.UTC().Format(time.RFC3339Nano),
		sess.LastActivity.UTC().Format(time.RFC3339Nano))
	return errors.Wrap(err, "save session")
}

// AddDocument stores upload metadata and returns the assigned id.
func (s *Store) AddDocument(ctx context.Context, doc *Document) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (owner, session_id, file_name, file_type, file_size, doc_key, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.Owner, doc.SessionID, doc.FileName, doc.FileType, doc.FileSize, doc.DocKey,
		doc.UploadedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrap(err, "insert document")
	}
	doc.ID, err = res.LastInsertId()
	return errors.Wrap(err, "document id")
}

// DocumentsFor lists all documents the owner has uploaded.
func (s *Store) DocumentsFor(ctx context.Context, owner string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, session_id, file_name, file_type, file_size, doc_key, uploaded_at
		 FROM documents WHERE owner = ? ORDER BY id`, owner)
	if err != nil {
		return nil, errors.Wrap(err, "query documents")
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Document
	for rows.Next() {
		var (
			doc        Document
			uploadedAt string
		)
		if err := rows.Scan(&doc.ID, &doc.Owner, &doc.SessionID, &doc.FileName,
			&doc.FileType, &doc.FileSize, &doc.DocKey, &uploadedAt); err != nil {
			return nil, errors.Wrap(err, "scan document")
		}
		doc.UploadedAt, _ = time.Parse(time.RFC3339Nano, uploadedAt)
		out = append(out, doc)
	}
	return out, errors.Wrap(rows.Err(), "iterate documents")
}
